// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"time"

	"github.com/gomlx/collectives/pkg/core/graph"
	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context gives a lowerer access to the runtime, the collective options and the handles of the op's
// inputs and outputs.
type Context struct {
	runtime Runtime
	options CollectiveOptions
	handles []TensorHandle
	node    *graph.Node
}

// InTensor returns the handle bound to input index of the node being lowered.
func (ctx *Context) InTensor(index int) (TensorHandle, error) {
	t := ctx.node.Input(index)
	if t == nil {
		return nil, errors.Errorf("op %q: input #%d is not connected", ctx.node.Op().Name(), index)
	}
	h := ctx.handles[t.ID()]
	if h == nil {
		return nil, errors.Errorf("op %q: input #%d (%s) has not been lowered", ctx.node.Op().Name(), index, t)
	}
	return h, nil
}

// SetOutTensor binds the handle h to output index of the node being lowered. The handle shape must match
// the op's output shape.
func (ctx *Context) SetOutTensor(index int, h TensorHandle) error {
	t := ctx.node.Output(index)
	if h == nil {
		return errors.Errorf("op %q: nil handle for output #%d", ctx.node.Op().Name(), index)
	}
	if !h.Shape().Equal(t.Info().Shape) {
		return errors.Errorf("op %q: output #%d lowered to shape %s, but the op inferred %s",
			ctx.node.Op().Name(), index, h.Shape(), t.Info().Shape)
	}
	ctx.handles[t.ID()] = h
	return nil
}

// Program is the result of lowering a graph: the runtime sequence and the handles bound to every tensor.
type Program struct {
	// ID uniquely identifies the lowered program.
	ID uuid.UUID

	Graph    *graph.Graph
	Sequence Sequence

	handles  []TensorHandle
	lowerers []OpLowerer
}

// Handle returns the handle bound to the graph tensor t.
func (p *Program) Handle(t *graph.Tensor) TensorHandle { return p.handles[t.ID()] }

// Lowerer returns the lowerer used for the node.
func (p *Program) Lowerer(node *graph.Node) OpLowerer { return p.lowerers[node.ID()] }

// Option configures Lower.
type Option func(*config)

type config struct {
	lowerers *LowererRegistry
}

// WithLowerers sets the registry of lowerers to use, instead of DefaultLowerers().
func WithLowerers(r *LowererRegistry) Option {
	return func(c *config) { c.lowerers = r }
}

// Lower appends to a new runtime sequence the instructions of all the nodes of g, in topological order.
// The graph's parameters are read with Runtime.Parameter, in order.
//
// The collective options of the graph's session are passed to every collective call. Errors returned by
// the runtime are propagated with the op's context, errors.Cause returns the runtime's error.
func Lower(g *graph.Graph, rt Runtime, options ...Option) (*Program, error) {
	cfg := &config{lowerers: DefaultLowerers()}
	for _, opt := range options {
		opt(cfg)
	}
	start := time.Now()
	p := &Program{
		ID:       uuid.New(),
		Graph:    g,
		Sequence: rt.NewSequence(g.Name()),
		handles:  make([]TensorHandle, g.NumTensors()),
		lowerers: make([]OpLowerer, len(g.Nodes())),
	}
	ctx := &Context{
		runtime: rt,
		options: CollectiveOptions(g.Session().CollectiveOptions).Clone(),
		handles: p.handles,
	}
	for ii, param := range g.Parameters() {
		h, err := rt.Parameter(p.Sequence, ii, param.Info().Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "lowering parameter #%d (%s) of graph %q", ii, param, g.Name())
		}
		p.handles[param.ID()] = h
	}
	for _, node := range g.Nodes() {
		lowerer, err := cfg.lowerers.Lowerer(node.Op())
		if err != nil {
			return nil, err
		}
		ctx.node = node
		if err = lowerer.Grow(ctx, p.Sequence); err != nil {
			return nil, err
		}
		p.lowerers[node.ID()] = lowerer
		klog.V(2).Infof("lowered %s", ops.String(node.Op()))
	}
	klog.V(1).Infof("lowered graph %q to program %s: %d instructions in %s",
		g.Name(), p.ID, p.Sequence.Len(), time.Since(start))
	return p, nil
}
