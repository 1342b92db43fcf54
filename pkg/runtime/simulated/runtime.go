// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simulated implements an in-process collective runtime: it records lowered programs and executes
// them on N simulated replicas, one goroutine per replica, with the collective instructions acting as a
// barrier among the members of each replica group.
//
// It implements lowering.Runtime and is used for tests, for the command line tool and as the reference
// semantics of the collectives.
package simulated

import (
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/collectives/pkg/lowering"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Runtime is a simulated collective runtime for a fixed number of replicas.
type Runtime struct {
	numReplicas int
	legacyOnly  bool
}

var _ lowering.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(rt *Runtime)

// WithLegacyGroupsOnly makes the runtime only accept groupings expressible as a replicas.CommGroup
// (All, Consecutive, Orthogonal or None), like runtimes that predate arbitrary replica groupings.
func WithLegacyGroupsOnly() Option {
	return func(rt *Runtime) { rt.legacyOnly = true }
}

// New creates a simulated runtime with numReplicas replicas.
func New(numReplicas int, options ...Option) (*Runtime, error) {
	if numReplicas <= 0 {
		return nil, errors.Errorf("simulated runtime requires a positive number of replicas, got %d", numReplicas)
	}
	rt := &Runtime{numReplicas: numReplicas}
	for _, opt := range options {
		opt(rt)
	}
	return rt, nil
}

// NumReplicas of the runtime.
func (rt *Runtime) NumReplicas() int { return rt.numReplicas }

// Groups is the group descriptor of the simulated runtime.
type Groups struct {
	Grouping replicas.Grouping

	// Members of each group, in group order.
	Members [][]int

	// Legacy is the CommGroup equivalent of the grouping, if the runtime was created WithLegacyGroupsOnly.
	Legacy *replicas.CommGroup
}

// ReplicaGroups implements lowering.Runtime.
func (rt *Runtime) ReplicaGroups(grouping replicas.Grouping) (lowering.GroupDescriptor, error) {
	if grouping.NumReplicas() != rt.numReplicas {
		return nil, errors.Errorf("%s doesn't match the %d replicas of the simulated runtime", grouping, rt.numReplicas)
	}
	groups := &Groups{Grouping: grouping, Members: grouping.Groups()}
	if rt.legacyOnly {
		commGroup, err := grouping.ToCommGroup()
		if err != nil {
			return nil, errors.WithMessage(err, "simulated runtime only accepts legacy communication groups")
		}
		groups.Legacy = &commGroup
	}
	return groups, nil
}

type opKind int

const (
	opParameter opKind = iota
	opAllGather
	opAllToAll
)

// value is the TensorHandle of the simulated runtime: the index of the instruction that produces it.
type value struct {
	program *Program
	index   int
	shape   shapes.Shape
}

// Shape implements lowering.TensorHandle.
func (v *value) Shape() shapes.Shape { return v.shape }

type instruction struct {
	kind    opKind
	input   int
	param   int
	groups  *Groups
	shape   shapes.Shape
	options lowering.CollectiveOptions
}

// Program is the instruction sequence of the simulated runtime. It implements lowering.Sequence.
type Program struct {
	runtime      *Runtime
	name         string
	instructions []*instruction
	numParams    int
}

var _ lowering.Sequence = (*Program)(nil)

// NewSequence implements lowering.Runtime.
func (rt *Runtime) NewSequence(name string) lowering.Sequence {
	return &Program{runtime: rt, name: name}
}

// Name implements lowering.Sequence.
func (p *Program) Name() string { return p.name }

// Len implements lowering.Sequence.
func (p *Program) Len() int { return len(p.instructions) }

// NumParameters of the program.
func (p *Program) NumParameters() int { return p.numParams }

func (p *Program) add(instr *instruction) *value {
	p.instructions = append(p.instructions, instr)
	return &value{program: p, index: len(p.instructions) - 1, shape: instr.shape}
}

func (rt *Runtime) program(seq lowering.Sequence) (*Program, error) {
	p, ok := seq.(*Program)
	if !ok || p.runtime != rt {
		return nil, errors.Errorf("sequence %q was not created by this simulated runtime", seq.Name())
	}
	return p, nil
}

func (rt *Runtime) operands(seq lowering.Sequence, in lowering.TensorHandle, groups lowering.GroupDescriptor) (
	*Program, *value, *Groups, error) {
	p, err := rt.program(seq)
	if err != nil {
		return nil, nil, nil, err
	}
	v, ok := in.(*value)
	if !ok || v.program != p {
		return nil, nil, nil, errors.Errorf("tensor handle doesn't belong to sequence %q", p.name)
	}
	g, ok := groups.(*Groups)
	if !ok {
		return nil, nil, nil, errors.Errorf("invalid group descriptor %T for the simulated runtime", groups)
	}
	return p, v, g, nil
}

// Parameter implements lowering.Runtime.
func (rt *Runtime) Parameter(seq lowering.Sequence, index int, shape shapes.Shape) (lowering.TensorHandle, error) {
	p, err := rt.program(seq)
	if err != nil {
		return nil, err
	}
	if index != p.numParams {
		return nil, errors.Errorf("parameters must be created in order: expected #%d, got #%d", p.numParams, index)
	}
	p.numParams++
	return p.add(&instruction{kind: opParameter, param: index, shape: shape.Clone()}), nil
}

// AllGather implements lowering.Runtime. The output size must be the group size times the input size.
func (rt *Runtime) AllGather(seq lowering.Sequence, in lowering.TensorHandle, groups lowering.GroupDescriptor,
	outShape shapes.Shape, opts lowering.CollectiveOptions) (lowering.TensorHandle, error) {
	p, v, g, err := rt.operands(seq, in, groups)
	if err != nil {
		return nil, err
	}
	groupSize := g.Grouping.GroupSize()
	if outShape.DType != v.shape.DType || outShape.Size() != groupSize*v.shape.Size() {
		return nil, errors.Errorf("AllGather of %s over groups of %d replicas can't produce %s",
			v.shape, groupSize, outShape)
	}
	klog.V(2).Infof("simulated: %s: all_gather(%d) -> %s", p.name, v.index, outShape)
	return p.add(&instruction{kind: opAllGather, input: v.index, groups: g, shape: outShape.Clone(),
		options: opts.Clone()}), nil
}

// AllToAll implements lowering.Runtime. The input size must be divisible by the group size.
func (rt *Runtime) AllToAll(seq lowering.Sequence, in lowering.TensorHandle, groups lowering.GroupDescriptor,
	opts lowering.CollectiveOptions) (lowering.TensorHandle, error) {
	p, v, g, err := rt.operands(seq, in, groups)
	if err != nil {
		return nil, err
	}
	groupSize := g.Grouping.GroupSize()
	if v.shape.Size()%groupSize != 0 {
		return nil, errors.Errorf("AllToAll of %s can't be split in %d equal chunks", v.shape, groupSize)
	}
	klog.V(2).Infof("simulated: %s: all_to_all(%d) -> %s", p.name, v.index, v.shape)
	return p.add(&instruction{kind: opAllToAll, input: v.index, groups: g, shape: v.shape.Clone(),
		options: opts.Clone()}), nil
}
