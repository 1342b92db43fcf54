// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package replicaequal implements the replica-equal analysis: a forward dataflow pass over a graph that
// determines which tensors are guaranteed to hold the same value on every replica.
//
// Each op contributes its transfer function (ops.Op.FwdPropagateIsReplicaEqual). The lattice is coarse: a
// tensor is either equal across all replicas or not. Equality within a subgroup of replicas is not tracked.
package replicaequal

import (
	"slices"

	"github.com/gomlx/collectives/pkg/core/graph"
	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// AliasModel implements ops.AliasModel for ops that implement ops.Aliaser. Other ops neither alias nor
// modify their inputs.
type AliasModel struct{}

var _ ops.AliasModel = AliasModel{}

// AliasedInputs implements ops.AliasModel.
func (AliasModel) AliasedInputs(op ops.Op, outIndex int) []int {
	if aliaser, ok := op.(ops.Aliaser); ok {
		return aliaser.Aliases(outIndex)
	}
	return nil
}

// Modifies implements ops.AliasModel.
func (AliasModel) Modifies(op ops.Op, inIndex int) bool {
	if aliaser, ok := op.(ops.Aliaser); ok {
		return aliaser.Modifies(inIndex)
	}
	return false
}

// Proxy implements ops.ReplicaEqualProxy on top of an ops.AliasModel.
type Proxy struct {
	// Aliases is the model used to find which inputs are modified by an op. If nil, AliasModel{} is used.
	Aliases ops.AliasModel

	// numInputs of the op currently being processed: set by Analyze before calling the op's transfer function.
	numInputs int
}

var _ ops.ReplicaEqualProxy = (*Proxy)(nil)

func (p *Proxy) aliasModel() ops.AliasModel {
	if p.Aliases == nil {
		return AliasModel{}
	}
	return p.Aliases
}

// ModifiedInputMapFromAliases implements ops.ReplicaEqualProxy.
//
// A modified input is replica-equal after the op only if every output aliasing it is replica-equal. A
// modified input that no output aliases is conservatively not equal.
func (p *Proxy) ModifiedInputMapFromAliases(op ops.Op, outputs ops.ReplEqOutputMap) ops.ReplEqModifiedInputMap {
	model := p.aliasModel()
	modified := make(ops.ReplEqModifiedInputMap)
	for inIdx := range p.numInputs {
		if !model.Modifies(op, inIdx) {
			continue
		}
		isEqual, aliased := true, false
		for outIdx := range op.NumOutputs() {
			if slices.Contains(model.AliasedInputs(op, outIdx), inIdx) {
				aliased = true
				isEqual = isEqual && outputs[outIdx]
			}
		}
		modified[inIdx] = aliased && isEqual
	}
	return modified
}

// Result of the analysis: the replica-equal fact of each tensor of the graph.
type Result struct {
	facts []bool
}

// IsEqual returns whether the tensor is guaranteed to be equal across all replicas.
func (r *Result) IsEqual(t *graph.Tensor) bool {
	id := int(t.ID())
	return id >= 0 && id < len(r.facts) && r.facts[id]
}

// NumEqual returns the number of tensors that are replica-equal.
func (r *Result) NumEqual() (count int) {
	for _, isEqual := range r.facts {
		if isEqual {
			count++
		}
	}
	return
}

// Analyze runs the replica-equal analysis on g.
//
// The facts of the graph parameters are taken from initial (keyed by tensor id); missing parameters are
// assumed to differ across replicas. Nodes are visited in the graph's (topological) order. Inputs modified
// in place by an op have their fact and-ed with the one reported by the op, which only affects the ops
// visited afterward.
//
// Analyze doesn't change the graph.
func Analyze(g *graph.Graph, initial map[graph.TensorID]bool, aliases ops.AliasModel) (*Result, error) {
	r := &Result{facts: make([]bool, g.NumTensors())}
	for _, t := range g.Parameters() {
		r.facts[t.ID()] = initial[t.ID()]
	}
	proxy := &Proxy{Aliases: aliases}
	for _, node := range g.Nodes() {
		op := node.Op()
		inputs := make(ops.ReplEqInputMap, node.NumInputs())
		for ii := range node.NumInputs() {
			if t := node.Input(ii); t != nil {
				inputs[ii] = r.facts[t.ID()]
			}
		}
		proxy.numInputs = node.NumInputs()
		outputs, modified := op.FwdPropagateIsReplicaEqual(proxy.aliasModel(), inputs, proxy)
		for ii, t := range node.Outputs() {
			isEqual, found := outputs[ii]
			if !found {
				return nil, errors.Errorf("replica-equal analysis: op %q (%s) didn't report output #%d",
					op.Name(), op.Type(), ii)
			}
			r.facts[t.ID()] = isEqual
		}
		for inIdx, isEqual := range modified {
			t := node.Input(inIdx)
			if t == nil {
				return nil, errors.Errorf("replica-equal analysis: op %q (%s) modifies unconnected input #%d",
					op.Name(), op.Type(), inIdx)
			}
			r.facts[t.ID()] = r.facts[t.ID()] && isEqual
		}
		if klog.V(3).Enabled() {
			klog.Infof("replica-equal: %s: inputs=%v outputs=%v modified=%v", node, inputs, outputs, modified)
		}
	}
	return r, nil
}
