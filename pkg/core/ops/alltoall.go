// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

const (
	// AllToAllInIndex is the input index of AllToAll and AllToAllGrad.
	AllToAllInIndex = 0

	// AllToAllOutIndex is the output index of AllToAll and AllToAllGrad.
	AllToAllOutIndex = 0
)

// AllToAllDefinition is the type contract of AllToAll and AllToAllGrad.
var AllToAllDefinition = Definition{
	Inputs:     []ArgDefinition{{Name: "X", DTypes: CollectiveDTypes}},
	Outputs:    []ArgDefinition{{Name: "Y", DTypes: CollectiveDTypes}},
	Attributes: []string{replicas.AttrCommGroup, replicas.AttrReplicaGrouping},
}

// allToAllBase implements AllToAll and AllToAllGrad, which only differ on their OpType and Identifier.
type allToAllBase struct {
	Collective
	outInfo shapes.TensorInfo
}

// NumOutputs implements Op.
func (op *allToAllBase) NumOutputs() int { return 1 }

// Setup implements Op: the output has the same shape and dtype as the input.
func (op *allToAllBase) Setup(inputs Inputs) error {
	if !inputs.HasInput(AllToAllInIndex) {
		return invalidGraphf(op.Name(), "AllToAll requires input #%d", AllToAllInIndex)
	}
	op.outInfo = inputs.InInfo(AllToAllInIndex).Clone()
	klog.V(2).Infof("[AllToAll %q] group size: %d, output: %s", op.Name(), op.CommSize(), op.outInfo)
	return nil
}

// OutInfo implements Op.
func (op *allToAllBase) OutInfo(index int) shapes.TensorInfo {
	if index != AllToAllOutIndex {
		exceptions.Panicf("AllToAll %q has only one output, requested output #%d", op.Name(), index)
	}
	return op.outInfo
}

func (op *allToAllBase) clone() allToAllBase {
	return allToAllBase{Collective: op.Collective.clone(), outInfo: op.outInfo.Clone()}
}

// fwdPropagateIsReplicaEqual: a group of one replica doesn't move anything, so the default rule applies.
// Otherwise, each member of a group receives a different set of shards, and even replica-equal inputs
// yield different outputs.
func (op *allToAllBase) fwdPropagateIsReplicaEqual(self Op, inputs ReplEqInputMap, proxy ReplicaEqualProxy) (
	ReplEqOutputMap, ReplEqModifiedInputMap) {
	if op.CommSize() == 1 {
		return FwdPropagateIsReplicaEqualDefault(self, inputs, proxy)
	}
	outputs := ReplEqOutputMap{AllToAllOutIndex: false}
	return outputs, proxy.ModifiedInputMapFromAliases(self, outputs)
}

// AllToAll exchanges shards among the members of each group: the input of each replica is split into
// CommSize shards, and shard i is sent to the i-th member of the group, which concatenates the received
// shards in group order.
//
// It's a permutation of the shards (no reduction): the output has the same shape and dtype as the input.
type AllToAll struct {
	allToAllBase
}

var _ CollectiveOp = (*AllToAll)(nil)

// NewAllToAll creates an AllToAll op over the given grouping.
func NewAllToAll(grouping replicas.Grouping, settings Settings) *AllToAll {
	return &AllToAll{allToAllBase{Collective: newCollective(grouping, settings)}}
}

// Identifier implements Op.
func (op *AllToAll) Identifier() Identifier { return AllToAllID }

// Type implements Op.
func (op *AllToAll) Type() OpType { return OpTypeAllToAll }

// Clone implements Op.
func (op *AllToAll) Clone() Op { return &AllToAll{op.allToAllBase.clone()} }

// FwdPropagateIsReplicaEqual implements Op.
func (op *AllToAll) FwdPropagateIsReplicaEqual(_ AliasModel, inputs ReplEqInputMap, proxy ReplicaEqualProxy) (
	ReplEqOutputMap, ReplEqModifiedInputMap) {
	return op.fwdPropagateIsReplicaEqual(op, inputs, proxy)
}

// GradOps implements GradMaker: each output element is a relocated input element, so the gradient is
// routed back by the same exchange over the same grouping.
func (op *AllToAll) GradOps() []Op {
	settings := op.Settings()
	settings.Name += "/grad"
	return []Op{NewAllToAllGrad(op.ReplicaGrouping(), settings)}
}

// AllToAllGrad is the gradient of AllToAll. It behaves exactly like AllToAll, and it's a separate op type only
// for the bookkeeping of forward and backward ops during graph construction.
type AllToAllGrad struct {
	allToAllBase
}

var _ CollectiveOp = (*AllToAllGrad)(nil)

// NewAllToAllGrad creates an AllToAllGrad op over the given grouping.
func NewAllToAllGrad(grouping replicas.Grouping, settings Settings) *AllToAllGrad {
	return &AllToAllGrad{allToAllBase{Collective: newCollective(grouping, settings)}}
}

// Identifier implements Op.
func (op *AllToAllGrad) Identifier() Identifier { return AllToAllGradID }

// Type implements Op.
func (op *AllToAllGrad) Type() OpType { return OpTypeAllToAllGrad }

// Clone implements Op.
func (op *AllToAllGrad) Clone() Op { return &AllToAllGrad{op.allToAllBase.clone()} }

// FwdPropagateIsReplicaEqual implements Op.
func (op *AllToAllGrad) FwdPropagateIsReplicaEqual(_ AliasModel, inputs ReplEqInputMap, proxy ReplicaEqualProxy) (
	ReplEqOutputMap, ReplEqModifiedInputMap) {
	return op.fwdPropagateIsReplicaEqual(op, inputs, proxy)
}

// GradOps implements GradMaker: the gradient of the gradient exchange is the forward exchange.
func (op *AllToAllGrad) GradOps() []Op {
	settings := op.Settings()
	settings.Name += "/grad"
	return []Op{NewAllToAll(op.ReplicaGrouping(), settings)}
}
