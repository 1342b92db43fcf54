// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

const (
	// AllGatherInIndex is the input index of the shard to gather.
	AllGatherInIndex = 0

	// AllGatherCollectiveLinkedIndex is the optional input index linking the op to the other collective
	// ops operating on the same sharded value. It's only used to recover the meta-shape bookkeeping.
	AllGatherCollectiveLinkedIndex = 1

	// AllGatherOutIndex is the output index of the gathered value.
	AllGatherOutIndex = 0
)

// AllGatherDefinition is the type contract of AllGather.
var AllGatherDefinition = Definition{
	Inputs: []ArgDefinition{
		{Name: "X", DTypes: CollectiveDTypes},
		{Name: "collectiveLinked", Optional: true},
	},
	Outputs:    []ArgDefinition{{Name: "Y", DTypes: CollectiveDTypes}},
	Attributes: []string{replicas.AttrCommGroup, replicas.AttrReplicaGrouping},
}

// AllGather concatenates the (flattened) input shards of every replica of a group, and delivers the
// complete value to every member of the group.
type AllGather struct {
	Collective

	// gatheredInfo is the explicit output info, if given at construction.
	gatheredInfo    shapes.TensorInfo
	hasGatheredInfo bool

	outInfo shapes.TensorInfo
}

var (
	_ CollectiveOp = (*AllGather)(nil)
)

// NewAllGather creates an AllGather op over the given grouping. Its output will be the 1-D concatenation
// of the flattened inputs of the group.
func NewAllGather(grouping replicas.Grouping, settings Settings) *AllGather {
	return &AllGather{Collective: newCollective(grouping, settings)}
}

// NewAllGatherWithOutput creates an AllGather op whose output shape is given explicitly, typically by the
// scatter op that created the shards.
//
// The shape in gathered is used verbatim (it's not checked against the input), only the dtype is taken
// from the input.
func NewAllGatherWithOutput(grouping replicas.Grouping, settings Settings, gathered shapes.TensorInfo) *AllGather {
	op := NewAllGather(grouping, settings)
	op.gatheredInfo = gathered.Clone()
	op.hasGatheredInfo = true
	return op
}

// Identifier implements Op.
func (op *AllGather) Identifier() Identifier { return AllGatherID }

// Type implements Op.
func (op *AllGather) Type() OpType { return OpTypeAllGather }

// NumOutputs implements Op.
func (op *AllGather) NumOutputs() int { return 1 }

// Clone implements Op.
func (op *AllGather) Clone() Op {
	return &AllGather{
		Collective:      op.Collective.clone(),
		gatheredInfo:    op.gatheredInfo.Clone(),
		hasGatheredInfo: op.hasGatheredInfo,
		outInfo:         op.outInfo.Clone(),
	}
}

// Setup implements Op.
//
// If an explicit output was given at construction its shape is used, with the dtype of the input.
// Otherwise, the output is the 1-D concatenation of the group's flattened inputs: [CommSize * inputSize],
// with the input's MetaShape.
func (op *AllGather) Setup(inputs Inputs) error {
	if !inputs.HasInput(AllGatherInIndex) {
		return invalidGraphf(op.Name(), "AllGather requires input #%d", AllGatherInIndex)
	}
	in := inputs.InInfo(AllGatherInIndex)
	commSize := op.CommSize()
	var out shapes.TensorInfo
	if op.hasGatheredInfo {
		out = op.gatheredInfo.Clone()
		out.Set(in.DType, out.Dimensions)
	} else {
		// The meta-shape of a sharded input is carried over to the gathered output.
		out = in.Clone()
		out.Set(in.DType, []int{commSize * in.Size()})
	}
	op.outInfo = out
	if klog.V(2).Enabled() {
		klog.Infof("[AllGather %q] global replication factor: %d, sharding factor: %d, output: %s",
			op.Name(), op.ReplicaGrouping().NumReplicas(), commSize, out)
	}
	return nil
}

// OutInfo implements Op.
func (op *AllGather) OutInfo(index int) shapes.TensorInfo {
	if index != AllGatherOutIndex {
		exceptions.Panicf("AllGather %q has only one output, requested output #%d", op.Name(), index)
	}
	return op.outInfo
}

// ReplicatedTensorShardingIndices implements Op: the input is sharded, the gathered output is not.
func (op *AllGather) ReplicatedTensorShardingIndices() []ShardingIndices {
	return []ShardingIndices{{Inputs: []int{AllGatherInIndex}, Outputs: []int{}}}
}

// IsConfigureOutputForReplicatedTensorSharding returns whether the layout decisions downstream of the op
// must consult the sharding metadata instead of the op's literal shape: that is the case if the
// collective-linked input is connected, or if the input has a meta-shape.
func (op *AllGather) IsConfigureOutputForReplicatedTensorSharding(inputs Inputs) bool {
	return inputs.HasInput(AllGatherCollectiveLinkedIndex) ||
		len(inputs.InInfo(AllGatherInIndex).MetaShape) > 0
}

// FwdPropagateIsReplicaEqual implements Op.
//
// If the grouping spans all replicas, every replica gathers the same contributions, so the output is
// equal across replicas regardless of the input. Otherwise, each group may gather different values,
// and it falls back to the default rule.
//
// Replica-equality is only tracked across all replicas, not per group.
func (op *AllGather) FwdPropagateIsReplicaEqual(_ AliasModel, inputs ReplEqInputMap, proxy ReplicaEqualProxy) (
	ReplEqOutputMap, ReplEqModifiedInputMap) {
	if op.ReplicaGrouping().SpansAllReplicas() {
		outputs := ReplEqOutputMap{AllGatherOutIndex: true}
		return outputs, proxy.ModifiedInputMapFromAliases(op, outputs)
	}
	return FwdPropagateIsReplicaEqualDefault(op, inputs, proxy)
}
