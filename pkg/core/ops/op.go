// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops defines the replicated collective operators: their type contract, shape inference,
// sharding annotations and replica-equal transfer functions.
//
// Every operator implements the Op capability interface. The collective ones (AllGather, AllToAll and
// AllToAllGrad) also implement CollectiveOp, and own an immutable replicas.Grouping.
//
// Ops are plain values owned by a graph (see package graph): they don't hold references to their
// input or output tensors. The information about connected inputs is given to them by the graph
// through the Inputs interface.
package ops

import (
	"fmt"
	"maps"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
)

// Inputs gives an op access to the static information of its connected inputs.
type Inputs interface {
	// HasInput returns whether the input index is connected.
	HasInput(index int) bool

	// InInfo returns the TensorInfo of the connected input index.
	// The result is undefined if the input is not connected.
	InInfo(index int) shapes.TensorInfo
}

// Settings are the generic settings of an op.
type Settings struct {
	// Name of the op instance, used in logs and errors.
	Name string

	// Attributes are the op's raw attributes, as given at construction. They are kept for
	// re-serialization and debugging.
	Attributes map[string]any
}

// Clone returns a copy of the settings that shares no mutable state.
func (s Settings) Clone() Settings {
	return Settings{Name: s.Name, Attributes: maps.Clone(s.Attributes)}
}

// ShardingIndices pairs a set of input indices with a set of output indices that are
// replicated-tensor-sharded together.
type ShardingIndices struct {
	Inputs  []int
	Outputs []int
}

// Op is the capability interface implemented by all operators.
type Op interface {
	// Identifier returns the canonical name and version of the operator.
	Identifier() Identifier

	// Type returns the OpType used to dispatch lowering and verification.
	Type() OpType

	// Name of the op instance.
	Name() string

	// Settings returns the op's generic settings.
	Settings() Settings

	// Clone returns an independent deep copy of the op, with identical settings and grouping.
	Clone() Op

	// NumOutputs returns the number of outputs of the op.
	NumOutputs() int

	// Setup runs shape inference: it computes and caches the output TensorInfo's from the inputs.
	// It must be idempotent.
	Setup(inputs Inputs) error

	// OutInfo returns the TensorInfo of the output, computed by the last call to Setup.
	OutInfo(index int) shapes.TensorInfo

	// ReplicatedTensorShardingIndices returns which inputs and outputs are replicated-tensor-sharded.
	ReplicatedTensorShardingIndices() []ShardingIndices

	// FwdPropagateIsReplicaEqual is the op's transfer function for the replica-equal analysis:
	// given which inputs are equal across all replicas, it returns which outputs are, and which
	// inputs the op modifies (through aliasing) and whether they stay equal.
	FwdPropagateIsReplicaEqual(aliasModel AliasModel, inputs ReplEqInputMap, proxy ReplicaEqualProxy) (
		ReplEqOutputMap, ReplEqModifiedInputMap)
}

// CollectiveOp is an Op that communicates across the replicas of a Grouping.
type CollectiveOp interface {
	Op

	// ReplicaGrouping returns the (immutable) grouping of the replicas participating in the op.
	ReplicaGrouping() replicas.Grouping

	// CommSize returns the number of replicas communicating in each group.
	CommSize() int
}

// GradMaker is implemented by ops that know how to create their gradient ops.
//
// By convention input 0 of the gradient op receives the gradient of output 0 of the forward op, and
// output 0 of the gradient op is the gradient of input 0 of the forward op.
type GradMaker interface {
	GradOps() []Op
}

// Collective implements the parts of CollectiveOp shared by all collective ops. It is meant to be embedded.
type Collective struct {
	settings Settings
	grouping replicas.Grouping
}

func newCollective(grouping replicas.Grouping, settings Settings) Collective {
	return Collective{settings: settings.Clone(), grouping: grouping}
}

// Name of the op instance.
func (c *Collective) Name() string { return c.settings.Name }

// Settings returns the op's generic settings.
func (c *Collective) Settings() Settings { return c.settings }

// ReplicaGrouping returns the grouping of the replicas participating in the op.
func (c *Collective) ReplicaGrouping() replicas.Grouping { return c.grouping }

// CommSize returns the number of replicas communicating in each group.
func (c *Collective) CommSize() int { return c.grouping.GroupSize() }

// ReplicatedTensorShardingIndices returns no sharded indices: only ops that handle sharded tensors override it.
func (c *Collective) ReplicatedTensorShardingIndices() []ShardingIndices { return nil }

func (c *Collective) clone() Collective {
	return Collective{settings: c.settings.Clone(), grouping: c.grouping}
}

// String pretty-prints an op, with its outputs and their memory usage.
func String(op Op) string {
	if op == nil {
		return "Op(nil)"
	}
	str := fmt.Sprintf("%s(%q)", op.Type(), op.Name())
	if cOp, ok := op.(CollectiveOp); ok {
		g := cOp.ReplicaGrouping()
		str = fmt.Sprintf("%s[replicas=%d, groups=%d x %d]", str, g.NumReplicas(), g.NumGroups(), g.GroupSize())
	}
	for ii := range op.NumOutputs() {
		info := op.OutInfo(ii)
		if !info.Ok() {
			continue
		}
		str = fmt.Sprintf("%s -> %s (%s)", str, info, humanize.Bytes(uint64(info.Memory())))
	}
	return str
}
