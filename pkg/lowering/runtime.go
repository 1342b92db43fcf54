// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"maps"

	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
)

// TensorHandle is a runtime (physical) tensor: the result of an instruction appended to a Sequence.
type TensorHandle interface {
	Shape() shapes.Shape
}

// Sequence is an append-only list of runtime instructions. It's created and appended to by the Runtime.
type Sequence interface {
	// Name of the sequence, for debugging.
	Name() string

	// Len returns the number of instructions appended so far.
	Len() int
}

// GroupDescriptor is the runtime specific description of a replica grouping, returned by
// Runtime.ReplicaGroups and given back to the runtime collective entry points.
type GroupDescriptor any

// CollectiveOptions are opaque key/value options passed verbatim to the runtime collective calls.
type CollectiveOptions map[string]string

// Clone returns a copy of the options.
func (o CollectiveOptions) Clone() CollectiveOptions { return maps.Clone(o) }

// Runtime is the external collective runtime capability lowering emits instructions for.
//
// Lowering never blocks: the runtime only records instructions in the sequence. The actual exchange
// happens when the program is executed, synchronously across the members of each group.
type Runtime interface {
	// NewSequence creates an empty instruction sequence.
	NewSequence(name string) Sequence

	// Parameter appends the instruction that reads the program input #index into the sequence.
	Parameter(seq Sequence, index int, shape shapes.Shape) (TensorHandle, error)

	// ReplicaGroups translates a grouping into the runtime's group descriptor. It returns an error if the
	// runtime can't express the grouping.
	ReplicaGroups(grouping replicas.Grouping) (GroupDescriptor, error)

	// AllGather appends the cross-replica all-gather of in over groups, with the given output shape.
	AllGather(seq Sequence, in TensorHandle, groups GroupDescriptor, outShape shapes.Shape,
		opts CollectiveOptions) (TensorHandle, error)

	// AllToAll appends the cross-replica all-to-all exchange of in over groups. The output has the same
	// shape (and layout) as the input.
	AllToAll(seq Sequence, in TensorHandle, groups GroupDescriptor, opts CollectiveOptions) (TensorHandle, error)
}
