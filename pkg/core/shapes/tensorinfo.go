// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
)

// TensorInfo describes a value in the graph: its physical Shape on each replica and, for values
// that are sharded across replicas, the full logical MetaShape.
//
// MetaShape is empty for values that are not sharded.
type TensorInfo struct {
	Shape

	// MetaShape is the logical shape of the complete (un-sharded) value.
	MetaShape []int
}

// MakeInfo creates a TensorInfo for a value that is not sharded.
func MakeInfo(dtype dtypes.DType, dimensions ...int) TensorInfo {
	return TensorInfo{Shape: Make(dtype, dimensions...)}
}

// MakeShardedInfo creates a TensorInfo for a shard with the given physical shape, of a value whose
// logical shape is metaShape.
func MakeShardedInfo(shard Shape, metaShape []int) TensorInfo {
	return TensorInfo{Shape: shard.Clone(), MetaShape: slices.Clone(metaShape)}
}

// IsSharded returns whether the value carries a non-empty MetaShape.
func (info TensorInfo) IsSharded() bool {
	return len(info.MetaShape) > 0
}

// Set changes the dtype and dimensions in place, keeping the MetaShape.
func (info *TensorInfo) Set(dtype dtypes.DType, dimensions []int) {
	info.DType = dtype
	info.Dimensions = slices.Clone(dimensions)
}

// Clone returns a deep copy.
func (info TensorInfo) Clone() TensorInfo {
	return TensorInfo{Shape: info.Shape.Clone(), MetaShape: slices.Clone(info.MetaShape)}
}

// Equal compares shape and MetaShape.
func (info TensorInfo) Equal(other TensorInfo) bool {
	return info.Shape.Equal(other.Shape) && slices.Equal(info.MetaShape, other.MetaShape)
}

// String implements fmt.Stringer.
func (info TensorInfo) String() string {
	if !info.IsSharded() {
		return info.Shape.String()
	}
	return fmt.Sprintf("%s{meta=%v}", info.Shape, info.MetaShape)
}
