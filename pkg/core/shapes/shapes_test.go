// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float32)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 4, int(shape0.Memory()))

	shape1 := Make(dtypes.Float16, 4, 3, 2)
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 24, shape1.Size())
	require.Equal(t, 48, int(shape1.Memory()))
	require.Equal(t, 2, shape1.Dim(-1))
	require.Equal(t, 4, shape1.Dim(0))
	require.Panics(t, func() { _ = shape1.Dim(3) })

	// Clone must not share dimensions.
	shape2 := shape1.Clone()
	require.True(t, shape1.Equal(shape2))
	shape2.Dimensions[0] = 5
	require.False(t, shape1.Equal(shape2))
	require.Equal(t, 4, shape1.Dimensions[0])

	require.Panics(t, func() { _ = Make(dtypes.Int32, 2, -1) })
}

func TestTensorInfo(t *testing.T) {
	plain := MakeInfo(dtypes.Int32, 8)
	assert.False(t, plain.IsSharded())
	assert.Equal(t, "(Int32)[8]", plain.String())

	sharded := MakeShardedInfo(Make(dtypes.Float32, 4), []int{4, 4})
	assert.True(t, sharded.IsSharded())
	assert.False(t, sharded.Equal(MakeInfo(dtypes.Float32, 4)))

	cloned := sharded.Clone()
	cloned.MetaShape[0] = 2
	assert.Equal(t, []int{4, 4}, sharded.MetaShape)

	cloned.Set(dtypes.Uint32, []int{16})
	assert.Equal(t, dtypes.Uint32, cloned.DType)
	assert.Equal(t, []int{16}, cloned.Dimensions)
	assert.Equal(t, []int{2, 4}, cloned.MetaShape, "Set must keep the MetaShape")
}
