// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simulated

import (
	"testing"

	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/collectives/pkg/lowering"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestFormatReplicaGroups(t *testing.T) {
	require.Equal(t, "dense<[]> : tensor<0x0xi64>", formatReplicaGroups(nil))
	require.Equal(t, "dense<[[0, 1], [2, 3]]> : tensor<2x2xi64>", formatReplicaGroups([][]int{{0, 1}, {2, 3}}))
	require.Equal(t, "tensor<f16>", tensorType(shapes.Make(dtypes.Float16)))
	require.Equal(t, "tensor<2x3xui32>", tensorType(shapes.Make(dtypes.Uint32, 2, 3)))
}

func TestProgramString(t *testing.T) {
	rt := must.M1(New(4))
	seq := rt.NewSequence("main")
	x := must.M1(rt.Parameter(seq, 0, shapes.Make(dtypes.Float32, 8)))
	all := must.M1(rt.ReplicaGroups(replicas.AllReplicas(4)))
	pairs := must.M1(rt.ReplicaGroups(must.M1(replicas.NewGrouping(4, 1, 2))))
	gathered := must.M1(rt.AllGather(seq, x, all, shapes.Make(dtypes.Float32, 32), nil))
	_ = must.M1(rt.AllToAll(seq, gathered, pairs, lowering.CollectiveOptions{"method": "ring"}))
	require.Equal(t, 3, seq.Len())
	want := `func.func @main(%arg0: tensor<8xf32>) {
  %1 = "stablehlo.all_gather"(%arg0) {all_gather_dim = 0, replica_groups = dense<[[0, 1, 2, 3]]> : tensor<1x4xi64>} : (tensor<8xf32>) -> tensor<32xf32>
  %2 = "stablehlo.all_to_all"(%1) {split_dimension = 0, concat_dimension = 0, split_count = 2, replica_groups = dense<[[0, 1], [2, 3]]> : tensor<2x2xi64>, options = {method = "ring"}} : (tensor<32xf32>) -> tensor<32xf32>
}
`
	require.Equal(t, want, seq.(*Program).String())

	// Parameters out of order and foreign handles are rejected.
	_, err := rt.Parameter(seq, 3, shapes.Make(dtypes.Float32))
	require.Error(t, err)
	other := rt.NewSequence("other")
	_, err = rt.AllToAll(other, gathered, pairs, nil)
	require.Error(t, err)
}
