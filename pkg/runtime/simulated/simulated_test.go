// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simulated_test

import (
	"context"
	"testing"

	"github.com/gomlx/collectives/internal/collectivetest"
	"github.com/gomlx/collectives/pkg/core/analysis/replicaequal"
	"github.com/gomlx/collectives/pkg/core/graph"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/collectives/pkg/lowering"
	. "github.com/gomlx/collectives/pkg/runtime/simulated"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllGather(t *testing.T) {
	g := collectivetest.NewGraph(t, 4)
	xShape := shapes.Make(dtypes.Int32, 2)
	x := g.Parameter("x", shapes.TensorInfo{Shape: xShape})
	all := must.M1(graph.AllGather(x, replicas.AllReplicas(4), "all", nil))
	pairs := must.M1(graph.AllGather(x, must.M1(replicas.NewGrouping(4, 1, 2)), "pairs", nil))
	orthogonal := must.M1(graph.AllGather(x, must.M1(replicas.NewGrouping(4, 2, 2)), "orthogonal", nil))
	square := must.M1(graph.AllGatherWithOutput(x, must.M1(replicas.NewGrouping(4, 1, 2)), "square",
		shapes.MakeInfo(dtypes.Int32, 2, 2)))

	program, result := collectivetest.Run(t, g, collectivetest.Transpose(collectivetest.IotaInputs(t, 4, xShape)))
	require.Equal(t, [][]float64{
		{0, 1, 100, 101, 200, 201, 300, 301},
		{0, 1, 100, 101, 200, 201, 300, 301},
		{0, 1, 100, 101, 200, 201, 300, 301},
		{0, 1, 100, 101, 200, 201, 300, 301},
	}, collectivetest.Values(t, program, result, all))
	require.Equal(t, [][]float64{
		{0, 1, 100, 101},
		{0, 1, 100, 101},
		{200, 201, 300, 301},
		{200, 201, 300, 301},
	}, collectivetest.Values(t, program, result, pairs))
	require.Equal(t, [][]float64{
		{0, 1, 200, 201},
		{100, 101, 300, 301},
		{0, 1, 200, 201},
		{100, 101, 300, 301},
	}, collectivetest.Values(t, program, result, orthogonal))
	b := must.M1(result.Get(3, program.Handle(square)))
	require.Equal(t, []int{2, 2}, b.Shape().Dimensions)
	require.Equal(t, []int32{200, 201, 300, 301}, b.Flat())
}

// TestReplicaEqualExecution checks that tensors found replica-equal by the analysis do hold the same
// values on every replica when executed.
func TestReplicaEqualExecution(t *testing.T) {
	for _, groupSize := range []int{1, 2, 4} {
		g := collectivetest.NewGraph(t, 4)
		xShape := shapes.Make(dtypes.Float32, 8)
		x := g.Parameter("x", shapes.TensorInfo{Shape: xShape})
		grouping := must.M1(replicas.NewGrouping(4, 1, groupSize))
		gathered := must.M1(graph.AllGather(x, grouping, "gather", nil))
		exchanged := must.M1(graph.AllToAll(gathered, grouping, "exchange"))
		analysis := must.M1(replicaequal.Analyze(g, nil, nil))
		program, result := collectivetest.Run(t, g, collectivetest.Transpose(collectivetest.IotaInputs(t, 4, xShape)))

		for _, tensor := range []*graph.Tensor{x, gathered, exchanged} {
			values := collectivetest.Values(t, program, result, tensor)
			allEqual := true
			for replica := 1; replica < 4; replica++ {
				allEqual = allEqual && assert.ObjectsAreEqual(values[0], values[replica])
			}
			if analysis.IsEqual(tensor) {
				require.Truef(t, allEqual, "group size %d: %s found replica-equal, but replicas hold %v",
					groupSize, tensor, values)
			}
		}
		require.Equal(t, groupSize == 4, analysis.IsEqual(gathered))
	}
}

func TestAllToAll(t *testing.T) {
	g := collectivetest.NewGraph(t, 4)
	xShape := shapes.Make(dtypes.Uint32, 4)
	x := g.Parameter("x", shapes.TensorInfo{Shape: xShape})
	all := must.M1(graph.AllToAll(x, replicas.AllReplicas(4), "all"))
	pairs := must.M1(replicas.NewGrouping(4, 1, 2))
	exchanged := must.M1(graph.AllToAll(x, pairs, "pairs"))
	producer, _ := exchanged.Producer()
	// The gradient of the exchange is the exchange itself: it takes the values back.
	back := must.M1(g.Gradient(producer, exchanged))[0]

	program, result := collectivetest.Run(t, g, collectivetest.Transpose(collectivetest.IotaInputs(t, 4, xShape)))
	require.Equal(t, [][]float64{
		{0, 100, 200, 300},
		{1, 101, 201, 301},
		{2, 102, 202, 302},
		{3, 103, 203, 303},
	}, collectivetest.Values(t, program, result, all))
	require.Equal(t, [][]float64{
		{0, 1, 100, 101},
		{2, 3, 102, 103},
		{200, 201, 300, 301},
		{202, 203, 302, 303},
	}, collectivetest.Values(t, program, result, exchanged))
	require.Equal(t, collectivetest.Values(t, program, result, x), collectivetest.Values(t, program, result, back))
}

func TestRoundTrip(t *testing.T) {
	for _, grouping := range []replicas.Grouping{
		replicas.AllReplicas(8),
		must.M1(replicas.NewGrouping(8, 1, 2)),
		must.M1(replicas.NewGrouping(8, 2, 4)),
		must.M1(replicas.NewGrouping(8, 4, 2)),
		must.M1(replicas.NewGrouping(8, 1, 1)),
	} {
		g := collectivetest.NewGraph(t, 8)
		xShape := shapes.Make(dtypes.Float16, 2, 8)
		x := g.Parameter("x", shapes.TensorInfo{Shape: xShape})
		once := must.M1(graph.AllToAll(x, grouping, "once"))
		twice := must.M1(graph.AllToAll(once, grouping, "twice"))
		program, result := collectivetest.Run(t, g, collectivetest.Transpose(collectivetest.IotaInputs(t, 8, xShape)))
		require.Equalf(t, collectivetest.Values(t, program, result, x), collectivetest.Values(t, program, result, twice),
			"round trip over %s", grouping)
	}
}

func TestLoweringErrors(t *testing.T) {
	rt := must.M1(New(8, WithLegacyGroupsOnly()))
	g := collectivetest.NewGraph(t, 8)
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 4))
	_ = must.M1(graph.AllGather(x, must.M1(replicas.NewGrouping(8, 2, 2)), "gather", nil))
	_, err := lowering.Lower(g, rt)
	require.ErrorContains(t, err, "legacy")
	require.ErrorContains(t, err, `"gather"`)

	// Legacy groupings are accepted.
	g = collectivetest.NewGraph(t, 8)
	x = g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 4))
	_ = must.M1(graph.AllGather(x, must.M1(replicas.NewGrouping(8, 2, 4)), "gather", nil))
	_, err = lowering.Lower(g, rt)
	require.NoError(t, err)

	// Explicit shape not matching the gathered size.
	g = collectivetest.NewGraph(t, 8)
	x = g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 4))
	_ = must.M1(graph.AllGatherWithOutput(x, replicas.AllReplicas(8), "gather", shapes.MakeInfo(dtypes.Float32, 5)))
	_, err = lowering.Lower(g, rt)
	require.Error(t, err)

	// Exchange of a value not divisible in group size chunks.
	g = collectivetest.NewGraph(t, 8)
	x = g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 3))
	_ = must.M1(graph.AllToAll(x, replicas.AllReplicas(8), "exchange"))
	_, err = lowering.Lower(g, rt)
	require.ErrorContains(t, err, "equal chunks")

	// Runtime with a different number of replicas.
	_, err = lowering.Lower(g, must.M1(New(4)))
	require.Error(t, err)
	_, err = New(0)
	require.Error(t, err)
}

func TestExecutionErrors(t *testing.T) {
	g := collectivetest.NewGraph(t, 4)
	xShape := shapes.Make(dtypes.Int32, 4)
	x := g.Parameter("x", shapes.TensorInfo{Shape: xShape})
	_ = must.M1(graph.AllGather(x, replicas.AllReplicas(4), "gather", nil))
	rt := must.M1(New(4))
	program := must.M1(lowering.Lower(g, rt))
	inputs := collectivetest.Transpose(collectivetest.IotaInputs(t, 4, xShape))

	// Wrong number of replicas or parameters.
	_, err := rt.Execute(context.Background(), program.Sequence, inputs[:3])
	require.Error(t, err)
	_, err = rt.Execute(context.Background(), program.Sequence, [][]*Buffer{nil, nil, nil, nil})
	require.Error(t, err)

	// One replica with a bad input: the others waiting on the gather are released.
	bad := collectivetest.Transpose(collectivetest.IotaInputs(t, 4, xShape))
	bad[2][0] = must.M1(FromValues(shapes.Make(dtypes.Int32, 2), []int{1, 2}))
	_, err = rt.Execute(context.Background(), program.Sequence, bad)
	require.ErrorContains(t, err, "replica 2")

	// Cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rt.Execute(ctx, program.Sequence, inputs)
	require.ErrorIs(t, err, context.Canceled)

	// Sequence from another runtime.
	_, err = must.M1(New(4)).Execute(context.Background(), program.Sequence, inputs)
	require.Error(t, err)
}

func TestBuffer(t *testing.T) {
	b := must.M1(FromValues(shapes.Make(dtypes.Float16, 3), []float64{0.5, -1, 2}))
	require.Equal(t, []float64{0.5, -1, 2}, b.Float64s())
	_, err := NewBuffer(shapes.Make(dtypes.Float32, 3), []float32{1})
	require.Error(t, err)
	_, err = NewBuffer(shapes.Make(dtypes.Float32, 1), []int32{1})
	require.Error(t, err)
	_, err = FromValues(shapes.Make(dtypes.Float64, 1), []int{1})
	require.Error(t, err)
}
