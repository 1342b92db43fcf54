// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, numReplicas int) *Graph {
	sess, err := session.NewWithConfig("")
	require.NoError(t, err)
	return New(t.Name(), sess.WithReplicas(numReplicas))
}

func TestAllGather(t *testing.T) {
	g := newTestGraph(t, 4)
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 8))
	y, err := AllGather(x, replicas.AllReplicas(4), "gather", nil)
	require.NoError(t, err)
	require.Equal(t, shapes.MakeInfo(dtypes.Float32, 32), y.Info())
	producer, outIndex := y.Producer()
	require.Equal(t, 0, outIndex)
	require.Equal(t, ops.OpTypeAllGather, producer.Op().Type())
	require.Same(t, x, producer.Input(ops.AllGatherInIndex))
	require.False(t, producer.HasInput(ops.AllGatherCollectiveLinkedIndex))
	require.True(t, x.IsParameter())
	require.False(t, y.IsParameter())
	require.Equal(t, "gather:0", y.Name())

	// Linked input of any dtype.
	linked := g.Parameter("linked", shapes.MakeInfo(dtypes.Int64))
	z, err := AllGather(x, must.M1(replicas.NewGrouping(4, 1, 2)), "gather2", linked)
	require.NoError(t, err)
	require.Equal(t, shapes.MakeInfo(dtypes.Float32, 16), z.Info())
	producer, _ = z.Producer()
	require.True(t, producer.Op().(*ops.AllGather).IsConfigureOutputForReplicatedTensorSharding(producer))

	// Explicit output shape.
	w, err := AllGatherWithOutput(x, replicas.AllReplicas(4), "gather3", shapes.MakeInfo(dtypes.Int32, 4, 8))
	require.NoError(t, err)
	require.Equal(t, shapes.MakeInfo(dtypes.Float32, 4, 8), w.Info())
}

func TestInvalidGraph(t *testing.T) {
	g := newTestGraph(t, 4)
	var invalid *ops.InvalidGraphError

	// Unsupported dtype.
	x64 := g.Parameter("x64", shapes.MakeInfo(dtypes.Float64, 8))
	_, err := AllToAll(x64, replicas.AllReplicas(4), "a2a")
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "a2a", invalid.Op)
	require.Empty(t, g.Nodes())

	// Grouping not matching the graph's replicas.
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 8))
	_, err = AllToAll(x, replicas.AllReplicas(8), "a2a8")
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "a2a8", invalid.Op)
	_, err = g.AddOp(ops.NewAllGather(replicas.AllReplicas(8), ops.Settings{Name: "g8"}), x)
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "g8", invalid.Op)
	require.Empty(t, g.Nodes())

	// Missing required input.
	_, err = g.AddOp(ops.NewAllGather(replicas.AllReplicas(4), ops.Settings{Name: "nothing"}), nil, x)
	require.ErrorAs(t, err, &invalid)

	// Tensor from another graph.
	other := newTestGraph(t, 4)
	y := other.Parameter("y", shapes.MakeInfo(dtypes.Float32, 8))
	_, err = AllToAll(x, replicas.AllReplicas(4), "ok")
	require.NoError(t, err)
	_, err = g.AddOp(ops.NewAllToAll(replicas.AllReplicas(4), ops.Settings{Name: "foreign"}), y)
	require.ErrorAs(t, err, &invalid)

	// Must* versions panic, and Build converts the panic to an error.
	err = g.Build(func() {
		_ = MustAllToAll(x64, replicas.AllReplicas(4), "must")
	})
	require.ErrorAs(t, err, &invalid)
	require.NoError(t, g.Build(func() {
		_ = MustAllGather(x, replicas.AllReplicas(4), "must")
	}))
}

func TestAddOpByID(t *testing.T) {
	g := newTestGraph(t, 8)
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Float16, 4, 2))
	node, err := g.AddOpByID(ops.AllToAllID, map[string]any{
		replicas.AttrCommGroup: []int{int(replicas.CommGroupConsecutive), 2},
	}, ops.Settings{}, x)
	require.NoError(t, err)
	require.Equal(t, "ReplicatedAllToAll", node.Op().Name())
	require.Equal(t, x.Info(), node.Output(0).Info())
	require.Equal(t, [][]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}},
		node.Op().(ops.CollectiveOp).ReplicaGrouping().Groups())

	_, err = g.AddOpByID(ops.AllToAllID, map[string]any{"unknown": 1}, ops.Settings{Name: "bad"}, x)
	require.Error(t, err)
}

func TestGradient(t *testing.T) {
	g := newTestGraph(t, 4)
	grouping := must.M1(replicas.NewGrouping(4, 2, 2))
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 6))
	y := must.M1(AllToAll(x, grouping, "a2a"))
	yGrad := g.Parameter("y_grad", y.Info())
	producer, _ := y.Producer()
	grads, err := g.Gradient(producer, yGrad)
	require.NoError(t, err)
	require.Len(t, grads, 1)
	require.Equal(t, x.Info(), grads[0].Info())
	gradNode, _ := grads[0].Producer()
	require.Equal(t, ops.OpTypeAllToAllGrad, gradNode.Op().Type())
	require.True(t, grouping.Equal(gradNode.Op().(ops.CollectiveOp).ReplicaGrouping()))
	require.Same(t, yGrad, gradNode.Input(0))

	// Wrong number of output gradients.
	_, err = g.Gradient(producer)
	require.Error(t, err)

	// AllGather has no gradient.
	z := must.M1(AllGather(x, grouping, "gather", nil))
	producer, _ = z.Producer()
	_, err = g.Gradient(producer, g.Parameter("z_grad", z.Info()))
	require.Error(t, err)
}
