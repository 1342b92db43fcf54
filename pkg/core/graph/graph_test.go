// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strings"
	"testing"

	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone(t *testing.T) {
	g := newTestGraph(t, 4)
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Int32, 8))
	y := must.M1(AllGather(x, replicas.AllReplicas(4), "gather", nil))
	_ = must.M1(AllToAll(y, replicas.AllReplicas(4), "a2a"))

	g2 := g.Clone()
	require.Equal(t, g.NumTensors(), g2.NumTensors())
	require.Len(t, g2.Nodes(), 2)
	require.Len(t, g2.Parameters(), 1)
	for ii, n := range g.Nodes() {
		n2 := g2.Nodes()[ii]
		require.NotSame(t, n.Op(), n2.Op())
		require.Equal(t, n.Op().Type(), n2.Op().Type())
		require.Equal(t, n.Input(0).ID(), n2.Input(0).ID())
		require.NotSame(t, n.Input(0), n2.Input(0))
		producer, _ := n2.Output(0).Producer()
		require.Same(t, n2, producer)
	}
	require.Equal(t, g.String(), g2.String())

	// New ops on the clone don't change the original.
	_ = must.M1(AllToAll(g2.Tensor(y.ID()), replicas.AllReplicas(4), "more"))
	require.Len(t, g.Nodes(), 2)
	require.Len(t, g2.Nodes(), 3)
}

func TestString(t *testing.T) {
	g := newTestGraph(t, 2)
	x := g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 4))
	_ = must.M1(AllGather(x, replicas.AllReplicas(2), "gather", nil))
	str := g.String()
	assert.True(t, strings.HasPrefix(str, `Graph "TestString" (replicas=2, 1 nodes, 48 B):`), str)
	assert.Contains(t, str, `#0: Parameter "x" (Float32)[4]`)
	assert.Contains(t, str, `#1 = AllGather("gather")[replicas=2, groups=1 x 2] -> (Float32)[8] (32 B)(#0)`)
}
