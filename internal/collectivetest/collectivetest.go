// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package collectivetest holds test utilities for packages that build, lower and execute collective graphs.
package collectivetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/gomlx/collectives/pkg/core/graph"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/collectives/pkg/lowering"
	"github.com/gomlx/collectives/pkg/runtime/simulated"
	"github.com/stretchr/testify/require"
)

// NewGraph creates an empty graph for numReplicas replicas, named after the test.
func NewGraph(t testing.TB, numReplicas int, collectiveOptions ...string) *graph.Graph {
	config := fmt.Sprintf("replicas=%d", numReplicas)
	for _, opt := range collectiveOptions {
		config += ",collective." + opt
	}
	sess, err := session.NewWithConfig(config)
	require.NoError(t, err)
	return graph.New(t.Name(), sess)
}

// IotaInputs creates the values of one parameter of the given shape for every replica: replica r holds
// the values [r*100, r*100+1, ...].
func IotaInputs(t testing.TB, numReplicas int, shape shapes.Shape) []*simulated.Buffer {
	inputs := make([]*simulated.Buffer, numReplicas)
	for replica := range numReplicas {
		values := make([]int, shape.Size())
		for ii := range values {
			values[ii] = replica*100 + ii
		}
		b, err := simulated.FromValues(shape, values)
		require.NoError(t, err)
		inputs[replica] = b
	}
	return inputs
}

// Transpose converts per-parameter inputs ([param][replica]) to per-replica inputs ([replica][param]),
// as taken by simulated.Runtime.Execute.
func Transpose(perParam ...[]*simulated.Buffer) [][]*simulated.Buffer {
	if len(perParam) == 0 {
		return nil
	}
	perReplica := make([][]*simulated.Buffer, len(perParam[0]))
	for replica := range perReplica {
		for _, values := range perParam {
			perReplica[replica] = append(perReplica[replica], values[replica])
		}
	}
	return perReplica
}

// Run lowers g into a new simulated runtime and executes it with the given per-replica inputs.
func Run(t testing.TB, g *graph.Graph, inputs [][]*simulated.Buffer, options ...simulated.Option) (
	*lowering.Program, *simulated.Result) {
	rt, err := simulated.New(g.NumReplicas(), options...)
	require.NoError(t, err)
	program, err := lowering.Lower(g, rt)
	require.NoError(t, err)
	result, err := rt.Execute(context.Background(), program.Sequence, inputs)
	require.NoError(t, err)
	return program, result
}

// Values returns the value of the tensor on each replica, converted to float64.
func Values(t testing.TB, program *lowering.Program, result *simulated.Result, tensor *graph.Tensor) [][]float64 {
	values := make([][]float64, program.Graph.NumReplicas())
	for replica := range values {
		b, err := result.Get(replica, program.Handle(tensor))
		require.NoError(t, err)
		values[replica] = b.Float64s()
	}
	return values
}
