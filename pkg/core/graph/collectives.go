// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/pkg/errors"
)

// AllGather adds an AllGather op over the grouping, and returns its gathered output.
//
// If linked is not nil, it's connected to the op's collective-linked input.
func AllGather(x *Tensor, grouping replicas.Grouping, name string, linked *Tensor) (*Tensor, error) {
	op := ops.NewAllGather(grouping, ops.Settings{Name: name})
	return addCollective(x, op, linked)
}

// AllGatherWithOutput is like AllGather, but with an explicit output shape (only its dimensions are used,
// the dtype is the one of x).
func AllGatherWithOutput(x *Tensor, grouping replicas.Grouping, name string, gathered shapes.TensorInfo) (*Tensor, error) {
	op := ops.NewAllGatherWithOutput(grouping, ops.Settings{Name: name}, gathered)
	return addCollective(x, op, nil)
}

// AllToAll adds an AllToAll op over the grouping, and returns its output.
func AllToAll(x *Tensor, grouping replicas.Grouping, name string) (*Tensor, error) {
	return addCollective(x, ops.NewAllToAll(grouping, ops.Settings{Name: name}), nil)
}

// MustAllGather is like AllGather, but panics on error.
func MustAllGather(x *Tensor, grouping replicas.Grouping, name string) *Tensor {
	return mustTensor(AllGather(x, grouping, name, nil))
}

// MustAllToAll is like AllToAll, but panics on error.
func MustAllToAll(x *Tensor, grouping replicas.Grouping, name string) *Tensor {
	return mustTensor(AllToAll(x, grouping, name))
}

func mustTensor(t *Tensor, err error) *Tensor {
	if err != nil {
		panic(err)
	}
	return t
}

func addCollective(x *Tensor, op ops.CollectiveOp, linked *Tensor) (*Tensor, error) {
	if x == nil {
		return nil, errors.Errorf("%s %q: nil input", op.Type(), op.Name())
	}
	inputs := []*Tensor{x}
	if linked != nil {
		inputs = append(inputs, linked)
	}
	node, err := x.graph.AddOp(op, inputs...)
	if err != nil {
		return nil, err
	}
	return node.Output(0), nil
}

// Gradient adds the gradient ops of node to the graph, given the gradients of its outputs, and returns
// the gradients of its inputs.
//
// The i-th gradient op created by the node's op (see ops.GradMaker) is fed with outputGrads[i], and its
// output is the gradient of the node's i-th input.
// It returns an error if the node's op doesn't define a gradient.
func (g *Graph) Gradient(node *Node, outputGrads ...*Tensor) ([]*Tensor, error) {
	if node == nil || node.graph != g {
		return nil, errors.Errorf("graph %q: Gradient of a node that doesn't belong to the graph", g.name)
	}
	maker, ok := node.op.(ops.GradMaker)
	if !ok {
		return nil, errors.Errorf("op %q (%s) doesn't define a gradient", node.op.Name(), node.op.Type())
	}
	gradOps := maker.GradOps()
	if len(outputGrads) != len(gradOps) {
		return nil, errors.Errorf("op %q (%s) requires %d output gradients, got %d",
			node.op.Name(), node.op.Type(), len(gradOps), len(outputGrads))
	}
	inputGrads := make([]*Tensor, len(gradOps))
	for ii, gradOp := range gradOps {
		gradNode, err := g.AddOp(gradOp, outputGrads[ii])
		if err != nil {
			return nil, errors.WithMessagef(err, "creating gradient of op %q", node.op.Name())
		}
		inputGrads[ii] = gradNode.Output(0)
	}
	return inputGrads, nil
}
