// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"fmt"
	"testing"

	"github.com/gomlx/collectives/pkg/core/graph"
	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	shape shapes.Shape
	name  string
}

func (h *fakeHandle) Shape() shapes.Shape { return h.shape }

type fakeSequence struct {
	name         string
	instructions []string
}

func (s *fakeSequence) Name() string { return s.name }
func (s *fakeSequence) Len() int     { return len(s.instructions) }

// fakeRuntime records the instructions as strings.
type fakeRuntime struct {
	rejectGroups   error
	wrongShape     bool
	receivedGroups []GroupDescriptor
	receivedOpts   []CollectiveOptions
}

func (rt *fakeRuntime) NewSequence(name string) Sequence { return &fakeSequence{name: name} }

func (rt *fakeRuntime) add(seq Sequence, shape shapes.Shape, format string, args ...any) TensorHandle {
	s := seq.(*fakeSequence)
	h := &fakeHandle{shape: shape, name: fmt.Sprintf("%%%d", len(s.instructions))}
	s.instructions = append(s.instructions, fmt.Sprintf("%s = ", h.name)+fmt.Sprintf(format, args...))
	return h
}

func (rt *fakeRuntime) Parameter(seq Sequence, index int, shape shapes.Shape) (TensorHandle, error) {
	return rt.add(seq, shape, "parameter(%d)", index), nil
}

func (rt *fakeRuntime) ReplicaGroups(grouping replicas.Grouping) (GroupDescriptor, error) {
	if rt.rejectGroups != nil {
		return nil, rt.rejectGroups
	}
	return grouping.Groups(), nil
}

func (rt *fakeRuntime) AllGather(seq Sequence, in TensorHandle, groups GroupDescriptor, outShape shapes.Shape,
	opts CollectiveOptions) (TensorHandle, error) {
	rt.receivedGroups = append(rt.receivedGroups, groups)
	rt.receivedOpts = append(rt.receivedOpts, opts)
	if rt.wrongShape {
		outShape = in.Shape()
	}
	return rt.add(seq, outShape, "all_gather(%s, %v)", in.(*fakeHandle).name, groups), nil
}

func (rt *fakeRuntime) AllToAll(seq Sequence, in TensorHandle, groups GroupDescriptor,
	opts CollectiveOptions) (TensorHandle, error) {
	rt.receivedGroups = append(rt.receivedGroups, groups)
	rt.receivedOpts = append(rt.receivedOpts, opts)
	return rt.add(seq, in.Shape(), "all_to_all(%s, %v)", in.(*fakeHandle).name, groups), nil
}

func buildGraph(t *testing.T) (g *graph.Graph, x, gathered, exchanged, grad *graph.Tensor) {
	sess := must.M1(session.NewWithConfig("replicas=4,collective.method=ring"))
	g = graph.New("test", sess)
	x = g.Parameter("x", shapes.MakeInfo(dtypes.Float32, 8))
	pairs := must.M1(replicas.NewGrouping(4, 1, 2))
	gathered = must.M1(graph.AllGather(x, replicas.AllReplicas(4), "gather", nil))
	exchanged = must.M1(graph.AllToAll(gathered, pairs, "exchange"))
	producer, _ := exchanged.Producer()
	grads := must.M1(g.Gradient(producer, exchanged))
	return g, x, gathered, exchanged, grads[0]
}

func TestLower(t *testing.T) {
	g, x, gathered, exchanged, grad := buildGraph(t)
	rt := &fakeRuntime{}
	p, err := Lower(g, rt)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, p.ID)
	seq := p.Sequence.(*fakeSequence)
	require.Equal(t, []string{
		"%0 = parameter(0)",
		"%1 = all_gather(%0, [[0 1 2 3]])",
		"%2 = all_to_all(%1, [[0 1] [2 3]])",
		"%3 = all_to_all(%2, [[0 1] [2 3]])",
	}, seq.instructions)
	require.Equal(t, "test", seq.Name())
	require.Equal(t, []int{8}, p.Handle(x).Shape().Dimensions)
	require.Equal(t, []int{32}, p.Handle(gathered).Shape().Dimensions)
	require.Equal(t, []int{32}, p.Handle(exchanged).Shape().Dimensions)
	require.Equal(t, []int{32}, p.Handle(grad).Shape().Dimensions)
	for _, opts := range rt.receivedOpts {
		require.Equal(t, CollectiveOptions{"method": "ring"}, opts)
	}

	// The grad variant uses the same lowering as AllToAll.
	gradNode, _ := grad.Producer()
	exchangeNode, _ := exchanged.Producer()
	require.IsType(t, p.Lowerer(exchangeNode), p.Lowerer(gradNode))
	require.Equal(t, ops.OpTypeAllToAllGrad, p.Lowerer(gradNode).Op().Type())
}

func TestLowerErrors(t *testing.T) {
	g, _, _, _, _ := buildGraph(t)

	// Runtime rejecting the groups: error is propagated.
	rejection := errors.New("unsupported replica groups")
	_, err := Lower(g, &fakeRuntime{rejectGroups: rejection})
	require.Error(t, err)
	require.Same(t, rejection, errors.Cause(err))
	require.ErrorContains(t, err, `"gather"`)

	// Runtime returning a different shape than the one inferred.
	_, err = Lower(g, &fakeRuntime{wrongShape: true})
	require.ErrorContains(t, err, "but the op inferred")

	// Missing lowerer.
	_, err = Lower(g, &fakeRuntime{}, WithLowerers(NewLowererRegistry(nil)))
	require.ErrorContains(t, err, "no lowering registered")
}

func TestVerifyOp(t *testing.T) {
	g := replicas.AllReplicas(2)
	fwd := ops.NewAllToAll(g, ops.Settings{Name: "fwd"})
	grad := ops.NewAllToAllGrad(g, ops.Settings{Name: "grad"})
	gather := ops.NewAllGather(g, ops.Settings{Name: "gather"})

	_, err := newAllToAllLowerer(fwd)
	require.NoError(t, err)
	_, err = newAllToAllGradLowerer(grad)
	require.NoError(t, err)
	_, err = newAllToAllGradLowerer(fwd)
	require.ErrorContains(t, err, "ReplicatedAllToAllGrad")
	_, err = newAllToAllLowerer(grad)
	require.Error(t, err)
	_, err = newAllGatherLowerer(fwd)
	require.Error(t, err)
	_, err = newAllGatherLowerer(gather)
	require.NoError(t, err)
	_, err = newAllGatherLowerer(nil)
	require.Error(t, err)
}

func TestUnwind(t *testing.T) {
	g := replicas.AllReplicas(4)
	lowerers := DefaultLowerers()
	fwd := must.M1(lowerers.Lowerer(ops.NewAllToAll(g, ops.Settings{Name: "fwd"})))
	grad := must.M1(lowerers.Lowerer(ops.NewAllToAllGrad(g, ops.Settings{Name: "grad"})))
	gather := must.M1(lowerers.Lowerer(ops.NewAllGather(g, ops.Settings{Name: "gather"})))

	for _, l := range []OpLowerer{fwd, grad} {
		require.Equal(t, CanUnwind, l.InputCreatorType(0))
		h := &fakeHandle{shape: shapes.Make(dtypes.Float16, 4, 6)}
		unwound, err := l.UnwindTensorLayout(h, 0, 0)
		require.NoError(t, err)
		require.Same(t, h, unwound)

		regMap := must.M1(l.UnwindRegion(0, 0))
		r := must.M1(NewRegion([]int{1, 2}, []int{3, 6}))
		regions := regMap(r)
		require.Len(t, regions, 1)
		require.True(t, r.Equal(regions[0]))
	}
	require.Equal(t, Deadend, gather.InputCreatorType(0))
	_, err := gather.UnwindTensorLayout(&fakeHandle{}, 0, 0)
	require.Error(t, err)

	// Chain: AllToAll -> AllToAllGrad: layout and region flow back unchanged.
	h := &fakeHandle{shape: shapes.Make(dtypes.Int32, 16)}
	r := FullRegion(h.Shape())
	unwound, regions, err := Unwind([]UnwindStep{{Lowerer: fwd}, {Lowerer: grad}}, h, r)
	require.NoError(t, err)
	require.Same(t, h, unwound)
	require.Equal(t, []Region{r}, regions)

	// Gather stops the propagation.
	_, _, err = Unwind([]UnwindStep{{Lowerer: gather}, {Lowerer: fwd}}, h, r)
	require.ErrorContains(t, err, "Deadend")
}

func TestRegion(t *testing.T) {
	r := FullRegion(shapes.Make(dtypes.Float32, 2, 3))
	require.Equal(t, 6, r.NumElements())
	require.Equal(t, 2, r.Rank())
	require.False(t, r.IsEmpty())
	require.Equal(t, "Region{[0 0], [2 3]}", r.String())
	require.True(t, must.M1(NewRegion([]int{1}, []int{1})).IsEmpty())
	_, err := NewRegion([]int{2}, []int{1})
	require.Error(t, err)
	_, err = NewRegion([]int{0, 0}, []int{1})
	require.Error(t, err)
}
