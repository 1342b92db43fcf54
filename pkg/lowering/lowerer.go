// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lowering turns a shape-resolved graph of collective ops into instructions of an external
// collective Runtime, and implements the layout-unwind contract of each op.
//
// Each op kind has an OpLowerer, created by a read-only LowererRegistry keyed by the op identifier. The
// lowerer of AllToAllGrad is the one of AllToAll: they only differ on the identifier they verify.
package lowering

import (
	"sync"

	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/pkg/errors"
)

//go:generate go tool enumer -type=InputCreatorType -output=gen_inputcreatortype_enumer.go lowerer.go

// InputCreatorType tells how the layout of an op's input may be chosen.
type InputCreatorType int

const (
	// Deadend inputs have their layout chosen independently of the op's consumers.
	Deadend InputCreatorType = iota

	// CanUnwind inputs may have their layout chosen by propagating backward the layout preferred by the
	// consumers of the op's output (see OpLowerer.UnwindTensorLayout).
	CanUnwind
)

// OpLowerer lowers one op instance.
type OpLowerer interface {
	// Op being lowered.
	Op() ops.Op

	// Grow appends the op's instructions to seq, reading its inputs from and binding its outputs to ctx.
	Grow(ctx *Context, seq Sequence) error

	// InputCreatorType of the input index.
	InputCreatorType(inIndex int) InputCreatorType

	// UnwindTensorLayout returns the layout for input inIndex, given the layout of output outIndex.
	// It's only valid for CanUnwind inputs.
	UnwindTensorLayout(t TensorHandle, inIndex, outIndex int) (TensorHandle, error)

	// UnwindRegion returns the mapping from regions of output outIndex to regions of input inIndex.
	// It's only valid for CanUnwind inputs.
	UnwindRegion(inIndex, outIndex int) (RegMap, error)
}

// LowererCreator creates the OpLowerer of an op. It returns an error if op is not of the expected kind.
type LowererCreator func(op ops.Op) (OpLowerer, error)

// LowererRegistry maps op identifiers to the creators of their lowerers. It's read-only once created.
type LowererRegistry struct {
	creators map[ops.Identifier]LowererCreator
}

// NewLowererRegistry creates a registry with the given creators.
func NewLowererRegistry(creators map[ops.Identifier]LowererCreator) *LowererRegistry {
	r := &LowererRegistry{creators: make(map[ops.Identifier]LowererCreator, len(creators))}
	for id, creator := range creators {
		r.creators[id] = creator
	}
	return r
}

// DefaultLowerers returns the registry with the lowerers of the collective ops. It's built once, on first use.
var DefaultLowerers = sync.OnceValue(func() *LowererRegistry {
	return NewLowererRegistry(map[ops.Identifier]LowererCreator{
		ops.AllGatherID:    newAllGatherLowerer,
		ops.AllToAllID:     newAllToAllLowerer,
		ops.AllToAllGradID: newAllToAllGradLowerer,
	})
})

// Lowerer creates the lowerer for op.
func (r *LowererRegistry) Lowerer(op ops.Op) (OpLowerer, error) {
	creator, found := r.creators[op.Identifier()]
	if !found {
		return nil, errors.Errorf("no lowering registered for op %q (%s)", op.Name(), op.Identifier())
	}
	return creator(op)
}

// verifyOp checks that op has the expected identifier and returns it as a CollectiveOp.
func verifyOp(op ops.Op, id ops.Identifier) (ops.CollectiveOp, error) {
	if op == nil {
		return nil, errors.Errorf("cannot lower nil op, expected %s", id)
	}
	if op.Identifier() != id {
		return nil, errors.Errorf("lowerer for %s cannot lower op %q with identifier %s", id, op.Name(), op.Identifier())
	}
	cOp, ok := op.(ops.CollectiveOp)
	if !ok {
		return nil, errors.Errorf("op %q (%s) is not a collective op", op.Name(), id)
	}
	return cOp, nil
}

// collectiveLowerer holds what is common to the lowerers of collective ops.
type collectiveLowerer struct {
	op ops.CollectiveOp
}

// Op implements OpLowerer.
func (l *collectiveLowerer) Op() ops.Op { return l.op }

// groups translates the op's grouping with the runtime.
func (l *collectiveLowerer) groups(ctx *Context) (GroupDescriptor, error) {
	groups, err := ctx.runtime.ReplicaGroups(l.op.ReplicaGrouping())
	if err != nil {
		return nil, errors.WithMessagef(err, "lowering %s %q", l.op.Type(), l.op.Name())
	}
	return groups, nil
}

// allGatherLowerer lowers AllGather.
type allGatherLowerer struct {
	collectiveLowerer
}

func newAllGatherLowerer(op ops.Op) (OpLowerer, error) {
	cOp, err := verifyOp(op, ops.AllGatherID)
	if err != nil {
		return nil, err
	}
	return &allGatherLowerer{collectiveLowerer{op: cOp}}, nil
}

// Grow implements OpLowerer.
func (l *allGatherLowerer) Grow(ctx *Context, seq Sequence) error {
	in, err := ctx.InTensor(ops.AllGatherInIndex)
	if err != nil {
		return err
	}
	groups, err := l.groups(ctx)
	if err != nil {
		return err
	}
	outShape := l.op.OutInfo(ops.AllGatherOutIndex).Shape
	out, err := ctx.runtime.AllGather(seq, in, groups, outShape, ctx.options)
	if err != nil {
		return errors.WithMessagef(err, "lowering AllGather %q", l.op.Name())
	}
	return ctx.SetOutTensor(ops.AllGatherOutIndex, out)
}

// InputCreatorType implements OpLowerer: the gathered output has a different layout than the shards.
func (l *allGatherLowerer) InputCreatorType(int) InputCreatorType { return Deadend }

// UnwindTensorLayout implements OpLowerer.
func (l *allGatherLowerer) UnwindTensorLayout(_ TensorHandle, inIndex, _ int) (TensorHandle, error) {
	return nil, errors.Errorf("AllGather %q: input #%d layout can't be unwound", l.op.Name(), inIndex)
}

// UnwindRegion implements OpLowerer.
func (l *allGatherLowerer) UnwindRegion(inIndex, _ int) (RegMap, error) {
	return nil, errors.Errorf("AllGather %q: input #%d regions can't be unwound", l.op.Name(), inIndex)
}

// allToAllLowerer lowers AllToAll and AllToAllGrad.
type allToAllLowerer struct {
	collectiveLowerer
}

func newAllToAllLowerer(op ops.Op) (OpLowerer, error) {
	cOp, err := verifyOp(op, ops.AllToAllID)
	if err != nil {
		return nil, err
	}
	return &allToAllLowerer{collectiveLowerer{op: cOp}}, nil
}

func newAllToAllGradLowerer(op ops.Op) (OpLowerer, error) {
	cOp, err := verifyOp(op, ops.AllToAllGradID)
	if err != nil {
		return nil, err
	}
	return &allToAllLowerer{collectiveLowerer{op: cOp}}, nil
}

// Grow implements OpLowerer.
func (l *allToAllLowerer) Grow(ctx *Context, seq Sequence) error {
	in, err := ctx.InTensor(ops.AllToAllInIndex)
	if err != nil {
		return err
	}
	groups, err := l.groups(ctx)
	if err != nil {
		return err
	}
	out, err := ctx.runtime.AllToAll(seq, in, groups, ctx.options)
	if err != nil {
		return errors.WithMessagef(err, "lowering %s %q", l.op.Type(), l.op.Name())
	}
	return ctx.SetOutTensor(ops.AllToAllOutIndex, out)
}

// InputCreatorType implements OpLowerer.
func (l *allToAllLowerer) InputCreatorType(int) InputCreatorType { return CanUnwind }

// UnwindTensorLayout implements OpLowerer: elements are moved between replicas, but the layout within a
// replica is preserved, so the input takes the layout of the output.
func (l *allToAllLowerer) UnwindTensorLayout(t TensorHandle, _, _ int) (TensorHandle, error) {
	return t, nil
}

// UnwindRegion implements OpLowerer: a region of the output maps to the same region of the input.
func (l *allToAllLowerer) UnwindRegion(_, _ int) (RegMap, error) {
	return IdentityRegMap, nil
}

// UnwindStep is one step of a backward layout propagation: from output OutIndex to input InIndex of
// the op lowered by Lowerer.
type UnwindStep struct {
	Lowerer           OpLowerer
	InIndex, OutIndex int
}

// Unwind propagates a layout (given by the tensor t) and a region backward through the steps, starting
// from the last one. It returns the layout and regions for the input of the first step.
//
// It fails at the first step whose input is not CanUnwind.
func Unwind(steps []UnwindStep, t TensorHandle, r Region) (TensorHandle, []Region, error) {
	regions := []Region{r}
	for ii := len(steps) - 1; ii >= 0; ii-- {
		step := steps[ii]
		op := step.Lowerer.Op()
		if kind := step.Lowerer.InputCreatorType(step.InIndex); kind != CanUnwind {
			return nil, nil, errors.Errorf("can't unwind layout through op %q (%s): input #%d is %s",
				op.Name(), op.Type(), step.InIndex, kind)
		}
		var err error
		t, err = step.Lowerer.UnwindTensorLayout(t, step.InIndex, step.OutIndex)
		if err != nil {
			return nil, nil, err
		}
		regMap, err := step.Lowerer.UnwindRegion(step.InIndex, step.OutIndex)
		if err != nil {
			return nil, nil, err
		}
		var next []Region
		for _, region := range regions {
			next = append(next, regMap(region)...)
		}
		regions = next
	}
	return t, regions, nil
}
