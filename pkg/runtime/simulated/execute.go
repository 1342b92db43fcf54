// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simulated

import (
	"context"
	"sync"
	"time"

	"github.com/gomlx/collectives/pkg/lowering"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Result holds the values computed by each replica in an execution.
type Result struct {
	program *Program
	values  [][]*Buffer // [replica][instruction]
}

// Get returns the value of the handle h on the given replica.
func (r *Result) Get(replica int, h lowering.TensorHandle) (*Buffer, error) {
	v, ok := h.(*value)
	if !ok || v.program != r.program {
		return nil, errors.Errorf("tensor handle doesn't belong to program %q", r.program.name)
	}
	if replica < 0 || replica >= len(r.values) {
		return nil, errors.Errorf("invalid replica %d, program was executed on %d replicas", replica, len(r.values))
	}
	return r.values[replica][v.index], nil
}

// meeting is where the members of one group meet for one collective instruction.
type meeting struct {
	contributions []*Buffer
	pending       int
	done          chan struct{}
}

// rendezvous synchronizes the replicas on the collective instructions.
type rendezvous struct {
	mu       sync.Mutex
	meetings map[[2]int]*meeting // Key is {instruction, group}.
}

// join contributes buffer to the meeting of (instrIdx, group) at position member, and waits for all the
// other members of the group to contribute theirs. It returns the contributions of all members, in group order.
func (r *rendezvous) join(ctx context.Context, instrIdx, group, member, groupSize int, buffer *Buffer) ([]*Buffer, error) {
	key := [2]int{instrIdx, group}
	r.mu.Lock()
	m, found := r.meetings[key]
	if !found {
		m = &meeting{contributions: make([]*Buffer, groupSize), pending: groupSize, done: make(chan struct{})}
		r.meetings[key] = m
	}
	m.contributions[member] = buffer
	m.pending--
	if m.pending == 0 {
		close(m.done)
	}
	r.mu.Unlock()

	select {
	case <-m.done:
		return m.contributions, nil
	case <-ctx.Done():
		return nil, errors.Wrapf(context.Cause(ctx), "waiting for the other members of group %d on instruction #%d",
			group, instrIdx)
	}
}

// Execute runs the program on every replica concurrently. inputs[replica] holds the parameters of the
// replica, in order.
//
// Collective instructions block each replica until all the members of its group reach the same
// instruction. If any replica fails, or ctx is cancelled, the execution is aborted and the first error
// is returned.
func (rt *Runtime) Execute(ctx context.Context, seq lowering.Sequence, inputs [][]*Buffer) (*Result, error) {
	p, err := rt.program(seq)
	if err != nil {
		return nil, err
	}
	if len(inputs) != rt.numReplicas {
		return nil, errors.Errorf("program %q requires the inputs of %d replicas, got %d", p.name, rt.numReplicas, len(inputs))
	}
	for replica, params := range inputs {
		if len(params) != p.numParams {
			return nil, errors.Errorf("program %q requires %d parameters, replica %d got %d",
				p.name, p.numParams, replica, len(params))
		}
	}

	start := time.Now()
	result := &Result{program: p, values: make([][]*Buffer, rt.numReplicas)}
	r := &rendezvous{meetings: make(map[[2]int]*meeting)}
	eg, ctx := errgroup.WithContext(ctx)
	for replica := range rt.numReplicas {
		eg.Go(func() error {
			values, err := rt.executeReplica(ctx, p, r, replica, inputs[replica])
			if err != nil {
				return errors.WithMessagef(err, "replica %d", replica)
			}
			result.values[replica] = values
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.WithMessagef(err, "executing program %q", p.name)
	}
	klog.V(1).Infof("simulated: executed %q (%d instructions) on %d replicas in %s",
		p.name, len(p.instructions), rt.numReplicas, time.Since(start))
	return result, nil
}

func (rt *Runtime) executeReplica(ctx context.Context, p *Program, r *rendezvous, replica int, params []*Buffer) (
	[]*Buffer, error) {
	values := make([]*Buffer, len(p.instructions))
	for idx, instr := range p.instructions {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "before instruction #%d", idx)
		}
		switch instr.kind {
		case opParameter:
			param := params[instr.param]
			if param == nil || !param.shape.Equal(instr.shape) {
				return nil, errors.Errorf("parameter #%d must have shape %s, got %v", instr.param, instr.shape, param)
			}
			values[idx] = param

		case opAllGather, opAllToAll:
			grouping := instr.groups.Grouping
			group, member := grouping.GroupOf(replica), grouping.IndexInGroup(replica)
			contributions, err := r.join(ctx, idx, group, member, grouping.GroupSize(), values[instr.input])
			if err != nil {
				return nil, err
			}
			if instr.kind == opAllGather {
				values[idx], err = concatenate(instr.shape, contributions)
			} else {
				values[idx], err = chunks(instr.shape, contributions, member, grouping.GroupSize())
			}
			if err != nil {
				return nil, errors.WithMessagef(err, "instruction #%d", idx)
			}
		}
	}
	return values, nil
}
