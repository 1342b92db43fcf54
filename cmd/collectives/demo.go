// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/gomlx/collectives/pkg/core/analysis/replicaequal"
	"github.com/gomlx/collectives/pkg/core/graph"
	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/collectives/pkg/lowering"
	"github.com/gomlx/collectives/pkg/runtime/simulated"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// demo is the program built by the tool: the input x is gathered, the gathered value is exchanged, and
// the gradient of the exchange brings it back.
type demo struct {
	g                            *graph.Graph
	x, gathered, exchanged, back *graph.Tensor
}

func newDemo(sess *session.Options, grouping replicas.Grouping, inShape shapes.Shape) (*demo, error) {
	d := &demo{g: graph.New("demo", sess)}
	d.x = d.g.Parameter("x", shapes.TensorInfo{Shape: inShape})
	err := d.g.Build(func() {
		d.gathered = graph.MustAllGather(d.x, grouping, "gather")
		d.exchanged = graph.MustAllToAll(d.gathered, grouping, "exchange")
	})
	if err != nil {
		return nil, err
	}
	producer, _ := d.exchanged.Producer()
	grads, err := d.g.Gradient(producer, d.exchanged)
	if err != nil {
		return nil, err
	}
	d.back = grads[0]
	return d, nil
}

// tensors of the demo, in the order they are reported.
func (d *demo) tensors() []*graph.Tensor {
	return []*graph.Tensor{d.x, d.gathered, d.exchanged, d.back}
}

func (d *demo) analyze(inputEqual bool) (*replicaequal.Result, error) {
	return replicaequal.Analyze(d.g, map[graph.TensorID]bool{d.x.ID(): inputEqual}, nil)
}

func (d *demo) lower(legacyOnly bool) (*lowering.Program, *simulated.Runtime, error) {
	var options []simulated.Option
	if legacyOnly {
		options = append(options, simulated.WithLegacyGroupsOnly())
	}
	rt, err := simulated.New(d.g.NumReplicas(), options...)
	if err != nil {
		return nil, nil, err
	}
	program, err := lowering.Lower(d.g, rt)
	if err != nil {
		return nil, nil, err
	}
	return program, rt, nil
}

// execute runs the program steps times, with per-replica inputs [r*100, r*100+1, ...], and returns the
// result of the last execution.
func (d *demo) execute(ctx context.Context, program *lowering.Program, rt *simulated.Runtime, steps int) (
	*simulated.Result, error) {
	inShape := d.x.Info().Shape
	inputs := make([][]*simulated.Buffer, rt.NumReplicas())
	for replica := range inputs {
		values := make([]int, inShape.Size())
		for ii := range values {
			values[ii] = replica*100 + ii
		}
		b, err := simulated.FromValues(inShape, values)
		if err != nil {
			return nil, err
		}
		inputs[replica] = []*simulated.Buffer{b}
	}

	var bar *progressbar.ProgressBar
	if steps > 1 {
		bar = progressbar.NewOptions(steps,
			progressbar.OptionSetDescription("executing"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish())
	}
	var result *simulated.Result
	for step := range steps {
		var err error
		result, err = rt.Execute(ctx, program.Sequence, inputs)
		if err != nil {
			return nil, errors.WithMessagef(err, "step %d", step)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return result, nil
}
