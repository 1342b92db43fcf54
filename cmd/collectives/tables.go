// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/collectives/pkg/core/analysis/replicaequal"
	"github.com/gomlx/collectives/pkg/core/ops"
	"github.com/gomlx/collectives/pkg/lowering"
	"github.com/gomlx/collectives/pkg/runtime/simulated"
)

// MaxValuesToPrint per replica in the values table.
const MaxValuesToPrint = 8

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col < len(alignments) {
				s = s.Align(alignments[col])
			}
			return
		})
}

func opsTable(d *demo, analysis *replicaequal.Result) *lgtable.Table {
	table := newPlainTable(lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Center)
	table.Headers("#", "Tensor", "Producer", "Info", "Bytes", "Replica-equal")
	for _, t := range d.tensors() {
		producer := "parameter"
		if node, _ := t.Producer(); node != nil {
			producer = fmt.Sprintf("%s %s", node.Op().Type(), node.Op().(ops.CollectiveOp).ReplicaGrouping())
		}
		table.Row(strconv.Itoa(int(t.ID())), t.Name(), producer, t.Info().String(),
			humanize.Bytes(uint64(t.Info().Memory())), strconv.FormatBool(analysis.IsEqual(t)))
	}
	return table
}

func valuesTable(d *demo, program *lowering.Program, result *simulated.Result) (*lgtable.Table, error) {
	tensors := d.tensors()
	table := newPlainTable(lipgloss.Right)
	header := []string{"Replica"}
	for _, t := range tensors {
		header = append(header, t.Name())
	}
	table.Headers(header...)
	for replica := range d.g.NumReplicas() {
		row := []string{strconv.Itoa(replica)}
		for _, t := range tensors {
			b, err := result.Get(replica, program.Handle(t))
			if err != nil {
				return nil, err
			}
			row = append(row, formatValues(b.Float64s()))
		}
		table.Row(row...)
	}
	return table, nil
}

func formatValues(values []float64) string {
	parts := make([]string, 0, MaxValuesToPrint+1)
	for ii, v := range values {
		if ii == MaxValuesToPrint {
			parts = append(parts, fmt.Sprintf("... (%s more)", humanize.Comma(int64(len(values)-ii))))
			break
		}
		parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
