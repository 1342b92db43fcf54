// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simulated

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// tensorType renders a shape as a StableHLO tensor type, e.g. "tensor<2x3xf32>".
func tensorType(shape shapes.Shape) string {
	var sb strings.Builder
	sb.WriteString("tensor<")
	for _, dim := range shape.Dimensions {
		_, _ = fmt.Fprintf(&sb, "%dx", dim)
	}
	switch shape.DType {
	case dtypes.Float32:
		sb.WriteString("f32")
	case dtypes.Float16:
		sb.WriteString("f16")
	case dtypes.Int32:
		sb.WriteString("i32")
	case dtypes.Uint32:
		sb.WriteString("ui32")
	default:
		sb.WriteString(strings.ToLower(shape.DType.String()))
	}
	sb.WriteString(">")
	return sb.String()
}

// formatReplicaGroups renders the groups as a StableHLO dense literal.
// Example: [[0, 1], [2, 3]] -> "dense<[[0, 1], [2, 3]]> : tensor<2x2xi64>"
func formatReplicaGroups(groups [][]int) string {
	if len(groups) == 0 {
		return "dense<[]> : tensor<0x0xi64>"
	}
	var sb strings.Builder
	sb.WriteString("dense<[")
	for ii, group := range groups {
		if ii > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for jj, replica := range group {
			if jj > 0 {
				sb.WriteString(", ")
			}
			_, _ = fmt.Fprintf(&sb, "%d", replica)
		}
		sb.WriteString("]")
	}
	_, _ = fmt.Fprintf(&sb, "]> : tensor<%dx%dxi64>", len(groups), len(groups[0]))
	return sb.String()
}

func formatOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return ""
	}
	var parts []string
	for _, key := range slices.Sorted(maps.Keys(opts)) {
		parts = append(parts, fmt.Sprintf("%s = %q", key, opts[key]))
	}
	return fmt.Sprintf(", options = {%s}", strings.Join(parts, ", "))
}

// String renders the program in a StableHLO-like textual format.
func (p *Program) String() string {
	var sb strings.Builder
	var params []string
	for _, instr := range p.instructions {
		if instr.kind == opParameter {
			params = append(params, fmt.Sprintf("%%arg%d: %s", instr.param, tensorType(instr.shape)))
		}
	}
	_, _ = fmt.Fprintf(&sb, "func.func @%s(%s) {\n", p.name, strings.Join(params, ", "))
	names := make([]string, len(p.instructions))
	for idx, instr := range p.instructions {
		if instr.kind == opParameter {
			names[idx] = fmt.Sprintf("%%arg%d", instr.param)
			continue
		}
		names[idx] = fmt.Sprintf("%%%d", idx)
		inShape := p.instructions[instr.input].shape
		var attrs string
		opName := "stablehlo.all_gather"
		groupSize := instr.groups.Grouping.GroupSize()
		if instr.kind == opAllGather {
			attrs = "all_gather_dim = 0"
		} else {
			opName = "stablehlo.all_to_all"
			attrs = fmt.Sprintf("split_dimension = 0, concat_dimension = 0, split_count = %d", groupSize)
		}
		_, _ = fmt.Fprintf(&sb, "  %s = %q(%s) {%s, replica_groups = %s%s} : (%s) -> %s\n",
			names[idx], opName, names[instr.input], attrs, formatReplicaGroups(instr.groups.Members),
			formatOptions(instr.options), tensorType(inShape), tensorType(instr.shape))
	}
	sb.WriteString("}\n")
	return sb.String()
}
