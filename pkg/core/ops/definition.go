// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
)

// CollectiveDTypes is the closed set of element types accepted by the collective ops.
var CollectiveDTypes = []dtypes.DType{dtypes.Float32, dtypes.Float16, dtypes.Int32, dtypes.Uint32}

// ArgDefinition defines one input or output of an op.
type ArgDefinition struct {
	Name string

	// DTypes accepted. If empty, any dtype is accepted.
	DTypes []dtypes.DType

	// Optional arguments may be left unconnected.
	Optional bool
}

// Definition is the static type contract of an op, checked before shape inference.
type Definition struct {
	Inputs  []ArgDefinition
	Outputs []ArgDefinition

	// Attributes lists the attribute names accepted by the op.
	Attributes []string
}

// CheckInputs validates the connected inputs against the definition.
//
// It returns an InvalidGraphError attributed to opName if a required input is missing, an input index is
// not defined or an input's dtype is not accepted.
func (d Definition) CheckInputs(opName string, inputs Inputs, numConnected int) error {
	for ii, arg := range d.Inputs {
		if !inputs.HasInput(ii) {
			if !arg.Optional {
				return invalidGraphf(opName, "missing required input #%d (%q)", ii, arg.Name)
			}
			continue
		}
		dtype := inputs.InInfo(ii).DType
		if len(arg.DTypes) > 0 && !slices.Contains(arg.DTypes, dtype) {
			return invalidGraphf(opName, "input #%d (%q) has unsupported dtype %s, accepted dtypes are %v",
				ii, arg.Name, dtype, arg.DTypes)
		}
	}
	if numConnected > len(d.Inputs) {
		return invalidGraphf(opName, "op accepts at most %d inputs, got %d", len(d.Inputs), numConnected)
	}
	return nil
}

// CheckAttributes validates that only known attributes are given.
func (d Definition) CheckAttributes(opName string, attrs map[string]any) error {
	for name := range attrs {
		if !slices.Contains(d.Attributes, name) {
			return invalidGraphf(opName, "unknown attribute %q", name)
		}
	}
	return nil
}
