// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

// ReplEqInputMap maps an op's input index to whether the input is equal across all replicas.
type ReplEqInputMap map[int]bool

// ReplEqOutputMap maps an op's output index to whether the output is equal across all replicas.
type ReplEqOutputMap map[int]bool

// ReplEqModifiedInputMap maps the index of an input modified by the op (through aliasing) to whether
// its value after the op is equal across all replicas.
type ReplEqModifiedInputMap map[int]bool

// AliasModel describes which outputs of an op alias (share memory with) which of its inputs.
type AliasModel interface {
	// AliasedInputs returns the input indices that output outIndex of op aliases.
	AliasedInputs(op Op, outIndex int) []int

	// Modifies returns whether op modifies its input inIndex in place.
	Modifies(op Op, inIndex int) bool
}

// ReplicaEqualProxy is the capability the replica-equal analysis offers to the ops' transfer functions.
type ReplicaEqualProxy interface {
	// ModifiedInputMapFromAliases derives the facts of the inputs modified by op from the facts of the
	// outputs aliasing them.
	ModifiedInputMapFromAliases(op Op, outputs ReplEqOutputMap) ReplEqModifiedInputMap
}

// Aliaser is optionally implemented by ops whose outputs alias their inputs.
type Aliaser interface {
	// Aliases returns the input indices aliased by output outIndex.
	Aliases(outIndex int) []int

	// Modifies returns whether the op modifies input inIndex in place.
	Modifies(inIndex int) bool
}

// FwdPropagateIsReplicaEqualDefault is the generic transfer function: all outputs are equal across replicas
// if and only if all inputs are.
//
// Modified inputs are derived from the aliasing of outputs through the proxy.
func FwdPropagateIsReplicaEqualDefault(op Op, inputs ReplEqInputMap, proxy ReplicaEqualProxy) (
	ReplEqOutputMap, ReplEqModifiedInputMap) {
	allEqual := true
	for _, isEqual := range inputs {
		allEqual = allEqual && isEqual
	}
	outputs := make(ReplEqOutputMap, op.NumOutputs())
	for ii := range op.NumOutputs() {
		outputs[ii] = allEqual
	}
	return outputs, proxy.ModifiedInputMapFromAliases(op, outputs)
}
