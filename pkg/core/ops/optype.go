// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import "fmt"

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

// OpType is an enum of the operations defined in this package.
//
// It is used to dispatch lowering and verification, in place of checking the concrete Go type.
type OpType int

const (
	OpTypeInvalid OpType = iota

	// Collective (distributed across replicas) operations

	OpTypeAllGather
	OpTypeAllToAll
	OpTypeAllToAllGrad

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// Identifier is the canonical operator name and version, as used in serialized graphs and in the registry.
type Identifier struct {
	Domain  string
	Type    string
	Version int
}

// CustomDomain is the domain of all the ops defined in this package.
const CustomDomain = "custom.ops"

var (
	AllGatherID    = Identifier{Domain: CustomDomain, Type: "ReplicatedAllGather", Version: 1}
	AllToAllID     = Identifier{Domain: CustomDomain, Type: "ReplicatedAllToAll", Version: 1}
	AllToAllGradID = Identifier{Domain: CustomDomain, Type: "ReplicatedAllToAllGrad", Version: 1}
)

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return fmt.Sprintf("%s::%s:%d", id.Domain, id.Type, id.Version)
}
