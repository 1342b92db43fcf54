// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package replicas

import (
	"fmt"

	"github.com/pkg/errors"
)

//go:generate go tool enumer -type=CommGroupType -trimprefix=CommGroup -output=gen_commgrouptype_enumer.go commgroup.go

// CommGroupType enumerates the legacy ways of describing replica groups.
type CommGroupType int

const (
	// CommGroupAll is a single group with every replica.
	CommGroupAll CommGroupType = iota

	// CommGroupConsecutive groups blocks of ReplicaGroupSize consecutive replicas:
	// for 4 replicas and size 2: {0,1} and {2,3}.
	CommGroupConsecutive

	// CommGroupOrthogonal groups replicas orthogonally to the consecutive grouping of the same size:
	// for 4 replicas and size 2: {0,2} and {1,3}.
	CommGroupOrthogonal

	// CommGroupNone puts each replica in its own group.
	CommGroupNone
)

// CommGroup is the legacy descriptor of replica groups: a type and a group size.
//
// It is converted to a Grouping with ToGrouping, once the total number of replicas is known.
type CommGroup struct {
	Type CommGroupType

	// ReplicaGroupSize is the number of replicas per group. It is ignored for CommGroupAll and
	// CommGroupNone.
	ReplicaGroupSize int
}

// ToGrouping normalizes the legacy descriptor into a Grouping for numReplicas replicas.
//
// The conversion is deterministic:
//
//   - All: one group with all numReplicas.
//   - Consecutive(k): stride 1, group size k.
//   - Orthogonal(k): stride numReplicas/k, group size k.
//   - None: stride 1, group size 1.
func (c CommGroup) ToGrouping(numReplicas int) (Grouping, error) {
	switch c.Type {
	case CommGroupAll:
		return NewGrouping(numReplicas, 1, numReplicas)
	case CommGroupConsecutive:
		return NewGrouping(numReplicas, 1, c.ReplicaGroupSize)
	case CommGroupOrthogonal:
		if c.ReplicaGroupSize <= 0 {
			return Grouping{}, errors.Errorf("%s requires a positive group size", c)
		}
		if numReplicas%c.ReplicaGroupSize != 0 {
			return Grouping{}, errors.Errorf("%s group size doesn't divide %d replicas", c, numReplicas)
		}
		return NewGrouping(numReplicas, numReplicas/c.ReplicaGroupSize, c.ReplicaGroupSize)
	case CommGroupNone:
		return NewGrouping(numReplicas, 1, 1)
	default:
		return Grouping{}, errors.Errorf("invalid %s", c)
	}
}

// String implements fmt.Stringer.
func (c CommGroup) String() string {
	return fmt.Sprintf("CommGroup(type=%s, size=%d)", c.Type, c.ReplicaGroupSize)
}

// ToCommGroup returns the legacy descriptor equivalent to the grouping.
//
// Not every Grouping can be expressed as a CommGroup (e.g. stride 2, group size 2 for 8 replicas), in which
// case an error is returned.
func (g Grouping) ToCommGroup() (CommGroup, error) {
	switch {
	case !g.IsValid():
		return CommGroup{}, errors.Errorf("cannot convert invalid grouping to a CommGroup")
	case g.SpansAllReplicas():
		return CommGroup{Type: CommGroupAll}, nil
	case g.groupSize == 1:
		return CommGroup{Type: CommGroupNone}, nil
	case g.stride == 1:
		return CommGroup{Type: CommGroupConsecutive, ReplicaGroupSize: g.groupSize}, nil
	case g.stride*g.groupSize == g.numReplicas:
		return CommGroup{Type: CommGroupOrthogonal, ReplicaGroupSize: g.groupSize}, nil
	}
	return CommGroup{}, errors.Errorf("%s cannot be expressed as a CommGroup", g)
}
