// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package replicas defines how the replicas of a replicated program are partitioned into the groups
// that participate together in a collective operation.
//
// A Grouping is a small immutable value: it is copied into every op that uses it and never changes.
// The legacy CommGroup descriptor is accepted as an alternate input form, and normalized into a
// Grouping once the total number of replicas is known.
package replicas

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Grouping partitions the replica indices [0, NumReplicas) into NumGroups disjoint groups of
// GroupSize replicas each.
//
// The members of a group are spaced by Stride: with stride 1 groups are made of consecutive
// replicas; with NumReplicas = Stride*GroupSize groups are "orthogonal", e.g. for 8 replicas,
// stride 2 and group size 4 the groups are {0,2,4,6} and {1,3,5,7}.
//
// The zero value is not valid, use NewGrouping or AllReplicas.
type Grouping struct {
	numReplicas, stride, groupSize int
}

// NewGrouping validates and creates a new Grouping.
//
// It returns an error if any of the values is not positive, or if numReplicas is not divisible by
// stride*groupSize.
func NewGrouping(numReplicas, stride, groupSize int) (Grouping, error) {
	if numReplicas <= 0 {
		return Grouping{}, errors.Errorf("replica grouping requires a positive number of replicas, got %d", numReplicas)
	}
	if stride <= 0 {
		return Grouping{}, errors.Errorf("replica grouping requires a positive stride, got %d", stride)
	}
	if groupSize <= 0 {
		return Grouping{}, errors.Errorf("replica grouping requires a positive group size, got %d", groupSize)
	}
	if numReplicas%stride != 0 || (numReplicas/stride)%groupSize != 0 {
		return Grouping{}, errors.Errorf(
			"replica grouping with stride %d and group size %d doesn't evenly divide %d replicas",
			stride, groupSize, numReplicas)
	}
	return Grouping{numReplicas: numReplicas, stride: stride, groupSize: groupSize}, nil
}

// AllReplicas returns the Grouping with a single group holding all numReplicas replicas.
//
// It panics if numReplicas <= 0.
func AllReplicas(numReplicas int) Grouping {
	g, err := NewGrouping(numReplicas, 1, numReplicas)
	if err != nil {
		panic(err)
	}
	return g
}

// NumReplicas returns the total number of replicas partitioned by the grouping.
func (g Grouping) NumReplicas() int { return g.numReplicas }

// Stride returns the distance between consecutive members of a group.
func (g Grouping) Stride() int { return g.stride }

// GroupSize returns the number of replicas in each group.
func (g Grouping) GroupSize() int { return g.groupSize }

// NumGroups returns the number of disjoint groups.
func (g Grouping) NumGroups() int {
	if g.groupSize == 0 {
		return 0
	}
	return g.numReplicas / g.groupSize
}

// IsValid returns false for the zero value.
func (g Grouping) IsValid() bool { return g.numReplicas > 0 }

// SpansAllReplicas returns whether there is only one group, holding every replica.
func (g Grouping) SpansAllReplicas() bool {
	return g.IsValid() && g.groupSize == g.numReplicas
}

// GroupOf returns the index of the group that includes replica.
func (g Grouping) GroupOf(replica int) int {
	span := g.stride * g.groupSize
	return (replica/span)*g.stride + replica%g.stride
}

// IndexInGroup returns the position of replica within its group.
func (g Grouping) IndexInGroup(replica int) int {
	return (replica % (g.stride * g.groupSize)) / g.stride
}

// Members returns the replicas in the given group, in group order.
func (g Grouping) Members(group int) []int {
	base := (group/g.stride)*g.stride*g.groupSize + group%g.stride
	members := make([]int, g.groupSize)
	for i := range members {
		members[i] = base + i*g.stride
	}
	return members
}

// Groups returns all groups, each with its members in group order.
//
// This is the form most collective runtimes take ("replica_groups").
func (g Grouping) Groups() [][]int {
	groups := make([][]int, g.NumGroups())
	for ii := range groups {
		groups[ii] = g.Members(ii)
	}
	return groups
}

// Equal returns whether both groupings partition the replicas in the same way.
func (g Grouping) Equal(other Grouping) bool {
	if g.numReplicas != other.numReplicas || g.groupSize != other.groupSize {
		return false
	}
	// With group size 1 the stride is irrelevant.
	return g.groupSize == 1 || g.stride == other.stride
}

// String implements fmt.Stringer.
func (g Grouping) String() string {
	if !g.IsValid() {
		return "ReplicaGrouping(invalid)"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "ReplicaGrouping(numReplicas=%d, stride=%d, groupSize=%d)",
		g.numReplicas, g.stride, g.groupSize)
	return sb.String()
}
