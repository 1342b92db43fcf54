// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package replicas

import (
	"github.com/pkg/errors"
)

const (
	// AttrCommGroup is the attribute name holding a legacy CommGroup as a pair [type, replicaGroupSize].
	AttrCommGroup = "__collectiveCommGroup"

	// AttrReplicaGrouping is the attribute name holding a Grouping as a pair [stride, groupSize].
	AttrReplicaGrouping = "__collectiveReplicaGrouping"
)

// FromAttributes extracts the Grouping from an op's attributes, given the total number of replicas
// of the session.
//
// If AttrReplicaGrouping is set it takes precedence. Otherwise, AttrCommGroup is used. If neither
// is set, all replicas form a single group.
//
// Attribute values can be given as []int, []int64 or [2]int.
func FromAttributes(attrs map[string]any, numReplicas int) (Grouping, error) {
	if value, found := attrs[AttrReplicaGrouping]; found {
		pair, err := intPair(AttrReplicaGrouping, value)
		if err != nil {
			return Grouping{}, err
		}
		g, err := NewGrouping(numReplicas, pair[0], pair[1])
		if err != nil {
			return Grouping{}, errors.WithMessagef(err, "invalid attribute %q", AttrReplicaGrouping)
		}
		return g, nil
	}
	if value, found := attrs[AttrCommGroup]; found {
		pair, err := intPair(AttrCommGroup, value)
		if err != nil {
			return Grouping{}, err
		}
		groupType := CommGroupType(pair[0])
		if !groupType.IsACommGroupType() {
			return Grouping{}, errors.Errorf("invalid attribute %q: unknown CommGroupType %d", AttrCommGroup, pair[0])
		}
		commGroup := CommGroup{Type: groupType, ReplicaGroupSize: pair[1]}
		g, err := commGroup.ToGrouping(numReplicas)
		if err != nil {
			return Grouping{}, errors.WithMessagef(err, "invalid attribute %q", AttrCommGroup)
		}
		return g, nil
	}
	return NewGrouping(numReplicas, 1, numReplicas)
}

// ToAttributes stores the grouping in attrs, in the AttrReplicaGrouping form.
func (g Grouping) ToAttributes(attrs map[string]any) {
	attrs[AttrReplicaGrouping] = []int64{int64(g.stride), int64(g.groupSize)}
}

func intPair(name string, value any) (pair [2]int, err error) {
	var values []int
	switch v := value.(type) {
	case []int:
		values = v
	case []int64:
		values = make([]int, len(v))
		for ii, x := range v {
			values[ii] = int(x)
		}
	case [2]int:
		return v, nil
	default:
		return pair, errors.Errorf("attribute %q must be a pair of integers, got %T", name, value)
	}
	if len(values) != 2 {
		return pair, errors.Errorf("attribute %q must be a pair of integers, got %d values", name, len(values))
	}
	pair[0], pair[1] = values[0], values[1]
	return pair, nil
}
