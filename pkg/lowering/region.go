// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"fmt"
	"slices"

	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Region is a hyper-rectangle of a tensor: for each axis, the half-open interval [Lower, Upper).
type Region struct {
	Lower, Upper []int
}

// NewRegion creates a region, validating that lower and upper have the same rank and lower <= upper.
func NewRegion(lower, upper []int) (Region, error) {
	if len(lower) != len(upper) {
		return Region{}, errors.Errorf("region bounds have different ranks: %v and %v", lower, upper)
	}
	for axis := range lower {
		if lower[axis] < 0 || lower[axis] > upper[axis] {
			return Region{}, errors.Errorf("invalid region bounds for axis %d: [%d, %d)", axis, lower[axis], upper[axis])
		}
	}
	return Region{Lower: slices.Clone(lower), Upper: slices.Clone(upper)}, nil
}

// FullRegion returns the region covering the whole shape.
func FullRegion(shape shapes.Shape) Region {
	return Region{Lower: make([]int, shape.Rank()), Upper: slices.Clone(shape.Dimensions)}
}

// Rank of the region.
func (r Region) Rank() int { return len(r.Lower) }

// NumElements in the region.
func (r Region) NumElements() int {
	n := 1
	for axis := range r.Lower {
		n *= r.Upper[axis] - r.Lower[axis]
	}
	return n
}

// IsEmpty returns whether the region has no elements.
func (r Region) IsEmpty() bool { return r.NumElements() == 0 }

// Equal returns whether the two regions cover the same intervals.
func (r Region) Equal(other Region) bool {
	return slices.Equal(r.Lower, other.Lower) && slices.Equal(r.Upper, other.Upper)
}

// String implements fmt.Stringer.
func (r Region) String() string {
	return fmt.Sprintf("Region{%v, %v}", r.Lower, r.Upper)
}

// RegMap maps a region of an op's output to the regions of an input that affect it.
type RegMap func(r Region) []Region

// IdentityRegMap maps each region to itself.
func IdentityRegMap(r Region) []Region { return []Region{r} }
