// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simulated

import (
	"fmt"

	"github.com/gomlx/collectives/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Buffer holds the value of a tensor on one replica, as a flat slice of its Go element type:
// []float32, []float16.Float16, []int32 or []uint32.
type Buffer struct {
	shape shapes.Shape
	flat  any
}

// Shape of the buffer.
func (b *Buffer) Shape() shapes.Shape { return b.shape }

// Flat returns the flat slice with the buffer's data. It must not be modified.
func (b *Buffer) Flat() any { return b.flat }

// String implements fmt.Stringer.
func (b *Buffer) String() string { return fmt.Sprintf("%s%v", b.shape, b.flat) }

// NewBuffer creates a buffer from a flat slice of the Go type matching shape.DType.
func NewBuffer(shape shapes.Shape, flat any) (*Buffer, error) {
	var length int
	switch shape.DType {
	case dtypes.Float32:
		data, ok := flat.([]float32)
		if !ok {
			return nil, errors.Errorf("buffer of shape %s requires []float32, got %T", shape, flat)
		}
		length = len(data)
	case dtypes.Float16:
		data, ok := flat.([]float16.Float16)
		if !ok {
			return nil, errors.Errorf("buffer of shape %s requires []float16.Float16, got %T", shape, flat)
		}
		length = len(data)
	case dtypes.Int32:
		data, ok := flat.([]int32)
		if !ok {
			return nil, errors.Errorf("buffer of shape %s requires []int32, got %T", shape, flat)
		}
		length = len(data)
	case dtypes.Uint32:
		data, ok := flat.([]uint32)
		if !ok {
			return nil, errors.Errorf("buffer of shape %s requires []uint32, got %T", shape, flat)
		}
		length = len(data)
	default:
		return nil, errors.Errorf("simulated runtime doesn't support dtype %s", shape.DType)
	}
	if length != shape.Size() {
		return nil, errors.Errorf("buffer of shape %s requires %d elements, got %d", shape, shape.Size(), length)
	}
	return &Buffer{shape: shape.Clone(), flat: flat}, nil
}

// FromValues creates a buffer of the given shape, converting values to the element type of shape.DType.
func FromValues[T constraints.Integer | constraints.Float](shape shapes.Shape, values []T) (*Buffer, error) {
	var flat any
	switch shape.DType {
	case dtypes.Float32:
		flat = convert(values, func(v T) float32 { return float32(v) })
	case dtypes.Float16:
		flat = convert(values, func(v T) float16.Float16 { return float16.Fromfloat32(float32(v)) })
	case dtypes.Int32:
		flat = convert(values, func(v T) int32 { return int32(v) })
	case dtypes.Uint32:
		flat = convert(values, func(v T) uint32 { return uint32(v) })
	default:
		return nil, errors.Errorf("simulated runtime doesn't support dtype %s", shape.DType)
	}
	return NewBuffer(shape, flat)
}

// Float64s returns the buffer values converted to float64.
func (b *Buffer) Float64s() []float64 {
	switch data := b.flat.(type) {
	case []float32:
		return convert(data, func(v float32) float64 { return float64(v) })
	case []float16.Float16:
		return convert(data, func(v float16.Float16) float64 { return float64(v.Float32()) })
	case []int32:
		return convert(data, func(v int32) float64 { return float64(v) })
	case []uint32:
		return convert(data, func(v uint32) float64 { return float64(v) })
	}
	return nil
}

func convert[From, To any](values []From, fn func(From) To) []To {
	out := make([]To, len(values))
	for ii, v := range values {
		out[ii] = fn(v)
	}
	return out
}

// concatenate the flat data of the parts, in order, into a buffer of the given shape.
func concatenate(shape shapes.Shape, parts []*Buffer) (*Buffer, error) {
	switch shape.DType {
	case dtypes.Float32:
		return NewBuffer(shape, concatenateFlat[float32](parts))
	case dtypes.Float16:
		return NewBuffer(shape, concatenateFlat[float16.Float16](parts))
	case dtypes.Int32:
		return NewBuffer(shape, concatenateFlat[int32](parts))
	case dtypes.Uint32:
		return NewBuffer(shape, concatenateFlat[uint32](parts))
	}
	return nil, errors.Errorf("simulated runtime doesn't support dtype %s", shape.DType)
}

func concatenateFlat[T any](parts []*Buffer) []T {
	var size int
	for _, part := range parts {
		size += len(part.flat.([]T))
	}
	out := make([]T, 0, size)
	for _, part := range parts {
		out = append(out, part.flat.([]T)...)
	}
	return out
}

// chunks returns the part-th of numParts equal chunks of each of the buffers, concatenated in order, with
// the given shape.
func chunks(shape shapes.Shape, buffers []*Buffer, part, numParts int) (*Buffer, error) {
	switch shape.DType {
	case dtypes.Float32:
		return NewBuffer(shape, chunksFlat[float32](buffers, part, numParts))
	case dtypes.Float16:
		return NewBuffer(shape, chunksFlat[float16.Float16](buffers, part, numParts))
	case dtypes.Int32:
		return NewBuffer(shape, chunksFlat[int32](buffers, part, numParts))
	case dtypes.Uint32:
		return NewBuffer(shape, chunksFlat[uint32](buffers, part, numParts))
	}
	return nil, errors.Errorf("simulated runtime doesn't support dtype %s", shape.DType)
}

func chunksFlat[T any](buffers []*Buffer, part, numParts int) []T {
	var out []T
	for _, b := range buffers {
		data := b.flat.([]T)
		chunkSize := len(data) / numParts
		out = append(out, data[part*chunkSize:(part+1)*chunkSize]...)
	}
	return out
}
