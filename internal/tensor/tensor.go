// Package tensor holds dense float32 tensors passed between the reference
// conditioner, the trait bundles and the synthesis capabilities.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	s := append([]int64(nil), shape...)
	d := append([]float32(nil), data...)

	return &Tensor{shape: s, data: d}, nil
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  make([]float32, total),
	}, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Data returns a copy of the underlying tensor data.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the underlying data slice.
// Callers must treat it as read-only.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if t == nil || o == nil || len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// Mean returns the element-wise mean of tensors sharing one shape.
func Mean(tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: mean of zero tensors")
	}

	out, err := Zeros(tensors[0].shape)
	if err != nil {
		return nil, err
	}

	for i, t := range tensors {
		if !t.SameShape(tensors[0]) {
			return nil, fmt.Errorf("tensor: mean: tensor %d shape %v != %v", i, t.Shape(), tensors[0].shape)
		}
		for j, v := range t.data {
			out.data[j] += v
		}
	}

	n := float32(len(tensors))
	for j := range out.data {
		out.data[j] /= n
	}

	return out, nil
}

func shapeElemCount(shape []int64) (int, error) {
	if len(shape) == 0 {
		return 0, errors.New("tensor: shape must not be empty")
	}

	total := 1
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("tensor: negative dimension %d in shape %v", dim, shape)
		}

		total *= int(dim)
	}

	return total, nil
}
