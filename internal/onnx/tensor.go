package onnx

import (
	"fmt"
	"math"
	"strings"

	"github.com/example/go-trait-tts/internal/tensor"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a graph input or output: float32 or int64 data with a shape.
type Tensor struct {
	dtype TensorDType
	shape []int64
	f32   []float32
	i64   []int64
}

// NewTensor copies data into a tensor of the given shape.
func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	if err := validateShapeAgainstData(shape, len(data)); err != nil {
		return nil, err
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}
	switch any(data).(type) {
	case []float32:
		t.dtype = DTypeFloat32
		t.f32 = make([]float32, len(data))
		for i, v := range data {
			t.f32[i] = float32(v)
		}
	default:
		t.dtype = DTypeInt64
		t.i64 = make([]int64, len(data))
		for i, v := range data {
			t.i64[i] = int64(v)
		}
	}
	return t, nil
}

// Scalar1 returns a one-element [1] tensor.
func Scalar1[T ~int64 | ~float32](v T) *Tensor {
	t, _ := NewTensor([]T{v}, []int64{1})
	return t
}

// NewZeroTensor builds a zero tensor from manifest node metadata. Symbolic
// dimensions resolve to 1.
func NewZeroTensor(dtype string, shape []any) (*Tensor, error) {
	canonical, err := canonicalDType(dtype)
	if err != nil {
		return nil, err
	}
	resolved, err := resolveShape(shape)
	if err != nil {
		return nil, err
	}
	count, err := elementCount(resolved)
	if err != nil {
		return nil, err
	}

	if canonical == DTypeInt64 {
		return NewTensor(make([]int64, count), resolved)
	}
	return NewTensor(make([]float32, count), resolved)
}

// FromTensor converts a float tensor from the core packages.
func FromTensor(t *tensor.Tensor) (*Tensor, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	return NewTensor(t.RawData(), t.Shape())
}

func (t *Tensor) DType() TensorDType { return t.dtype }

func (t *Tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

// Float32s returns a copy of float32 data.
func (t *Tensor) Float32s() ([]float32, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	if t.dtype != DTypeFloat32 {
		return nil, fmt.Errorf("expected float32 tensor, got %s", t.dtype)
	}
	return append([]float32(nil), t.f32...), nil
}

// Int64s returns a copy of int64 data.
func (t *Tensor) Int64s() ([]int64, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	if t.dtype != DTypeInt64 {
		return nil, fmt.Errorf("expected int64 tensor, got %s", t.dtype)
	}
	return append([]int64(nil), t.i64...), nil
}

// ToTensor converts a float32 tensor to the core tensor type.
func (t *Tensor) ToTensor() (*tensor.Tensor, error) {
	data, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	return tensor.New(data, t.shape)
}

func canonicalDType(raw string) (TensorDType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, "tensor(")
	normalized = strings.TrimSuffix(normalized, ")")
	switch normalized {
	case "float", "float32":
		return DTypeFloat32, nil
	case "int64", "long":
		return DTypeInt64, nil
	default:
		return "", fmt.Errorf("unsupported tensor dtype %q", raw)
	}
}

func resolveShape(shape []any) ([]int64, error) {
	out := make([]int64, len(shape))
	for i, dim := range shape {
		switch v := dim.(type) {
		case float64:
			if v < 1 || v != math.Trunc(v) {
				return nil, fmt.Errorf("shape[%d]=%v is not a positive integer", i, v)
			}
			out[i] = int64(v)
		case int:
			if v < 1 {
				return nil, fmt.Errorf("shape[%d]=%d is not positive", i, v)
			}
			out[i] = int64(v)
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("shape[%d] has empty symbolic dimension", i)
			}
			out[i] = 1
		default:
			return nil, fmt.Errorf("shape[%d] has unsupported type %T", i, dim)
		}
	}
	return out, nil
}

func validateShapeAgainstData(shape []int64, dataLen int) error {
	count, err := elementCount(shape)
	if err != nil {
		return err
	}
	if count != dataLen {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, count, dataLen)
	}
	return nil
}

// elementCount allows zero dimensions, used for empty prompts.
func elementCount(shape []int64) (int, error) {
	count := int64(1)
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("shape[%d]=%d is negative", i, dim)
		}
		if dim == 0 {
			count = 0
			continue
		}
		if count > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}
		count *= dim
	}
	if count > int64(math.MaxInt) {
		return 0, fmt.Errorf("shape %v exceeds platform int capacity", shape)
	}
	return int(count), nil
}
