// Package safetensors reads and writes the safetensors container format:
// an 8-byte little-endian header length, a JSON header, then raw tensor data.
package safetensors

import "fmt"

const (
	DTypeF32  = "F32"
	DTypeF16  = "F16"
	DTypeBF16 = "BF16"
	DTypeI64  = "I64"
)

const metadataKey = "__metadata__"

// Tensor holds one named tensor. Float dtypes decode into Data; I64 decodes
// into Ints.
type Tensor struct {
	Name  string
	DType string
	Shape []int64
	Data  []float32
	Ints  []int64
}

// FloatTensor builds an F32 tensor.
func FloatTensor(name string, shape []int64, data []float32) Tensor {
	return Tensor{Name: name, DType: DTypeF32, Shape: append([]int64(nil), shape...), Data: data}
}

// IntTensor builds an I64 tensor.
func IntTensor(name string, shape []int64, data []int64) Tensor {
	return Tensor{Name: name, DType: DTypeI64, Shape: append([]int64(nil), shape...), Ints: data}
}

// Len returns the element count of the tensor's backing slice.
func (t Tensor) Len() int {
	if t.DType == DTypeI64 {
		return len(t.Ints)
	}
	return len(t.Data)
}

func (t Tensor) String() string {
	return fmt.Sprintf("%s %s%v", t.Name, t.DType, t.Shape)
}
