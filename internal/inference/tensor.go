// Package inference loads trained model graphs into executable sessions and
// runs them against a hardware-accelerated backend, falling back to a
// portable one when acceleration is unavailable.
package inference

import (
	"fmt"
	"math"
)

// Tensor is a flat float32 buffer with an ordered shape.
// len(Data) always equals the product of Shape.
type Tensor struct {
	Data  []float32 `json:"data"`
	Shape []int64   `json:"shape"`
}

// NewTensor validates that data holds exactly as many elements as shape
// describes. The data slice is not copied.
func NewTensor(data []float32, shape []int64) (Tensor, error) {
	want, err := ElementCount(shape)
	if err != nil {
		return Tensor{}, err
	}
	if int64(len(data)) != want {
		return Tensor{}, &ShapeMismatchError{Shape: shape, Want: want, Got: int64(len(data))}
	}

	dims := make([]int64, len(shape))
	copy(dims, shape)
	return Tensor{Data: data, Shape: dims}, nil
}

// Zeros returns a zero-filled tensor of the given shape.
func Zeros(shape ...int64) (Tensor, error) {
	n, err := ElementCount(shape)
	if err != nil {
		return Tensor{}, err
	}
	return NewTensor(make([]float32, n), shape)
}

// ElementCount returns the product of all dimensions.
func ElementCount(shape []int64) (int64, error) {
	if len(shape) == 0 {
		return 0, &ShapeMismatchError{Shape: shape, Reason: "shape has no dimensions"}
	}

	n := int64(1)
	for i, d := range shape {
		if d < 0 {
			return 0, &ShapeMismatchError{Shape: shape, Reason: fmt.Sprintf("dimension %d is negative (%d)", i, d)}
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, &ShapeMismatchError{Shape: shape, Reason: "element count overflows"}
		}
		n *= d
	}
	return n, nil
}

// Len returns the number of elements in the tensor.
func (t Tensor) Len() int {
	return len(t.Data)
}

// Head returns up to n leading values.
func (t Tensor) Head(n int) []float32 {
	if n > len(t.Data) {
		n = len(t.Data)
	}
	if n < 0 {
		n = 0
	}
	out := make([]float32, n)
	copy(out, t.Data[:n])
	return out
}
