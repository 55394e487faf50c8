package tensor

import (
	"fmt"
	"math"
)

// Tensor is a typed handle over a RawTensor bound to a compute backend.
//
// B is the backend implementation (CPU today; the type parameter keeps the
// door open for device backends without touching call sites).
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[*cpu.CPUBackend](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[*cpu.CPUBackend](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
type Tensor[B Backend] struct {
	raw     *RawTensor
	backend B
}

// New creates a tensor from a raw tensor.
//
// This is a low-level function. Most users should use creation functions
// like Zeros, Ones, or FromSlice instead.
func New[B Backend](raw *RawTensor, b B) *Tensor[B] {
	return &Tensor[B]{raw: raw, backend: b}
}

// FromSlice creates a tensor from a Go slice.
//
// The slice is copied; the tensor does not alias the caller's data.
// Returns an error if the slice length does not match the shape.
func FromSlice[B Backend](data []float32, shape Shape, b B) (*Tensor[B], error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("FromSlice: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("FromSlice: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	raw, err := NewRaw(shape, b.Device())
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return New(raw, b), nil
}

// Shape returns the tensor dimensions.
func (t *Tensor[B]) Shape() Shape {
	return t.raw.Shape()
}

// NumElements returns the total number of elements.
func (t *Tensor[B]) NumElements() int {
	return t.raw.NumElements()
}

// Raw returns the underlying RawTensor.
//
// The RawTensor's pointer identity keys gradient maps and optimizer
// moment state.
func (t *Tensor[B]) Raw() *RawTensor {
	return t.raw
}

// Backend returns the compute backend.
func (t *Tensor[B]) Backend() B {
	return t.backend
}

// Data returns the underlying float32 buffer (aliased, not copied).
func (t *Tensor[B]) Data() []float32 {
	return t.raw.AsFloat32()
}

// Item returns the single element of a one-element tensor.
// Panics if the tensor has more than one element.
func (t *Tensor[B]) Item() float32 {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("Item: tensor has %d elements, expected 1", t.NumElements()))
	}
	return t.raw.AsFloat32()[0]
}

// At returns the element at the given indices (row-major).
func (t *Tensor[B]) At(indices ...int) float32 {
	return t.raw.AsFloat32()[t.flatIndex(indices)]
}

// Set writes the element at the given indices (row-major).
func (t *Tensor[B]) Set(value float32, indices ...int) {
	t.raw.AsFloat32()[t.flatIndex(indices)] = value
}

func (t *Tensor[B]) flatIndex(indices []int) int {
	shape := t.raw.Shape()
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("tensor: got %d indices for shape %v", len(indices), shape))
	}
	idx := 0
	for i, ind := range indices {
		if ind < 0 || ind >= shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d (size %d)", ind, i, shape[i]))
		}
		idx = idx*shape[i] + ind
	}
	return idx
}

// Clone returns a deep copy with fresh identity.
func (t *Tensor[B]) Clone() *Tensor[B] {
	return New(t.raw.Clone(), t.backend)
}

// String returns a short description of the tensor.
func (t *Tensor[B]) String() string {
	return t.raw.String()
}

// Norm returns the L2 norm of the tensor as a scalar.
//
// Used by the optimizer for gradient-norm clipping.
func (t *Tensor[B]) Norm() float32 {
	sq := t.backend.Mul(t.raw, t.raw)
	return float32(math.Sqrt(float64(t.backend.Sum(sq))))
}

// Mean returns the arithmetic mean of all elements.
func (t *Tensor[B]) Mean() float32 {
	n := t.NumElements()
	if n == 0 {
		return 0
	}
	return t.backend.Sum(t.raw) / float32(n)
}
