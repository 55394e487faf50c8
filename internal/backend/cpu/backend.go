// Package cpu implements the pure-Go CPU backend for the nested
// optimization core.
package cpu

import (
	"fmt"
	"math"

	"github.com/nested-ml/nested/internal/parallel"
	"github.com/nested-ml/nested/internal/tensor"
)

// CPUBackend implements tensor operations on CPU with plain float32 loops.
// Matrix multiplication fans out across rows for large operands.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with row-vector broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with row-vector broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with row-vector broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with row-vector broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

// Maximum computes the element-wise maximum of two same-shape tensors.
func (cpu *CPUBackend) Maximum(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("maximum", a, b, func(x, y float32) float32 {
		if x > y {
			return x
		}
		return y
	})
}

// binary applies op element-wise. Shapes must match exactly, or b must be
// a row vector ([n] or [1, n]) broadcast across a 2-D a.
func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, op func(x, y float32) float32) *tensor.RawTensor {
	result, err := tensor.NewRaw(a.Shape(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}
	dst := result.AsFloat32()
	av := a.AsFloat32()
	bv := b.AsFloat32()

	switch {
	case a.Shape().Equal(b.Shape()):
		for i := range av {
			dst[i] = op(av[i], bv[i])
		}
	case isRowBroadcast(a.Shape(), b.Shape()):
		cols := a.Shape()[len(a.Shape())-1]
		for i := range av {
			dst[i] = op(av[i], bv[i%cols])
		}
	default:
		panic(fmt.Sprintf("%s: shapes not compatible: %v vs %v", name, a.Shape(), b.Shape()))
	}
	return result
}

// isRowBroadcast reports whether b is a row vector broadcastable across
// the last dimension of a.
func isRowBroadcast(a, b tensor.Shape) bool {
	if len(a) < 1 {
		return false
	}
	cols := a[len(a)-1]
	switch len(b) {
	case 1:
		return b[0] == cols
	case 2:
		return b[0] == 1 && b[1] == cols
	default:
		return false
	}
}

// MatMul performs 2-D matrix multiplication: [m, k] @ [k, n] -> [m, n].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("matmul: expected 2-D operands, got %v and %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("matmul: inner dimensions do not match: %v @ %v", as, bs))
	}
	m, k, n := as[0], as[1], bs[1]

	result, err := tensor.NewRaw(tensor.Shape{m, n}, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: failed to create result tensor: %v", err))
	}
	dst := result.AsFloat32()
	av := a.AsFloat32()
	bv := b.AsFloat32()

	// Rows write to disjoint slices of dst, so they parallelize cleanly.
	parallel.For(m, func(i int) {
		for p := 0; p < k; p++ {
			aip := av[i*k+p]
			if aip == 0 {
				continue
			}
			row := bv[p*n : (p+1)*n]
			out := dst[i*n : (i+1)*n]
			for j := range row {
				out[j] += aip * row[j]
			}
		}
	}, cpu.parallel)
	return result
}

// Transpose returns the transposed 2-D tensor.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	s := t.Shape()
	if len(s) != 2 {
		panic(fmt.Sprintf("transpose: expected 2-D tensor, got %v", s))
	}
	rows, cols := s[0], s[1]

	result, err := tensor.NewRaw(tensor.Shape{cols, rows}, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: failed to create result tensor: %v", err))
	}
	dst := result.AsFloat32()
	src := t.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result
}

// Reshape returns a copy of the tensor with a new shape.
// The element count must be preserved.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	result, err := tensor.NewRaw(newShape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("reshape: failed to create result tensor: %v", err))
	}
	copy(result.AsFloat32(), t.AsFloat32())
	return result
}

// Narrow returns a copy of the slice [start, start+length) along dim.
func (cpu *CPUBackend) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	s := t.Shape()
	if dim < 0 || dim >= len(s) {
		panic(fmt.Sprintf("narrow: dimension %d out of range for shape %v", dim, s))
	}
	if start < 0 || length < 1 || start+length > s[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension of size %d",
			start, start+length, s[dim]))
	}

	outShape := s.Clone()
	outShape[dim] = length
	result, err := tensor.NewRaw(outShape, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("narrow: failed to create result tensor: %v", err))
	}

	// Copy contiguous runs: outer iterates over dimensions before dim,
	// inner is the contiguous block after it.
	inner := 1
	for i := dim + 1; i < len(s); i++ {
		inner *= s[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= s[i]
	}

	src := t.AsFloat32()
	dst := result.AsFloat32()
	for o := 0; o < outer; o++ {
		srcBase := (o*s[dim] + start) * inner
		dstBase := o * length * inner
		copy(dst[dstBase:dstBase+length*inner], src[srcBase:srcBase+length*inner])
	}
	return result
}

// Scalar operations.

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary("mulscalar", x, func(v float32) float32 { return v * scalar })
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary("addscalar", x, func(v float32) float32 { return v + scalar })
}

// SubScalar subtracts a scalar from every element.
func (cpu *CPUBackend) SubScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary("subscalar", x, func(v float32) float32 { return v - scalar })
}

// DivScalar divides every element by a scalar.
func (cpu *CPUBackend) DivScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary("divscalar", x, func(v float32) float32 { return v / scalar })
}

// Sqrt computes the element-wise square root.
// Negative values are floored at zero before the root is taken.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x, func(v float32) float32 {
		if v < 0 {
			v = 0
		}
		return float32(math.Sqrt(float64(v)))
	})
}

func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor, op func(v float32) float32) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}
	dst := result.AsFloat32()
	src := x.AsFloat32()
	for i := range src {
		dst[i] = op(src[i])
	}
	return result
}

// Sum returns the sum of all elements.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) float32 {
	var total float32
	for _, v := range x.AsFloat32() {
		total += v
	}
	return total
}
