package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The nested optimization core is CPU-only and single-threaded per model
// instance, so the interface is deliberately narrow: element-wise
// arithmetic, matrix multiply, shape manipulation, and the reductions and
// slicing the optimizer and context channels need.
type Backend interface {
	// Element-wise binary operations.
	// The second operand may be a row vector ([n] or [1, n]) broadcast
	// across a 2-D left operand; any other shape mismatch panics.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Maximum computes the element-wise maximum of two same-shape tensors.
	Maximum(a, b *RawTensor) *RawTensor

	// Matrix operations (2-D only).
	MatMul(a, b *RawTensor) *RawTensor
	Transpose(t *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Narrow returns a copy of the slice [start, start+length) along dim.
	// Used by context-channel compression to truncate columns.
	Narrow(t *RawTensor, dim, start, length int) *RawTensor

	// Scalar operations (element-wise with scalar).
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor
	SubScalar(x *RawTensor, scalar float32) *RawTensor
	DivScalar(x *RawTensor, scalar float32) *RawTensor

	// Math operations (element-wise).
	Sqrt(x *RawTensor) *RawTensor

	// Reduction operations.
	Sum(x *RawTensor) float32

	// Device returns the device this backend computes on.
	Device() Device
}
