package tensor

// Element-wise operations. Each delegates to the backend and wraps the
// result in a new Tensor; inputs are never mutated.

// Add performs element-wise addition with broadcasting.
func (t *Tensor[B]) Add(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Add(t.raw, other.raw), t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[B]) Sub(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Sub(t.raw, other.raw), t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[B]) Mul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Mul(t.raw, other.raw), t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[B]) Div(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Div(t.raw, other.raw), t.backend)
}

// Maximum computes the element-wise maximum with another tensor.
func (t *Tensor[B]) Maximum(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.Maximum(t.raw, other.raw), t.backend)
}

// MatMul performs matrix multiplication: [m, k] @ [k, n] -> [m, n].
func (t *Tensor[B]) MatMul(other *Tensor[B]) *Tensor[B] {
	return New(t.backend.MatMul(t.raw, other.raw), t.backend)
}

// Transpose returns the transposed 2-D tensor.
func (t *Tensor[B]) Transpose() *Tensor[B] {
	return New(t.backend.Transpose(t.raw), t.backend)
}

// T is shorthand for Transpose.
func (t *Tensor[B]) T() *Tensor[B] {
	return t.Transpose()
}

// Reshape returns a tensor with the same data and a new shape.
func (t *Tensor[B]) Reshape(newShape ...int) *Tensor[B] {
	return New(t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// Narrow returns a copy of the slice [start, start+length) along dim.
func (t *Tensor[B]) Narrow(dim, start, length int) *Tensor[B] {
	return New(t.backend.Narrow(t.raw, dim, start, length), t.backend)
}

// Scalar operations.

// MulScalar multiplies every element by a scalar.
func (t *Tensor[B]) MulScalar(s float32) *Tensor[B] {
	return New(t.backend.MulScalar(t.raw, s), t.backend)
}

// AddScalar adds a scalar to every element.
func (t *Tensor[B]) AddScalar(s float32) *Tensor[B] {
	return New(t.backend.AddScalar(t.raw, s), t.backend)
}

// SubScalar subtracts a scalar from every element.
func (t *Tensor[B]) SubScalar(s float32) *Tensor[B] {
	return New(t.backend.SubScalar(t.raw, s), t.backend)
}

// DivScalar divides every element by a scalar.
func (t *Tensor[B]) DivScalar(s float32) *Tensor[B] {
	return New(t.backend.DivScalar(t.raw, s), t.backend)
}

// Math operations.

// Sqrt computes the element-wise square root.
// Negative inputs are floored at zero before the root is taken.
func (t *Tensor[B]) Sqrt() *Tensor[B] {
	return New(t.backend.Sqrt(t.raw), t.backend)
}

// Square computes the element-wise square.
func (t *Tensor[B]) Square() *Tensor[B] {
	return New(t.backend.Mul(t.raw, t.raw), t.backend)
}

// Sum returns the sum of all elements as a scalar.
func (t *Tensor[B]) Sum() float32 {
	return t.backend.Sum(t.raw)
}
