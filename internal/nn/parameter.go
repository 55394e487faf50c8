package nn

import (
	"github.com/nested-ml/nested/internal/tensor"
)

// Parameter represents a trainable parameter in a model.
//
// Parameters are tensors that receive gradients during training. They are
// referenced both by the layer that uses them in the forward pass and by
// the optimization level responsible for updating them; neither side owns
// the data exclusively, and only the optimizer mutates it during a step.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad() // nil before the first backward pass
type Parameter[B tensor.Backend] struct {
	name   string             // Parameter name (e.g., "weight", "bias")
	tensor *tensor.Tensor[B]  // The parameter tensor
	grad   *tensor.Tensor[B]  // Gradient tensor, nil until recorded
}

// NewParameter creates a new trainable parameter.
//
// The parameter tensor should be initialized before creating the
// Parameter. The gradient is recorded later by the backward pass.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[B] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil if none has been recorded.
func (p *Parameter[B]) Grad() *tensor.Tensor[B] {
	return p.grad
}

// SetGrad records the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
//
// Called before each training iteration to avoid accumulating gradients
// from previous iterations. A nil gradient is a no-op.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}
