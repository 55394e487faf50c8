// Package optim implements multi-timescale optimization over a tree of
// nested levels.
//
// This package provides:
//   - Optimizer interface: base interface for all optimizers
//   - DeepOptimizer: per-level scheduling, gradient clipping, dispatch
//   - UpdateRule: polymorphic per-parameter update (SGD, NestedAdam)
//
// Design inspired by PyTorch's torch.optim, adapted for levels that fire
// at their own frequencies: a parameter owned by a low-frequency level
// accumulates optimizer state only on the sparse steps its level fires.
//
// Example usage:
//
//	opt := optim.NewDeepOptimizer(block.Levels(), optim.DeepConfig{
//	    LR:   0.001,
//	    Rule: optim.NewNestedAdam[B](optim.AdamConfig{}, backend),
//	}, backend)
//
//	for step := 0; step < steps; step++ {
//	    output := block.Forward(input)
//	    grads := computeGradients(output, target)
//	    opt.Step(grads)
//	    opt.ZeroGrad()
//	}
package optim

import (
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters due at the current
	// step. The gradient map is keyed by each parameter tensor's
	// RawTensor identity.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current global learning rate.
	GetLR() float32
}

// UpdateRule applies one parameter update. Implementations own whatever
// per-parameter state the rule needs (moment estimates, step counters),
// keyed by the parameter tensor's RawTensor identity.
type UpdateRule[B tensor.Backend] interface {
	// Apply updates param in place using grad and the effective learning
	// rate. grad is never mutated.
	Apply(param *nn.Parameter[B], grad *tensor.Tensor[B], lr float32)

	// Reset drops all per-parameter state.
	Reset()
}

// getGradient safely retrieves the gradient for a parameter.
//
// Returns nil if no gradient is present (the parameter did not
// participate in the forward pass). A missing gradient is a no-op for
// the step, never an error.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
