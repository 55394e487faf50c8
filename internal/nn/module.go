// Package nn implements the layer primitives consumed by the nested
// optimization core.
//
// This package provides:
//   - Module interface: any object exposing a forward computation
//   - Parameter: trainable values with gradient tracking
//   - Linear: fully connected layer
//   - Activations: ReLU, Tanh
//
// Design follows PyTorch's nn.Module adapted for Go generics. The nested
// block that orchestrates layers across optimization levels lives in the
// hierarchy package.
package nn

import (
	"github.com/nested-ml/nested/internal/tensor"
)

// Module is the base interface for all forward-computation components.
//
// Modules can be composed to build models whose layers are partitioned
// across optimization levels:
//
//	layers := []nn.Module[B]{
//	    nn.NewLinear(4, 16, backend),
//	    nn.NewTanh[B](),
//	    nn.NewLinear(16, 1, backend),
//	}
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[B]) *tensor.Tensor[B]

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter[B]
}
