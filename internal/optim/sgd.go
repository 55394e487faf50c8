package optim

import (
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

// SGDRule is the plain stochastic gradient descent update:
//
//	param = param - lr * gradient
//
// It keeps no per-parameter state and serves as the fallback rule when a
// moment-based rule is not configured.
type SGDRule[B tensor.Backend] struct{}

// NewSGDRule creates a stateless SGD update rule.
func NewSGDRule[B tensor.Backend]() *SGDRule[B] {
	return &SGDRule[B]{}
}

// Apply performs param -= lr * grad in place.
func (r *SGDRule[B]) Apply(param *nn.Parameter[B], grad *tensor.Tensor[B], lr float32) {
	paramData := param.Tensor().Data()
	gradData := grad.Data()
	for i := range paramData {
		paramData[i] -= lr * gradData[i]
	}
}

// Reset is a no-op: SGD has no state.
func (r *SGDRule[B]) Reset() {}
