package optim

import (
	"math"

	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

// minEps is the floor for the numerical-stability term.
const minEps = 1e-8

// NestedAdam implements Adam-style moment estimation for parameters that
// update on independent cadences.
//
// Update rule, per parameter, per firing of the owning level:
//
//	t      = t + 1                                    // per-parameter step
//	g      = grad + weight_decay * param              // if weight decay > 0
//	m_t    = beta1 * m_{t-1} + (1-beta1) * g          // first moment
//	v_t    = beta2 * v_{t-1} + (1-beta2) * g²         // second moment
//	m_hat  = m_t / (1 - beta1^t)                      // bias correction
//	v_hat  = v_t / (1 - beta2^t)                      // bias correction
//	v_hat  = max(v_hat, v_max)                        // AMSGrad, optional
//	param  = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Unlike a flat Adam, the step counter t is per parameter and advances
// only when the owning level fires. A parameter on a 1/100-frequency
// level therefore sees t = 1, 2, 3, ... on global steps 100, 200, 300,
// so its bias correction reflects how often it has actually been
// updated, not how many global steps have elapsed.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba,
// 2014); AMSGrad from "On the Convergence of Adam and Beyond" (Reddi et
// al., 2018).
type NestedAdam[B tensor.Backend] struct {
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	amsgrad     bool

	t    map[*tensor.RawTensor]int                // Per-parameter timestep
	m    map[*tensor.RawTensor]*tensor.Tensor[B]  // First moment estimates
	v    map[*tensor.RawTensor]*tensor.Tensor[B]  // Second moment estimates
	vMax map[*tensor.RawTensor]*tensor.Tensor[B]  // Running max of v_hat (AMSGrad)

	backend B
}

// AdamConfig holds configuration for the NestedAdam rule.
type AdamConfig struct {
	Betas       [2]float32 // Moment coefficients (default: [0.9, 0.999])
	Eps         float32    // Numerical stability term (default and floor: 1e-8)
	WeightDecay float32    // L2 penalty added to the gradient (default: 0)
	AMSGrad     bool       // Use the running max of v_hat (default: false)
}

// NewNestedAdam creates an Adam update rule with lazily allocated
// per-parameter state.
func NewNestedAdam[B tensor.Backend](config AdamConfig, backend B) *NestedAdam[B] {
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps < minEps {
		config.Eps = minEps
	}
	if config.WeightDecay < 0 {
		config.WeightDecay = 0
	}

	return &NestedAdam[B]{
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		amsgrad:     config.AMSGrad,
		t:           make(map[*tensor.RawTensor]int),
		m:           make(map[*tensor.RawTensor]*tensor.Tensor[B]),
		v:           make(map[*tensor.RawTensor]*tensor.Tensor[B]),
		vMax:        make(map[*tensor.RawTensor]*tensor.Tensor[B]),
		backend:     backend,
	}
}

// Apply performs one Adam update on param. State for the parameter is
// created on first use; grad is not mutated.
func (a *NestedAdam[B]) Apply(param *nn.Parameter[B], grad *tensor.Tensor[B], lr float32) {
	key := param.Tensor().Raw()

	a.t[key]++
	t := a.t[key]

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(t)))

	m, ok := a.m[key]
	if !ok {
		m = tensor.Zeros(param.Tensor().Shape(), a.backend)
		a.m[key] = m
	}
	v, ok := a.v[key]
	if !ok {
		v = tensor.Zeros(param.Tensor().Shape(), a.backend)
		a.v[key] = v
	}
	var vMaxData []float32
	if a.amsgrad {
		vMax, ok := a.vMax[key]
		if !ok {
			vMax = tensor.Zeros(param.Tensor().Shape(), a.backend)
			a.vMax[key] = vMax
		}
		vMaxData = vMax.Data()
	}

	gradData := grad.Data()
	mData := m.Data()
	vData := v.Data()
	paramData := param.Tensor().Data()

	for i := range paramData {
		g := gradData[i]
		if a.weightDecay > 0 {
			g += a.weightDecay * paramData[i]
		}

		// m_t = beta1 * m_{t-1} + (1-beta1) * g
		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g

		// v_t = beta2 * v_{t-1} + (1-beta2) * g²
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

		mHat := mData[i] / biasCorrection1
		vHat := vData[i] / biasCorrection2
		if vHat < 0 {
			vHat = 0
		}

		if a.amsgrad {
			if vHat > vMaxData[i] {
				vMaxData[i] = vHat
			}
			vHat = vMaxData[i]
		}

		paramData[i] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// Reset drops all per-parameter moment state and step counters.
func (a *NestedAdam[B]) Reset() {
	a.t = make(map[*tensor.RawTensor]int)
	a.m = make(map[*tensor.RawTensor]*tensor.Tensor[B])
	a.v = make(map[*tensor.RawTensor]*tensor.Tensor[B])
	a.vMax = make(map[*tensor.RawTensor]*tensor.Tensor[B])
}

// Timestep returns the per-parameter step counter for a parameter, or 0
// if the parameter has never been updated.
func (a *NestedAdam[B]) Timestep(param *nn.Parameter[B]) int {
	return a.t[param.Tensor().Raw()]
}

// FirstMoment returns the first-moment tensor for a parameter, or nil.
func (a *NestedAdam[B]) FirstMoment(param *nn.Parameter[B]) *tensor.Tensor[B] {
	return a.m[param.Tensor().Raw()]
}

// SecondMoment returns the second-moment tensor for a parameter, or nil.
func (a *NestedAdam[B]) SecondMoment(param *nn.Parameter[B]) *tensor.Tensor[B] {
	return a.v[param.Tensor().Raw()]
}
