package optim

import (
	"fmt"

	"github.com/nested-ml/nested/internal/hierarchy"
	"github.com/nested-ml/nested/internal/tensor"
)

// DeepOptimizer drives a global step counter and dispatches gradients to
// the optimization levels that fire at each step.
//
// The optimizer does not own parameters (levels hold references to
// parameters owned by the model), but it exclusively owns the update
// rule's per-parameter state. Standard flow:
//
//	opt := optim.NewDeepOptimizer(block.Levels(), optim.DeepConfig{LR: 0.001}, backend)
//	for ... {
//	    grads := ... // external backward pass
//	    opt.Step(grads)
//	    opt.ZeroGrad()
//	}
//
// Not safe for concurrent use; callers needing data-parallel training
// aggregate gradients externally before a single-threaded Step.
type DeepOptimizer[B tensor.Backend] struct {
	levels          []*hierarchy.Level[B]
	globalLR        float32
	currentStep     int
	clipThreshold   float32
	clippingEnabled bool
	rule            UpdateRule[B]
	backend         B
}

// DeepConfig holds configuration for DeepOptimizer.
type DeepConfig[B tensor.Backend] struct {
	// LR is the global learning rate, used for levels whose own rate is
	// zero (default: 0.001).
	LR float32

	// ClipThreshold bounds each gradient's L2 norm before the update.
	// Ignored unless EnableClipping is set.
	ClipThreshold float32

	// EnableClipping turns on gradient-norm clipping.
	EnableClipping bool

	// Rule is the per-parameter update rule. Defaults to NestedAdam with
	// standard hyperparameters.
	Rule UpdateRule[B]
}

// NewDeepOptimizer creates an optimizer over the given levels.
//
// Levels are referenced, not copied: the optimizer shares them with the
// NestedBlock that built them. Negative configuration values are clamped
// to zero.
func NewDeepOptimizer[B tensor.Backend](levels []*hierarchy.Level[B], config DeepConfig[B], backend B) *DeepOptimizer[B] {
	if config.LR <= 0 {
		config.LR = 0.001
	}
	if config.ClipThreshold < 0 {
		config.ClipThreshold = 0
	}
	if config.Rule == nil {
		config.Rule = NewNestedAdam[B](AdamConfig{}, backend)
	}

	return &DeepOptimizer[B]{
		levels:          levels,
		globalLR:        config.LR,
		clipThreshold:   config.ClipThreshold,
		clippingEnabled: config.EnableClipping,
		rule:            config.Rule,
		backend:         backend,
	}
}

// Step increments the global step and updates every level due at it.
//
// For each firing level, the level's gradients are collected from the
// map (missing gradients are skipped silently), clipped when clipping is
// enabled, and handed to the update rule with the level's learning rate
// (the global rate when the level's is zero). Firing levels record the
// step as their last update.
func (d *DeepOptimizer[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	d.currentStep++

	for _, level := range d.levels {
		if !level.ShouldUpdate(d.currentStep) {
			continue
		}

		lr := level.LearningRate()
		if lr == 0 {
			lr = d.globalLR
		}

		for _, param := range level.Parameters() {
			gradRaw := getGradient(param, grads)
			if gradRaw == nil {
				continue
			}
			grad := tensor.New(gradRaw, d.backend)
			if d.clippingEnabled {
				grad = d.clip(grad)
			}
			d.rule.Apply(param, grad, lr)
		}

		level.MarkUpdated(d.currentStep)
	}
}

// clip rescales a gradient so its L2 norm does not exceed the threshold:
// scale = min(1, threshold / ||grad||). Returns a new tensor when scaling
// is needed; the input is never mutated.
func (d *DeepOptimizer[B]) clip(grad *tensor.Tensor[B]) *tensor.Tensor[B] {
	if d.clipThreshold <= 0 {
		return grad
	}
	norm := grad.Norm()
	if norm <= d.clipThreshold {
		return grad
	}
	return grad.MulScalar(d.clipThreshold / norm)
}

// ZeroGrad clears the recorded gradient of every parameter across all
// levels. Parameters without gradients are no-ops.
func (d *DeepOptimizer[B]) ZeroGrad() {
	for _, level := range d.levels {
		for _, param := range level.Parameters() {
			param.ZeroGrad()
		}
	}
}

// Reset returns the optimizer to its initial state: the global step goes
// back to zero, the rule drops all per-parameter state, and every level's
// firing history is cleared. Parameter values are untouched.
func (d *DeepOptimizer[B]) Reset() {
	d.currentStep = 0
	d.rule.Reset()
	for _, level := range d.levels {
		level.ResetSchedule()
	}
}

// CurrentStep returns the number of Step calls since creation or Reset.
func (d *DeepOptimizer[B]) CurrentStep() int {
	return d.currentStep
}

// GetLR returns the global learning rate.
func (d *DeepOptimizer[B]) GetLR() float32 {
	return d.globalLR
}

// SetLR updates the global learning rate.
//
// Useful for learning rate scheduling during training.
func (d *DeepOptimizer[B]) SetLR(lr float32) {
	if lr < 0 {
		lr = 0
	}
	d.globalLR = lr
}

// Rule returns the configured update rule.
func (d *DeepOptimizer[B]) Rule() UpdateRule[B] {
	return d.rule
}

// Levels returns the levels this optimizer schedules.
func (d *DeepOptimizer[B]) Levels() []*hierarchy.Level[B] {
	return d.levels
}

// StateDict exports the optimizer state for checkpointing.
//
// Keys follow "level.{i}.param.{j}.{m,v,vmax,t}" for the Adam moment
// state (t is a one-element tensor holding the per-parameter step) and
// "level.{i}.last" for each level's last update step. An optimizer on a
// stateless rule exports only the per-level entries.
func (d *DeepOptimizer[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	for i, level := range d.levels {
		last := scalarRaw(float32(level.LastUpdateStep()), d.backend)
		stateDict[fmt.Sprintf("level.%d.last", i)] = last

		adam, ok := d.rule.(*NestedAdam[B])
		if !ok {
			continue
		}
		for j, param := range level.Parameters() {
			prefix := fmt.Sprintf("level.%d.param.%d", i, j)
			key := param.Tensor().Raw()
			if m, ok := adam.m[key]; ok {
				stateDict[prefix+".m"] = m.Raw()
			}
			if v, ok := adam.v[key]; ok {
				stateDict[prefix+".v"] = v.Raw()
			}
			if vMax, ok := adam.vMax[key]; ok {
				stateDict[prefix+".vmax"] = vMax.Raw()
			}
			if t, ok := adam.t[key]; ok {
				stateDict[prefix+".t"] = scalarRaw(float32(t), d.backend)
			}
		}
	}

	return stateDict
}

// LoadStateDict restores optimizer state exported by StateDict.
//
// Moment tensors must match their parameters' shapes; a mismatch is an
// error. Entries absent from the dict leave the corresponding state
// unset (it will be re-initialized lazily on the next update).
func (d *DeepOptimizer[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	adam, isAdam := d.rule.(*NestedAdam[B])
	if isAdam {
		adam.Reset()
	}

	for i, level := range d.levels {
		if last, ok := stateDict[fmt.Sprintf("level.%d.last", i)]; ok {
			level.MarkUpdated(int(last.AsFloat32()[0]))
		}
		if !isAdam {
			continue
		}
		for j, param := range level.Parameters() {
			prefix := fmt.Sprintf("level.%d.param.%d", i, j)
			key := param.Tensor().Raw()
			shape := param.Tensor().Shape()

			for _, kind := range []string{"m", "v", "vmax"} {
				raw, ok := stateDict[prefix+"."+kind]
				if !ok {
					continue
				}
				if !raw.Shape().Equal(shape) {
					return fmt.Errorf("state shape mismatch for %s.%s: expected %v, got %v",
						prefix, kind, shape, raw.Shape())
				}
				t := tensor.New(raw, d.backend)
				switch kind {
				case "m":
					adam.m[key] = t
				case "v":
					adam.v[key] = t
				case "vmax":
					adam.vMax[key] = t
				}
			}
			if raw, ok := stateDict[prefix+".t"]; ok {
				adam.t[key] = int(raw.AsFloat32()[0])
			}
		}
	}

	return nil
}

// scalarRaw builds a one-element RawTensor holding v.
func scalarRaw[B tensor.Backend](v float32, backend B) *tensor.RawTensor {
	raw, err := tensor.NewRaw(tensor.Shape{1}, backend.Device())
	if err != nil {
		panic(err)
	}
	raw.AsFloat32()[0] = v
	return raw
}
