package optim_test

import (
	"testing"

	"github.com/nested-ml/nested/internal/backend/cpu"
	"github.com/nested-ml/nested/internal/hierarchy"
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/optim"
	"github.com/nested-ml/nested/internal/tensor"
)

type B = *cpu.CPUBackend

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func newParam(t *testing.T, backend *cpu.CPUBackend, name string, values ...float32) *nn.Parameter[B] {
	t.Helper()
	v, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	return nn.NewParameter(name, v)
}

func gradFor(param *nn.Parameter[B], backend *cpu.CPUBackend, values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	raw, err := tensor.NewRaw(tensor.Shape{len(values)}, backend.Device())
	if err != nil {
		panic(err)
	}
	copy(raw.AsFloat32(), values)
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): raw}
}

// TestSGDRule_SimpleUpdate tests the plain SGD rule: param -= lr * grad.
func TestSGDRule_SimpleUpdate(t *testing.T) {
	backend := cpu.New()
	param := newParam(t, backend, "x", 2.0)
	grad, _ := tensor.FromSlice([]float32{1.0}, tensor.Shape{1}, backend)

	rule := optim.NewSGDRule[B]()
	rule.Apply(param, grad, 0.1)

	got := param.Tensor().Data()[0]
	if !floatEqual(got, 1.9, 1e-6) {
		t.Errorf("expected 1.9 after SGD step, got %f", got)
	}
}

// TestNestedAdam_FirstStep verifies the first update moves the parameter
// by approximately lr: with zero initial moments, m_hat = g and
// v_hat = g², so the step is lr * g / (|g| + eps).
func TestNestedAdam_FirstStep(t *testing.T) {
	backend := cpu.New()
	param := newParam(t, backend, "x", 1.0)
	grad, _ := tensor.FromSlice([]float32{1.0}, tensor.Shape{1}, backend)

	adam := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	adam.Apply(param, grad, 0.1)

	got := param.Tensor().Data()[0]
	if !floatEqual(got, 0.9, 1e-4) {
		t.Errorf("expected ~0.9 after first Adam step, got %f", got)
	}
	if adam.Timestep(param) != 1 {
		t.Errorf("expected timestep 1, got %d", adam.Timestep(param))
	}
}

// TestNestedAdam_PerParameterTimestep verifies step counters advance
// independently per parameter.
func TestNestedAdam_PerParameterTimestep(t *testing.T) {
	backend := cpu.New()
	busy := newParam(t, backend, "busy", 1.0)
	idle := newParam(t, backend, "idle", 1.0)
	grad, _ := tensor.FromSlice([]float32{0.5}, tensor.Shape{1}, backend)

	adam := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	for i := 0; i < 5; i++ {
		adam.Apply(busy, grad, 0.01)
	}
	adam.Apply(idle, grad, 0.01)

	if adam.Timestep(busy) != 5 {
		t.Errorf("expected busy timestep 5, got %d", adam.Timestep(busy))
	}
	if adam.Timestep(idle) != 1 {
		t.Errorf("expected idle timestep 1, got %d", adam.Timestep(idle))
	}
}

// TestNestedAdam_WeightDecay verifies weight decay pulls a parameter
// toward zero even with a zero gradient.
func TestNestedAdam_WeightDecay(t *testing.T) {
	backend := cpu.New()
	param := newParam(t, backend, "x", 1.0)
	grad, _ := tensor.FromSlice([]float32{0.0}, tensor.Shape{1}, backend)

	adam := optim.NewNestedAdam[B](optim.AdamConfig{WeightDecay: 0.1}, backend)
	adam.Apply(param, grad, 0.1)

	got := param.Tensor().Data()[0]
	if got >= 1.0 {
		t.Errorf("expected weight decay to shrink the parameter, got %f", got)
	}
}

// TestNestedAdam_AMSGrad verifies the AMSGrad variant takes smaller
// steps after a large gradient: the running max of v_hat keeps the
// denominator at its peak.
func TestNestedAdam_AMSGrad(t *testing.T) {
	backend := cpu.New()
	plainParam := newParam(t, backend, "plain", 1.0)
	amsParam := newParam(t, backend, "ams", 1.0)

	plain := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	ams := optim.NewNestedAdam[B](optim.AdamConfig{AMSGrad: true}, backend)

	big, _ := tensor.FromSlice([]float32{1.0}, tensor.Shape{1}, backend)
	small, _ := tensor.FromSlice([]float32{0.01}, tensor.Shape{1}, backend)

	plain.Apply(plainParam, big, 0.1)
	plain.Apply(plainParam, small, 0.1)
	ams.Apply(amsParam, big, 0.1)
	ams.Apply(amsParam, small, 0.1)

	plainVal := plainParam.Tensor().Data()[0]
	amsVal := amsParam.Tensor().Data()[0]
	if amsVal <= plainVal {
		t.Errorf("expected AMSGrad to step less after the spike: plain=%f ams=%f", plainVal, amsVal)
	}
}

// TestNestedAdam_Reset verifies Reset drops all per-parameter state.
func TestNestedAdam_Reset(t *testing.T) {
	backend := cpu.New()
	param := newParam(t, backend, "x", 1.0)
	grad, _ := tensor.FromSlice([]float32{1.0}, tensor.Shape{1}, backend)

	adam := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	adam.Apply(param, grad, 0.1)
	adam.Reset()

	if adam.Timestep(param) != 0 {
		t.Errorf("expected timestep 0 after Reset, got %d", adam.Timestep(param))
	}
	if adam.FirstMoment(param) != nil {
		t.Error("expected first moment to be dropped after Reset")
	}
}

// TestDeepOptimizer_Cadence runs three levels at frequencies 1.0, 0.1,
// and 0.01 for 100 steps and checks each level fired the expected
// number of times.
func TestDeepOptimizer_Cadence(t *testing.T) {
	backend := cpu.New()

	frequencies := []float32{1.0, 0.1, 0.01}
	levels := make([]*hierarchy.Level[B], len(frequencies))
	params := make([]*nn.Parameter[B], len(frequencies))
	for i, f := range frequencies {
		levels[i] = hierarchy.NewLevel[B](i, f, 0)
		params[i] = newParam(t, backend, "p", 1.0)
		levels[i].AddParameters(params[i])
	}

	adam := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	opt := optim.NewDeepOptimizer(levels, optim.DeepConfig[B]{LR: 0.001, Rule: adam}, backend)

	for step := 0; step < 100; step++ {
		grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
		for _, p := range params {
			g, _ := tensor.NewRaw(tensor.Shape{1}, backend.Device())
			g.AsFloat32()[0] = 0.1
			grads[p.Tensor().Raw()] = g
		}
		opt.Step(grads)
	}

	wantFires := []int{100, 10, 1}
	for i, want := range wantFires {
		if got := adam.Timestep(params[i]); got != want {
			t.Errorf("level %d: expected %d updates, got %d", i, want, got)
		}
	}
	if levels[2].LastUpdateStep() != 100 {
		t.Errorf("expected slowest level to last fire at step 100, got %d", levels[2].LastUpdateStep())
	}
	if opt.CurrentStep() != 100 {
		t.Errorf("expected current step 100, got %d", opt.CurrentStep())
	}
}

// TestDeepOptimizer_LevelLROverride verifies a level's own learning
// rate wins over the global rate, and a zero level rate falls back.
func TestDeepOptimizer_LevelLROverride(t *testing.T) {
	backend := cpu.New()

	own := hierarchy.NewLevel[B](0, 1.0, 0.5)
	fallback := hierarchy.NewLevel[B](1, 1.0, 0)
	ownParam := newParam(t, backend, "own", 1.0)
	fallbackParam := newParam(t, backend, "fallback", 1.0)
	own.AddParameters(ownParam)
	fallback.AddParameters(fallbackParam)

	opt := optim.NewDeepOptimizer(
		[]*hierarchy.Level[B]{own, fallback},
		optim.DeepConfig[B]{LR: 0.1, Rule: optim.NewSGDRule[B]()},
		backend,
	)

	grads := gradFor(ownParam, backend, 1.0)
	for k, v := range gradFor(fallbackParam, backend, 1.0) {
		grads[k] = v
	}
	opt.Step(grads)

	if got := ownParam.Tensor().Data()[0]; !floatEqual(got, 0.5, 1e-6) {
		t.Errorf("expected level learning rate 0.5 to apply, got param %f", got)
	}
	if got := fallbackParam.Tensor().Data()[0]; !floatEqual(got, 0.9, 1e-6) {
		t.Errorf("expected global learning rate 0.1 to apply, got param %f", got)
	}
}

// TestDeepOptimizer_Clipping verifies gradient-norm clipping: a
// gradient of norm 5 clipped to threshold 1 scales by 1/5.
func TestDeepOptimizer_Clipping(t *testing.T) {
	backend := cpu.New()

	level := hierarchy.NewLevel[B](0, 1.0, 1.0)
	param := newParam(t, backend, "x", 0.0, 0.0)
	level.AddParameters(param)

	opt := optim.NewDeepOptimizer(
		[]*hierarchy.Level[B]{level},
		optim.DeepConfig[B]{LR: 1.0, ClipThreshold: 1.0, EnableClipping: true, Rule: optim.NewSGDRule[B]()},
		backend,
	)

	opt.Step(gradFor(param, backend, 3.0, 4.0))

	data := param.Tensor().Data()
	if !floatEqual(data[0], -0.6, 1e-5) || !floatEqual(data[1], -0.8, 1e-5) {
		t.Errorf("expected clipped update [-0.6, -0.8], got %v", data)
	}
}

// TestDeepOptimizer_MissingGradientSkipped verifies parameters without
// gradients are left untouched.
func TestDeepOptimizer_MissingGradientSkipped(t *testing.T) {
	backend := cpu.New()

	level := hierarchy.NewLevel[B](0, 1.0, 0.1)
	withGrad := newParam(t, backend, "a", 1.0)
	withoutGrad := newParam(t, backend, "b", 1.0)
	level.AddParameters(withGrad, withoutGrad)

	opt := optim.NewDeepOptimizer(
		[]*hierarchy.Level[B]{level},
		optim.DeepConfig[B]{Rule: optim.NewSGDRule[B]()},
		backend,
	)
	opt.Step(gradFor(withGrad, backend, 1.0))

	if got := withoutGrad.Tensor().Data()[0]; got != 1.0 {
		t.Errorf("expected parameter without gradient untouched, got %f", got)
	}
	if got := withGrad.Tensor().Data()[0]; got == 1.0 {
		t.Error("expected parameter with gradient to move")
	}
}

// TestDeepOptimizer_Reset verifies Reset clears the step counter and
// every level's schedule while leaving parameter values alone.
func TestDeepOptimizer_Reset(t *testing.T) {
	backend := cpu.New()

	level := hierarchy.NewLevel[B](0, 1.0, 0.1)
	param := newParam(t, backend, "x", 1.0)
	level.AddParameters(param)

	opt := optim.NewDeepOptimizer(
		[]*hierarchy.Level[B]{level},
		optim.DeepConfig[B]{Rule: optim.NewSGDRule[B]()},
		backend,
	)
	opt.Step(gradFor(param, backend, 1.0))
	valueBefore := param.Tensor().Data()[0]

	opt.Reset()

	if opt.CurrentStep() != 0 {
		t.Errorf("expected step 0 after Reset, got %d", opt.CurrentStep())
	}
	if level.LastUpdateStep() != -1 {
		t.Errorf("expected schedule cleared after Reset, got %d", level.LastUpdateStep())
	}
	if got := param.Tensor().Data()[0]; got != valueBefore {
		t.Errorf("expected parameter value untouched by Reset, got %f", got)
	}
}

// TestDeepOptimizer_SetLR verifies learning rate scheduling hooks.
func TestDeepOptimizer_SetLR(t *testing.T) {
	backend := cpu.New()
	opt := optim.NewDeepOptimizer(nil, optim.DeepConfig[B]{LR: 0.01}, backend)

	if opt.GetLR() != 0.01 {
		t.Errorf("expected LR 0.01, got %f", opt.GetLR())
	}
	opt.SetLR(0.001)
	if opt.GetLR() != 0.001 {
		t.Errorf("expected LR 0.001 after SetLR, got %f", opt.GetLR())
	}
	opt.SetLR(-1)
	if opt.GetLR() != 0 {
		t.Errorf("expected negative LR clamped to 0, got %f", opt.GetLR())
	}
}

// TestDeepOptimizer_StateDictRoundTrip exports optimizer state after a
// few steps, resets, and restores it.
func TestDeepOptimizer_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()

	level := hierarchy.NewLevel[B](0, 1.0, 0.1)
	param := newParam(t, backend, "x", 1.0, 2.0)
	level.AddParameters(param)

	adam := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	opt := optim.NewDeepOptimizer(
		[]*hierarchy.Level[B]{level},
		optim.DeepConfig[B]{LR: 0.01, Rule: adam},
		backend,
	)

	for i := 0; i < 3; i++ {
		opt.Step(gradFor(param, backend, 0.5, -0.5))
	}

	wantMoment := append([]float32(nil), adam.FirstMoment(param).Data()...)
	stateDict := opt.StateDict()

	opt.Reset()
	if adam.Timestep(param) != 0 {
		t.Fatal("expected clean state after Reset")
	}

	if err := opt.LoadStateDict(stateDict); err != nil {
		t.Fatalf("LoadStateDict failed: %v", err)
	}

	if got := adam.Timestep(param); got != 3 {
		t.Errorf("expected timestep 3 restored, got %d", got)
	}
	if level.LastUpdateStep() != 3 {
		t.Errorf("expected last update step 3 restored, got %d", level.LastUpdateStep())
	}
	gotMoment := adam.FirstMoment(param).Data()
	for i := range wantMoment {
		if !floatEqual(gotMoment[i], wantMoment[i], 1e-7) {
			t.Errorf("first moment mismatch at %d: want %f, got %f", i, wantMoment[i], gotMoment[i])
		}
	}
}

// TestDeepOptimizer_LoadStateDictShapeMismatch verifies a moment tensor
// with the wrong shape is rejected.
func TestDeepOptimizer_LoadStateDictShapeMismatch(t *testing.T) {
	backend := cpu.New()

	level := hierarchy.NewLevel[B](0, 1.0, 0.1)
	param := newParam(t, backend, "x", 1.0, 2.0)
	level.AddParameters(param)

	adam := optim.NewNestedAdam[B](optim.AdamConfig{}, backend)
	opt := optim.NewDeepOptimizer(
		[]*hierarchy.Level[B]{level},
		optim.DeepConfig[B]{Rule: adam},
		backend,
	)

	bad, _ := tensor.NewRaw(tensor.Shape{3}, backend.Device())
	err := opt.LoadStateDict(map[string]*tensor.RawTensor{"level.0.param.0.m": bad})
	if err == nil {
		t.Error("expected shape mismatch error")
	}
}
