package hierarchy_test

import (
	"testing"

	"github.com/nested-ml/nested/internal/backend/cpu"
	"github.com/nested-ml/nested/internal/hierarchy"
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

func TestShouldUpdate_BootstrapAlwaysFires(t *testing.T) {
	level := hierarchy.NewLevel[B](0, 0.01, 0)

	if !level.ShouldUpdate(0) {
		t.Error("step 0 should always fire")
	}
	if !level.ShouldUpdate(-5) {
		t.Error("negative steps should always fire")
	}
}

func TestShouldUpdate_FixedInterval(t *testing.T) {
	// f=0.25 -> interval 4 -> fires at 4, 8, 12 over steps 1..12.
	level := hierarchy.NewLevel[B](0, 0.25, 0)

	fired := 0
	for step := 1; step <= 12; step++ {
		if level.ShouldUpdate(step) {
			fired++
			if step%4 != 0 {
				t.Errorf("fired at step %d, expected multiples of 4 only", step)
			}
		}
	}
	if fired != 3 {
		t.Errorf("fire count over 12 steps: got %d, want 3", fired)
	}
}

func TestShouldUpdate_FrequencyOneFiresEveryStep(t *testing.T) {
	level := hierarchy.NewLevel[B](0, 1.0, 0)

	for step := 1; step <= 5; step++ {
		if !level.ShouldUpdate(step) {
			t.Errorf("frequency 1.0 must fire at step %d", step)
		}
	}
}

func TestNewLevel_ClampsConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		freq     float32
		lr       float32
		wantIdx  int
		wantFreq float32
		wantLR   float32
	}{
		{"negative index", -3, 0.5, 0.1, 0, 0.5, 0.1},
		{"zero frequency", 0, 0, 0.1, 0, 0.0001, 0.1},
		{"frequency above one", 1, 2.5, 0.1, 1, 1, 0.1},
		{"negative learning rate", 2, 0.5, -1, 2, 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := hierarchy.NewLevel[B](tt.index, tt.freq, tt.lr)
			if level.Index() != tt.wantIdx {
				t.Errorf("index: got %d, want %d", level.Index(), tt.wantIdx)
			}
			if level.Frequency() != tt.wantFreq {
				t.Errorf("frequency: got %f, want %f", level.Frequency(), tt.wantFreq)
			}
			if level.LearningRate() != tt.wantLR {
				t.Errorf("lr: got %f, want %f", level.LearningRate(), tt.wantLR)
			}
		})
	}
}

func TestUpdateParameters_TruncatesToShorter(t *testing.T) {
	backend := cpu.New()
	level := hierarchy.NewLevel[B](0, 1.0, 0.1)

	p1 := nn.NewParameter("p1", tensor.Full(tensor.Shape{1}, 1.0, backend))
	p2 := nn.NewParameter("p2", tensor.Full(tensor.Shape{1}, 1.0, backend))
	level.AddParameters(p1, p2)

	// Only one gradient: second parameter must be untouched.
	grad := tensor.Full(tensor.Shape{1}, 1.0, backend)
	level.UpdateParameters([]*tensor.Tensor[B]{grad})

	if got := p1.Tensor().Data()[0]; got != 0.9 {
		t.Errorf("p1 after SGD: got %f, want 0.9", got)
	}
	if got := p2.Tensor().Data()[0]; got != 1.0 {
		t.Errorf("p2 should be untouched, got %f", got)
	}
}

func TestUpdateParameters_SkipsNilGradients(t *testing.T) {
	backend := cpu.New()
	level := hierarchy.NewLevel[B](0, 1.0, 0.1)

	p := nn.NewParameter("p", tensor.Full(tensor.Shape{1}, 1.0, backend))
	level.AddParameters(p)

	level.UpdateParameters([]*tensor.Tensor[B]{nil})
	if got := p.Tensor().Data()[0]; got != 1.0 {
		t.Errorf("nil gradient must be a no-op, got %f", got)
	}
}

func TestAddChild_TopologyGuards(t *testing.T) {
	parent := hierarchy.NewLevel[B](1, 0.1, 0)
	other := hierarchy.NewLevel[B](2, 0.01, 0)
	child := hierarchy.NewLevel[B](0, 1.0, 0)

	parent.AddChild(child)
	if child.Parent() != parent {
		t.Fatal("child should be linked to parent")
	}

	// Re-parenting is ignored: topology is fixed once built.
	other.AddChild(child)
	if child.Parent() != parent {
		t.Error("child must keep its original parent")
	}
	if len(other.Children()) != 0 {
		t.Error("rejected child must not appear in the new parent's children")
	}

	// Self-links are ignored.
	parent.AddChild(parent)
	for _, c := range parent.Children() {
		if c == parent {
			t.Error("self-link must be rejected")
		}
	}
}

func TestPropagation(t *testing.T) {
	backend := cpu.New()

	parent := hierarchy.NewLevel[B](1, 0.1, 0)
	child := hierarchy.NewLevel[B](0, 1.0, 0)
	parent.AddChild(child)

	data := tensor.Ones(tensor.Shape{1, 2}, backend)

	child.PropagateToParent(data)
	if parent.Channel().Payload() != data {
		t.Error("context should reach the parent channel")
	}

	parent.PropagateToChildren(data)
	if child.Channel().Payload() != data {
		t.Error("context should reach the child channel")
	}

	// No-ops: nil data, missing relatives, missing channel.
	child.PropagateToParent(nil)
	parent.PropagateToParent(data) // root has no parent
	child.SetChannel(nil)
	parent.PropagateToChildren(data) // child without channel is skipped
}

func TestLastUpdateStepLifecycle(t *testing.T) {
	level := hierarchy.NewLevel[B](0, 1.0, 0)

	if level.LastUpdateStep() != -1 {
		t.Errorf("initial last update: got %d, want -1", level.LastUpdateStep())
	}
	level.MarkUpdated(42)
	if level.LastUpdateStep() != 42 {
		t.Errorf("after MarkUpdated: got %d, want 42", level.LastUpdateStep())
	}
	level.ResetSchedule()
	if level.LastUpdateStep() != -1 {
		t.Errorf("after ResetSchedule: got %d, want -1", level.LastUpdateStep())
	}
}
