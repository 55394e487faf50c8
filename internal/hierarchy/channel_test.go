package hierarchy_test

import (
	"testing"

	"github.com/nested-ml/nested/internal/backend/cpu"
	"github.com/nested-ml/nested/internal/hierarchy"
	"github.com/nested-ml/nested/internal/tensor"
)

type B = *cpu.CPUBackend

func TestFlowNilInputLeavesPayload(t *testing.T) {
	backend := cpu.New()
	ch := hierarchy.NewContextChannel[B](hierarchy.Upward, 1.0)

	if got := ch.Flow(nil); got != nil {
		t.Errorf("Flow(nil) on empty channel: got %v, want nil", got)
	}

	payload := tensor.Ones(tensor.Shape{2, 4}, backend)
	ch.Flow(payload)

	if got := ch.Flow(nil); got != payload {
		t.Error("Flow(nil) should return the existing payload unchanged")
	}
}

func TestFlowCompressionTruncatesColumns(t *testing.T) {
	backend := cpu.New()
	ch := hierarchy.NewContextChannel[B](hierarchy.Upward, 0.5)

	input, _ := tensor.FromSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, tensor.Shape{2, 4}, backend)

	out := ch.Flow(input)
	if !out.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("compressed shape: got %v, want [2 2]", out.Shape())
	}
	want := []float32{1, 2, 5, 6}
	for i, v := range out.Data() {
		if v != want[i] {
			t.Errorf("compressed[%d]: got %f, want %f", i, v, want[i])
		}
	}
	// Input tensor itself is untouched.
	if !input.Shape().Equal(tensor.Shape{2, 4}) {
		t.Error("Flow mutated the input tensor's shape")
	}
}

func TestFlowCompressionKeepsAtLeastOneColumn(t *testing.T) {
	backend := cpu.New()
	ch := hierarchy.NewContextChannel[B](hierarchy.Downward, 0.01)

	input := tensor.Ones(tensor.Shape{3, 4}, backend)
	out := ch.Flow(input)

	if out.Shape()[1] != 1 {
		t.Errorf("width: got %d, want 1", out.Shape()[1])
	}
}

func TestFlowNoCompressionAtRateOne(t *testing.T) {
	backend := cpu.New()
	ch := hierarchy.NewContextChannel[B](hierarchy.Bidirectional, 1.0)

	input := tensor.Ones(tensor.Shape{2, 4}, backend)
	if out := ch.Flow(input); out != input {
		t.Error("rate 1.0 should pass the tensor through untouched")
	}
}

func TestFlowNonMatrixPayloadPassesThrough(t *testing.T) {
	backend := cpu.New()
	ch := hierarchy.NewContextChannel[B](hierarchy.Upward, 0.5)

	input := tensor.Ones(tensor.Shape{4}, backend)
	if out := ch.Flow(input); out != input {
		t.Error("1-D payloads are not compressed")
	}
}

func TestMergeSymmetry(t *testing.T) {
	backend := cpu.New()

	a := hierarchy.NewContextChannel[B](hierarchy.Upward, 1.0)
	b := hierarchy.NewContextChannel[B](hierarchy.Downward, 1.0)

	pa, _ := tensor.FromSlice([]float32{1, 3}, tensor.Shape{1, 2}, backend)
	pb, _ := tensor.FromSlice([]float32{5, 7}, tensor.Shape{1, 2}, backend)
	a.Flow(pa)
	b.Flow(pb)

	ab := a.Merge(b)
	ba := b.Merge(a)

	// Payload averaging is commutative.
	for i := range ab.Payload().Data() {
		if ab.Payload().Data()[i] != ba.Payload().Data()[i] {
			t.Errorf("merge payload[%d]: %f vs %f", i,
				ab.Payload().Data()[i], ba.Payload().Data()[i])
		}
	}
	want := []float32{3, 5}
	for i, v := range ab.Payload().Data() {
		if v != want[i] {
			t.Errorf("merge payload[%d]: got %f, want %f", i, v, want[i])
		}
	}

	// Inputs are unmodified.
	if a.Payload().Data()[0] != 1 || b.Payload().Data()[0] != 5 {
		t.Error("Merge mutated an input channel")
	}
}

func TestMergeCarriesReceiverMetadata(t *testing.T) {
	backend := cpu.New()

	a := hierarchy.NewContextChannel[B](hierarchy.Upward, 0.5)
	b := hierarchy.NewContextChannel[B](hierarchy.Downward, 1.0)

	// Same payload width on both sides: a's flow already truncated its
	// [1, 2] input to [1, 1], so b gets a [1, 1] payload directly.
	pa, _ := tensor.FromSlice([]float32{1, 3}, tensor.Shape{1, 2}, backend)
	pb, _ := tensor.FromSlice([]float32{5}, tensor.Shape{1, 1}, backend)
	a.Flow(pa)
	b.Flow(pb)

	ab := a.Merge(b)
	ba := b.Merge(a)

	if ab.Direction() != hierarchy.Upward || ab.CompressionRate() != 0.5 {
		t.Error("a.Merge(b) should carry a's direction and compression")
	}
	if ba.Direction() != hierarchy.Downward || ba.CompressionRate() != 1.0 {
		t.Error("b.Merge(a) should carry b's direction and compression")
	}
	if got := ab.Payload().Data()[0]; got != 3 {
		t.Errorf("merged payload: got %f, want 3", got)
	}
}

func TestMergeSingleSidedAndNil(t *testing.T) {
	backend := cpu.New()

	a := hierarchy.NewContextChannel[B](hierarchy.Upward, 1.0)
	b := hierarchy.NewContextChannel[B](hierarchy.Downward, 1.0)
	pb := tensor.Ones(tensor.Shape{1, 2}, backend)
	b.Flow(pb)

	if a.Merge(nil) != a {
		t.Error("Merge(nil) should return the receiver")
	}

	// Only other has a payload: it carries through.
	merged := a.Merge(b)
	if merged.Payload() != pb {
		t.Error("merge with empty receiver should carry the other payload")
	}

	// Only receiver has a payload.
	merged = b.Merge(a)
	if merged.Payload() != pb {
		t.Error("merge with empty other should carry the receiver payload")
	}
}
