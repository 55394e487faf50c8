package hierarchy

import (
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

// BlockConfig configures a NestedBlock.
type BlockConfig struct {
	// NumLevels is the number of optimization levels (default 1, min 1).
	NumLevels int

	// Frequencies holds the per-level update frequencies. Missing entries
	// default to 1/10^index (level 0 every step, level 1 every 10 steps,
	// level 2 every 100, ...).
	Frequencies []float32

	// LearningRates holds per-level learning rates. Missing entries
	// default to 0, meaning the optimizer's global rate applies.
	LearningRates []float32

	// CompressionRates holds per-level context compression rates.
	// Missing entries default to 1 (no compression).
	CompressionRates []float32

	// PropagateContext enables the context sweeps after each forward.
	PropagateContext bool
}

// NestedBlock orchestrates a forward pass through ordinary layers and
// drives context propagation across a tree of optimization levels.
//
// Each forward call runs the layers in order, optionally sweeps the
// resulting output through the level tree (children to parents, then
// parents to children), and advances the global step, recording which
// levels would fire at it.
//
// The block never calls the optimizer; an external training loop queries
// CurrentStep and ShouldUpdateLevel and invokes the optimizer itself.
// Execution is single-threaded and non-reentrant per block instance.
type NestedBlock[B tensor.Backend] struct {
	layers           []nn.Module[B]
	levels           []*Level[B]
	propagateContext bool
	globalStep       int
	lastShouldUpdate []bool
	backend          B
}

// NewNestedBlock creates a block over the given layers.
//
// Levels are built as a chain: level i+1 is the parent of level i, so
// context flows from high-frequency levels up to low-frequency ones.
// Layer parameters are assigned to levels by a contiguous partition:
// layersPerLevel = max(1, numLayers/numLevels), with any remainder
// folding into the last level.
func NewNestedBlock[B tensor.Backend](layers []nn.Module[B], cfg BlockConfig, backend B) *NestedBlock[B] {
	numLevels := cfg.NumLevels
	if numLevels < 1 {
		numLevels = 1
	}

	levels := make([]*Level[B], numLevels)
	for i := 0; i < numLevels; i++ {
		freq := defaultFrequency(i)
		if i < len(cfg.Frequencies) {
			freq = cfg.Frequencies[i]
		}
		var lr float32
		if i < len(cfg.LearningRates) {
			lr = cfg.LearningRates[i]
		}
		levels[i] = NewLevel[B](i, freq, lr)
		if i < len(cfg.CompressionRates) {
			levels[i].SetChannel(NewContextChannel[B](Bidirectional, cfg.CompressionRates[i]))
		}
	}
	for i := 0; i+1 < numLevels; i++ {
		levels[i+1].AddChild(levels[i])
	}

	// Contiguous partition of layers onto levels.
	layersPerLevel := len(layers) / numLevels
	if layersPerLevel < 1 {
		layersPerLevel = 1
	}
	for i, layer := range layers {
		levelIdx := i / layersPerLevel
		if levelIdx >= numLevels {
			levelIdx = numLevels - 1
		}
		levels[levelIdx].AddParameters(layer.Parameters()...)
	}

	b := &NestedBlock[B]{
		layers:           layers,
		levels:           levels,
		propagateContext: cfg.PropagateContext,
		lastShouldUpdate: make([]bool, numLevels),
		backend:          backend,
	}
	// Step 0 bootstrap: every level reports ready before the first forward.
	for i, level := range levels {
		b.lastShouldUpdate[i] = level.ShouldUpdate(0)
	}
	return b
}

// defaultFrequency returns 1/10^index, the conventional decade spacing
// between adjacent levels.
func defaultFrequency(index int) float32 {
	f := float32(1.0)
	for i := 0; i < index; i++ {
		f /= 10
	}
	if f < minFrequency {
		f = minFrequency
	}
	return f
}

// Forward runs the layers in order, propagates the output through the
// level tree when enabled, and advances the global step.
func (b *NestedBlock[B]) Forward(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	output := input
	for _, layer := range b.layers {
		output = layer.Forward(output)
	}

	if b.propagateContext {
		b.propagate(output)
	}

	b.globalStep++
	for i, level := range b.levels {
		b.lastShouldUpdate[i] = level.ShouldUpdate(b.globalStep)
	}
	return output
}

// propagate runs the two context sweeps: ascending children-to-parents,
// then ascending parents-to-children. Both sweeps run on every forward
// call; each costs O(depth) channel writes.
func (b *NestedBlock[B]) propagate(output *tensor.Tensor[B]) {
	for _, level := range b.levels {
		level.PropagateToParent(output)
	}
	for _, level := range b.levels {
		level.PropagateToChildren(output)
	}
}

// CurrentStep returns the number of forward calls completed.
func (b *NestedBlock[B]) CurrentStep() int {
	return b.globalStep
}

// ShouldUpdateLevel reports whether the given level fired at the step
// recorded by the most recent forward call. Out-of-range indices return
// false.
func (b *NestedBlock[B]) ShouldUpdateLevel(index int) bool {
	if index < 0 || index >= len(b.lastShouldUpdate) {
		return false
	}
	return b.lastShouldUpdate[index]
}

// Levels returns the block's optimization levels, highest frequency first.
func (b *NestedBlock[B]) Levels() []*Level[B] {
	return b.levels
}

// Layers returns the block's layers in forward order.
func (b *NestedBlock[B]) Layers() []nn.Module[B] {
	return b.layers
}

// Parameters returns all trainable parameters across all layers.
func (b *NestedBlock[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, layer := range b.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}
