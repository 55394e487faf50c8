package hierarchy

import (
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

// minFrequency is the lowest admissible update frequency (fires once per
// 10,000 steps). Out-of-range frequencies are clamped here rather than
// rejected, matching the permissive-clamp policy used throughout.
const minFrequency = 0.0001

// Level is one node in a tree of nested optimizers.
//
// A level owns an update frequency, a learning rate, references to the
// parameters it updates, and a context channel. Parameters are shared
// with the model's layers: the level updates them, the layers read them.
//
// Levels form a tree: a level with no parent is a root. By convention
// lower indices fire more frequently; their parents sit at larger
// intervals and observe (possibly compressed) context from below.
type Level[B tensor.Backend] struct {
	index          int
	frequency      float32
	learningRate   float32
	params         []*nn.Parameter[B]
	channel        *ContextChannel[B]
	parent         *Level[B]
	children       []*Level[B]
	lastUpdateStep int
}

// NewLevel creates a level with the given hierarchy index, update
// frequency, and learning rate.
//
// Out-of-range values are clamped, not rejected: a negative index becomes
// 0, a frequency outside (0, 1] is pulled into range, and a negative
// learning rate becomes 0. The level starts with a bidirectional,
// uncompressed context channel and lastUpdateStep = -1.
func NewLevel[B tensor.Backend](index int, frequency, learningRate float32) *Level[B] {
	if index < 0 {
		index = 0
	}
	if frequency <= 0 {
		frequency = minFrequency
	}
	if frequency > 1 {
		frequency = 1
	}
	if learningRate < 0 {
		learningRate = 0
	}
	return &Level[B]{
		index:          index,
		frequency:      frequency,
		learningRate:   learningRate,
		channel:        NewContextChannel[B](Bidirectional, 1.0),
		lastUpdateStep: -1,
	}
}

// Index returns the level's position in the hierarchy.
func (l *Level[B]) Index() int {
	return l.index
}

// Frequency returns the update frequency in (0, 1].
func (l *Level[B]) Frequency() float32 {
	return l.frequency
}

// LearningRate returns the level's own learning rate. Zero means the
// optimizer's global rate applies.
func (l *Level[B]) LearningRate() float32 {
	return l.learningRate
}

// SetLearningRate updates the level's learning rate (clamped at 0).
func (l *Level[B]) SetLearningRate(lr float32) {
	if lr < 0 {
		lr = 0
	}
	l.learningRate = lr
}

// Parameters returns the parameters this level updates.
func (l *Level[B]) Parameters() []*nn.Parameter[B] {
	return l.params
}

// AddParameters appends parameters to the level's update set.
func (l *Level[B]) AddParameters(params ...*nn.Parameter[B]) {
	l.params = append(l.params, params...)
}

// Channel returns the level's context channel.
func (l *Level[B]) Channel() *ContextChannel[B] {
	return l.channel
}

// SetChannel replaces the level's context channel. A nil channel removes
// it, making propagation through this level a no-op.
func (l *Level[B]) SetChannel(c *ContextChannel[B]) {
	l.channel = c
}

// Parent returns the parent level, or nil for a root.
func (l *Level[B]) Parent() *Level[B] {
	return l.parent
}

// Children returns the child levels.
func (l *Level[B]) Children() []*Level[B] {
	return l.children
}

// AddChild links a child level under this one.
//
// The topology is fixed once built: a child that already has a parent, a
// nil child, or a self-link is ignored.
func (l *Level[B]) AddChild(child *Level[B]) {
	if child == nil || child == l || child.parent != nil {
		return
	}
	child.parent = l
	l.children = append(l.children, child)
}

// LastUpdateStep returns the global step at which this level last fired,
// or -1 if it has never fired.
func (l *Level[B]) LastUpdateStep() int {
	return l.lastUpdateStep
}

// MarkUpdated records the global step at which the level fired.
func (l *Level[B]) MarkUpdated(step int) {
	l.lastUpdateStep = step
}

// ResetSchedule returns the level's firing history to the initial state.
func (l *Level[B]) ResetSchedule() {
	l.lastUpdateStep = -1
}

// ShouldUpdate reports whether the level fires at the given global step.
//
// Steps at or below zero always fire (bootstrap). Otherwise the level
// fires every floor(1/frequency) steps. This is a fixed-interval policy:
// it does not compensate for frequencies whose interval does not evenly
// divide the step range, so drift accumulates for frequencies like 0.3.
// Known limitation, kept for predictability.
func (l *Level[B]) ShouldUpdate(currentStep int) bool {
	if currentStep <= 0 {
		return true
	}
	interval := int(1.0 / l.frequency)
	if interval < 1 {
		interval = 1
	}
	return currentStep%interval == 0
}

// UpdateParameters applies a plain SGD step to the level's parameters.
//
// This is the level's own fallback rule; moment-based updates are applied
// by the optimizer instead. Parameters and gradients are paired up to the
// shorter of the two lists; extra entries on either side are ignored, and
// nil gradients are skipped.
func (l *Level[B]) UpdateParameters(grads []*tensor.Tensor[B]) {
	n := len(l.params)
	if len(grads) < n {
		n = len(grads)
	}
	for i := 0; i < n; i++ {
		if grads[i] == nil {
			continue
		}
		paramData := l.params[i].Tensor().Data()
		gradData := grads[i].Data()
		for j := range paramData {
			paramData[j] -= l.learningRate * gradData[j]
		}
	}
}

// PropagateToParent pushes context data into the parent's channel.
// No-op when the level has no parent, the parent has no channel, or the
// data is nil.
func (l *Level[B]) PropagateToParent(data *tensor.Tensor[B]) {
	if l.parent == nil || l.parent.channel == nil || data == nil {
		return
	}
	l.parent.channel.Flow(data)
}

// PropagateToChildren pushes context data into every child's channel.
// Children without channels are skipped; nil data is a no-op.
func (l *Level[B]) PropagateToChildren(data *tensor.Tensor[B]) {
	if data == nil {
		return
	}
	for _, child := range l.children {
		if child.channel == nil {
			continue
		}
		child.channel.Flow(data)
	}
}
