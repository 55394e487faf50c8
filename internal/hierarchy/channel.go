// Package hierarchy implements the tree of nested optimization levels and
// the context channels that connect them.
//
// A model's parameters are partitioned across levels, each firing at its
// own frequency. Intermediate outputs move between levels through
// ContextChannels, optionally compressed, during each forward pass.
package hierarchy

import (
	"math"

	"github.com/nested-ml/nested/internal/tensor"
)

// Direction indicates which way a context channel carries data.
type Direction int

// Channel directions.
const (
	Upward Direction = iota
	Downward
	Bidirectional
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case Upward:
		return "upward"
	case Downward:
		return "downward"
	case Bidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

// ContextChannel carries a single piece of context data between two
// optimization levels.
//
// A channel holds at most one payload tensor; every Flow call replaces it.
// Compression truncates the payload's columns, genuinely reducing the
// dimensionality that lower-frequency levels observe.
type ContextChannel[B tensor.Backend] struct {
	payload         *tensor.Tensor[B]
	direction       Direction
	compressionRate float32
}

// NewContextChannel creates a channel with the given direction and
// compression rate. The rate is clamped to [0, 1]; 1 means no compression.
func NewContextChannel[B tensor.Backend](direction Direction, compressionRate float32) *ContextChannel[B] {
	return &ContextChannel[B]{
		direction:       direction,
		compressionRate: clamp(compressionRate, 0, 1),
	}
}

// Payload returns the current payload, or nil if nothing has flowed yet.
func (c *ContextChannel[B]) Payload() *tensor.Tensor[B] {
	return c.payload
}

// Direction returns the channel direction.
func (c *ContextChannel[B]) Direction() Direction {
	return c.direction
}

// CompressionRate returns the compression rate (1 = no compression).
func (c *ContextChannel[B]) CompressionRate() float32 {
	return c.compressionRate
}

// Flow pushes input through the channel and returns the new payload.
//
// A nil input leaves the payload unchanged and returns it. Otherwise the
// input is compressed when the rate is below 1, stored as the new payload,
// and returned.
func (c *ContextChannel[B]) Flow(input *tensor.Tensor[B]) *tensor.Tensor[B] {
	if input == nil {
		return c.payload
	}
	if c.compressionRate < 1.0 {
		input = c.compress(input)
	}
	c.payload = input
	return c.payload
}

// compress truncates a 2-D payload to its first round(width*rate) columns
// (at least one). Payloads that are not 2-D pass through unchanged.
func (c *ContextChannel[B]) compress(t *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := t.Shape()
	if len(shape) != 2 {
		return t
	}
	width := shape[1]
	newWidth := int(math.Round(float64(width) * float64(c.compressionRate)))
	if newWidth < 1 {
		newWidth = 1
	}
	if newWidth >= width {
		return t
	}
	return t.Narrow(1, 0, newWidth)
}

// Merge combines this channel with another into a new channel.
//
// When both payloads are present the result carries their element-wise
// average; when only one side has a payload it is carried through as-is.
// The returned channel uses the receiver's direction and compression rate.
// Neither input channel is modified. A nil other returns the receiver.
func (c *ContextChannel[B]) Merge(other *ContextChannel[B]) *ContextChannel[B] {
	if other == nil {
		return c
	}

	merged := &ContextChannel[B]{
		direction:       c.direction,
		compressionRate: c.compressionRate,
	}
	switch {
	case c.payload != nil && other.payload != nil:
		merged.payload = c.payload.Add(other.payload).MulScalar(0.5)
	case c.payload != nil:
		merged.payload = c.payload
	case other.payload != nil:
		merged.payload = other.payload
	}
	return merged
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
