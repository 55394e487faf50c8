// Copyright 2026 Nested ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package hierarchy provides the tree of nested optimization levels, the
// context channels connecting them, and the NestedBlock that orchestrates
// forward passes across the tree.
//
// # Basic Usage
//
//	backend := cpu.New()
//	layers := []nn.Module[*cpu.CPUBackend]{
//	    nn.NewLinear(4, 16, backend),
//	    nn.NewTanh[*cpu.CPUBackend](),
//	    nn.NewLinear(16, 1, backend),
//	}
//	block := hierarchy.NewNestedBlock(layers, hierarchy.BlockConfig{
//	    NumLevels:        3,
//	    Frequencies:      []float32{1.0, 0.1, 0.01},
//	    PropagateContext: true,
//	}, backend)
//
//	output := block.Forward(input) // runs layers, sweeps context, advances the step
package hierarchy

import (
	"github.com/nested-ml/nested/internal/hierarchy"
	"github.com/nested-ml/nested/internal/nn"
	"github.com/nested-ml/nested/internal/tensor"
)

// Direction indicates which way a context channel carries data.
type Direction = hierarchy.Direction

// Channel directions.
const (
	Upward        Direction = hierarchy.Upward
	Downward      Direction = hierarchy.Downward
	Bidirectional Direction = hierarchy.Bidirectional
)

// ContextChannel carries a single piece of context data between two
// optimization levels.
type ContextChannel[B tensor.Backend] = hierarchy.ContextChannel[B]

// NewContextChannel creates a channel with the given direction and
// compression rate (clamped to [0, 1]; 1 = no compression).
func NewContextChannel[B tensor.Backend](direction Direction, compressionRate float32) *ContextChannel[B] {
	return hierarchy.NewContextChannel[B](direction, compressionRate)
}

// Level is one node in a tree of nested optimizers.
type Level[B tensor.Backend] = hierarchy.Level[B]

// NewLevel creates a level with the given index, update frequency, and
// learning rate. Out-of-range values are clamped.
func NewLevel[B tensor.Backend](index int, frequency, learningRate float32) *Level[B] {
	return hierarchy.NewLevel[B](index, frequency, learningRate)
}

// NestedBlock orchestrates a forward pass through ordinary layers and
// drives context propagation across a tree of optimization levels.
type NestedBlock[B tensor.Backend] = hierarchy.NestedBlock[B]

// BlockConfig configures a NestedBlock.
type BlockConfig = hierarchy.BlockConfig

// NewNestedBlock creates a block over the given layers.
func NewNestedBlock[B tensor.Backend](layers []nn.Module[B], cfg BlockConfig, backend B) *NestedBlock[B] {
	return hierarchy.NewNestedBlock(layers, cfg, backend)
}
