// Copyright 2026 Nested ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides multi-timescale optimization: the DeepOptimizer
// scheduler, gradient-norm clipping, and per-parameter update rules (SGD
// and NestedAdam with optional AMSGrad and weight decay).
package optim

import (
	"github.com/nested-ml/nested/internal/hierarchy"
	"github.com/nested-ml/nested/internal/optim"
	"github.com/nested-ml/nested/internal/tensor"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// UpdateRule applies one parameter update; implementations own the
// per-parameter state the rule needs.
type UpdateRule[B tensor.Backend] = optim.UpdateRule[B]

// DeepOptimizer schedules per-level updates over a tree of optimization
// levels.
type DeepOptimizer[B tensor.Backend] = optim.DeepOptimizer[B]

// DeepConfig contains configuration for DeepOptimizer.
type DeepConfig[B tensor.Backend] = optim.DeepConfig[B]

// NewDeepOptimizer creates a new DeepOptimizer over the given levels.
//
// Example:
//
//	opt := optim.NewDeepOptimizer(block.Levels(), optim.DeepConfig[*cpu.CPUBackend]{
//	    LR: 0.001,
//	}, backend)
func NewDeepOptimizer[B tensor.Backend](levels []*hierarchy.Level[B], config DeepConfig[B], backend B) *DeepOptimizer[B] {
	return optim.NewDeepOptimizer(levels, config, backend)
}

// NestedAdam is the Adam-style update rule with per-parameter cadence.
type NestedAdam[B tensor.Backend] = optim.NestedAdam[B]

// AdamConfig contains configuration for the NestedAdam rule.
type AdamConfig = optim.AdamConfig

// NewNestedAdam creates a new NestedAdam update rule.
//
// Example:
//
//	rule := optim.NewNestedAdam[*cpu.CPUBackend](optim.AdamConfig{
//	    Betas:   [2]float32{0.9, 0.999},
//	    AMSGrad: true,
//	}, backend)
func NewNestedAdam[B tensor.Backend](config AdamConfig, backend B) *NestedAdam[B] {
	return optim.NewNestedAdam[B](config, backend)
}

// SGDRule is the stateless plain-SGD update rule.
type SGDRule[B tensor.Backend] = optim.SGDRule[B]

// NewSGDRule creates a new SGD update rule.
func NewSGDRule[B tensor.Backend]() *SGDRule[B] {
	return optim.NewSGDRule[B]()
}
