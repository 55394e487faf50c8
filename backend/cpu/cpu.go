// Copyright 2026 Nested ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go CPU compute backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros(tensor.Shape{2, 3}, backend)
package cpu

import (
	"github.com/nested-ml/nested/internal/backend/cpu"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend = cpu.CPUBackend

// New creates a new CPU backend.
func New() *CPUBackend {
	return cpu.New()
}
