// Copyright 2026 Nested ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor primitives consumed by the nested
// optimization core.
//
// # Overview
//
// Tensors here are deliberately minimal: flat float32 buffers with a
// shape, a narrow element-wise operation set, matrix multiply, and the
// slicing the context channels need for compression. This package
// provides:
//   - Tensor[B]: typed handle bound to a compute backend
//   - RawTensor: low-level buffer whose pointer identity keys gradients
//   - Backend: interface for device-specific compute implementations
//   - Shape, Device: core type definitions
//
// # Basic Usage
//
//	import (
//	    "github.com/nested-ml/nested/tensor"
//	    "github.com/nested-ml/nested/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Zeros(tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones(tensor.Shape{2, 3}, backend)
//
//	    z := x.Add(y)
//	    w := x.MatMul(y.Transpose())
//	}
//
// # Identity semantics
//
// Gradient maps, optimizer moment state, and associative-memory entries
// are keyed by *RawTensor pointer identity, not by content. Cloning a
// tensor produces a value-equal tensor with a distinct identity.
package tensor
