// Copyright 2026 Nested ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package memory provides the surprise-driven associative memory:
// a bounded tensor key-value store whose admission, retention, and
// eviction are driven by each key's novelty score.
package memory

import (
	"github.com/nested-ml/nested/internal/memory"
	"github.com/nested-ml/nested/internal/tensor"
)

// Entry is one stored memory.
type Entry[B tensor.Backend] = memory.Entry[B]

// EntrySnapshot is the persistable view of one cached memory.
type EntrySnapshot = memory.EntrySnapshot

// AssociativeStore is a bounded key-value store over tensors, keyed by
// tensor identity and searched by cosine similarity.
type AssociativeStore[B tensor.Backend] = memory.AssociativeStore[B]

// NewAssociativeStore creates a store with the given capacity and
// surprise threshold (clamped into valid ranges).
func NewAssociativeStore[B tensor.Backend](capacity int, surpriseThreshold float32) *AssociativeStore[B] {
	return memory.NewAssociativeStore[B](capacity, surpriseThreshold)
}

// SurpriseCache is a capacity-bounded memory with priority-queue
// eviction, time-based decay, and frequency-based reinforcement.
type SurpriseCache[B tensor.Backend] = memory.SurpriseCache[B]

// NewSurpriseCache creates a cache holding at most maxCapacity entries.
//
// Example:
//
//	cache := memory.NewSurpriseCache[*cpu.CPUBackend](64, 0.1, 0.05)
//	cache.Store(key, value)            // admitted if surprising enough
//	v := cache.Retrieve(query)         // nearest match, bumps access count
//	cache.ApplyDecay()                 // periodic forgetting
func NewSurpriseCache[B tensor.Backend](maxCapacity int, surpriseThreshold, decayRate float32) *SurpriseCache[B] {
	return memory.NewSurpriseCache[B](maxCapacity, surpriseThreshold, decayRate)
}
