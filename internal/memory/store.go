// Package memory implements the surprise-driven associative memory used
// alongside nested optimization.
//
// Keys and values are tensors. A candidate key's "surprise" is its novelty
// relative to the stored keys: 1 means nothing similar is stored, 0 means
// an identical key already exists. Admission, retention, and eviction are
// all driven by this score.
package memory

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nested-ml/nested/internal/tensor"
)

// Entry is one stored memory.
//
// Identity is the key tensor's RawTensor pointer; the ID is a stable
// handle for snapshots and external bookkeeping.
type Entry[B tensor.Backend] struct {
	ID          string
	Key         *tensor.Tensor[B]
	Value       *tensor.Tensor[B]
	Surprise    float32
	StoredAt    time.Time
	AccessCount int

	heapIndex int // maintained by the surprise heap; -1 when not queued
}

// AssociativeStore is a bounded key-value store over tensors.
//
// Entries are keyed by the key tensor's identity (its RawTensor pointer),
// not by content: storing a clone of an existing key creates a separate
// entry. Lookups are by content similarity instead, via cosine distance.
//
// The store guarantees |entries| <= capacity. When full, a new entry is
// admitted only if its surprise strictly exceeds the current minimum,
// which is then evicted; ties favor incumbents.
type AssociativeStore[B tensor.Backend] struct {
	capacity          int
	surpriseThreshold float32
	entries           map[*tensor.RawTensor]*Entry[B]
}

// NewAssociativeStore creates a store with the given capacity and
// surprise threshold. A capacity below 1 is clamped to 1; the threshold
// is clamped to [0, 1].
func NewAssociativeStore[B tensor.Backend](capacity int, surpriseThreshold float32) *AssociativeStore[B] {
	if capacity < 1 {
		capacity = 1
	}
	return &AssociativeStore[B]{
		capacity:          capacity,
		surpriseThreshold: clamp01(surpriseThreshold),
		entries:           make(map[*tensor.RawTensor]*Entry[B]),
	}
}

// Len returns the number of stored entries.
func (s *AssociativeStore[B]) Len() int {
	return len(s.entries)
}

// Capacity returns the maximum number of entries.
func (s *AssociativeStore[B]) Capacity() int {
	return s.capacity
}

// SurpriseThreshold returns the admission threshold.
func (s *AssociativeStore[B]) SurpriseThreshold() float32 {
	return s.surpriseThreshold
}

// ComputeSurprise scores a candidate key's novelty in [0, 1].
//
// The score is one minus the maximum cosine similarity against the stored
// keys (negative similarities clamp to zero, so the score never exceeds
// 1). An empty store returns 1: everything is novel. More dissimilar to
// stored content means strictly higher surprise.
func (s *AssociativeStore[B]) ComputeSurprise(candidate *tensor.Tensor[B]) float32 {
	if candidate == nil {
		return 0
	}
	if len(s.entries) == 0 {
		return 1
	}
	best := float32(0)
	for _, e := range s.entries {
		sim := cosineSimilarity(candidate.Data(), e.Key.Data())
		if sim > best {
			best = sim
		}
	}
	return clamp01(1 - best)
}

// Store computes the key's surprise and inserts the pair when the score
// meets the admission threshold. Returns true if the entry was stored.
func (s *AssociativeStore[B]) Store(key, value *tensor.Tensor[B]) bool {
	if key == nil || value == nil {
		return false
	}
	surprise := s.ComputeSurprise(key)
	if surprise < s.surpriseThreshold {
		return false
	}
	return s.StoreWithSurprise(key, value, surprise)
}

// StoreWithSurprise inserts a pair with a precomputed surprise score.
//
// A key whose tensor identity is already stored updates its entry in
// place rather than consuming capacity. Otherwise, when the store is
// full the candidate must strictly beat the lowest stored surprise; the
// minimum entry is evicted to make room. Returns true if the entry was
// stored.
func (s *AssociativeStore[B]) StoreWithSurprise(key, value *tensor.Tensor[B], surprise float32) bool {
	if key == nil || value == nil {
		return false
	}
	if existing, ok := s.entries[key.Raw()]; ok {
		existing.Value = value
		existing.Surprise = surprise
		existing.StoredAt = time.Now()
		return true
	}
	if len(s.entries) >= s.capacity {
		min := s.minEntry()
		if min == nil || surprise <= min.Surprise {
			return false
		}
		s.remove(min)
	}
	s.add(newEntry(key, value, surprise))
	return true
}

// Retrieve returns the value whose key is most similar to the query, or
// nil for an empty store or nil query. The matched entry's access count
// is incremented; retrieval does not otherwise change priorities.
func (s *AssociativeStore[B]) Retrieve(query *tensor.Tensor[B]) *tensor.Tensor[B] {
	e := s.nearest(query)
	if e == nil {
		return nil
	}
	e.AccessCount++
	return e.Value
}

// Prune drops every entry whose surprise is below the threshold.
// Returns the number of entries removed.
func (s *AssociativeStore[B]) Prune(threshold float32) int {
	removed := 0
	for _, e := range s.entries {
		if e.Surprise < threshold {
			s.remove(e)
			removed++
		}
	}
	return removed
}

// Entries returns the stored entries in unspecified order.
func (s *AssociativeStore[B]) Entries() []*Entry[B] {
	out := make([]*Entry[B], 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// nearest finds the entry with the highest cosine similarity to the query.
func (s *AssociativeStore[B]) nearest(query *tensor.Tensor[B]) *Entry[B] {
	if query == nil || len(s.entries) == 0 {
		return nil
	}
	var best *Entry[B]
	bestSim := float32(math.Inf(-1))
	for _, e := range s.entries {
		sim := cosineSimilarity(query.Data(), e.Key.Data())
		if sim > bestSim {
			bestSim = sim
			best = e
		}
	}
	return best
}

// minEntry returns the entry with the lowest surprise, or nil when empty.
func (s *AssociativeStore[B]) minEntry() *Entry[B] {
	var min *Entry[B]
	for _, e := range s.entries {
		if min == nil || e.Surprise < min.Surprise {
			min = e
		}
	}
	return min
}

func (s *AssociativeStore[B]) add(e *Entry[B]) {
	s.entries[e.Key.Raw()] = e
}

func (s *AssociativeStore[B]) remove(e *Entry[B]) {
	delete(s.entries, e.Key.Raw())
}

func newEntry[B tensor.Backend](key, value *tensor.Tensor[B], surprise float32) *Entry[B] {
	return &Entry[B]{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     value,
		Surprise:  surprise,
		StoredAt:  time.Now(),
		heapIndex: -1,
	}
}

// cosineSimilarity computes the cosine of the angle between two vectors
// of equal length. Mismatched lengths compare over the shorter prefix;
// a zero vector yields 0.
func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
