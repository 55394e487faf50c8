package memory

import (
	"container/heap"
	"sort"
	"time"

	"github.com/nested-ml/nested/internal/tensor"
)

// SurpriseCache is a capacity-bounded memory with priority-queue eviction,
// time-based decay, and frequency-based reinforcement.
//
// It wraps an AssociativeStore with a heap keyed by surprise. The heap is
// a min-heap: the eviction candidate (the lowest-surprise entry) sits at
// the root, giving O(log n) insert and evict. Immediately after insertion
// every entry's surprise is at or above the admission threshold, but decay
// can push it below, after which the entry is pruned.
//
// Not safe for concurrent use; callers serialize access per instance.
type SurpriseCache[B tensor.Backend] struct {
	store       *AssociativeStore[B]
	pq          surpriseHeap[B]
	decayRate   float32
	maxCapacity int
}

// NewSurpriseCache creates a cache holding at most maxCapacity entries.
// maxCapacity is clamped to at least 1; surpriseThreshold and decayRate
// are clamped to [0, 1].
func NewSurpriseCache[B tensor.Backend](maxCapacity int, surpriseThreshold, decayRate float32) *SurpriseCache[B] {
	if maxCapacity < 1 {
		maxCapacity = 1
	}
	return &SurpriseCache[B]{
		store:       NewAssociativeStore[B](maxCapacity, surpriseThreshold),
		pq:          surpriseHeap[B]{},
		decayRate:   clamp01(decayRate),
		maxCapacity: maxCapacity,
	}
}

// Len returns the number of cached entries.
func (c *SurpriseCache[B]) Len() int {
	return len(c.pq)
}

// MaxCapacity returns the entry limit.
func (c *SurpriseCache[B]) MaxCapacity() int {
	return c.maxCapacity
}

// DecayRate returns the per-ApplyDecay surprise attenuation.
func (c *SurpriseCache[B]) DecayRate() float32 {
	return c.decayRate
}

// SurpriseThreshold returns the admission threshold.
func (c *SurpriseCache[B]) SurpriseThreshold() float32 {
	return c.store.SurpriseThreshold()
}

// ComputeSurprise scores a candidate key against the cached keys.
func (c *SurpriseCache[B]) ComputeSurprise(candidate *tensor.Tensor[B]) float32 {
	return c.store.ComputeSurprise(candidate)
}

// Store computes the key's surprise and admits the pair when the score
// meets the threshold. Returns true if the entry was cached.
func (c *SurpriseCache[B]) Store(key, value *tensor.Tensor[B]) bool {
	if key == nil || value == nil {
		return false
	}
	surprise := c.store.ComputeSurprise(key)
	if surprise < c.store.SurpriseThreshold() {
		return false
	}
	return c.StoreWithSurprise(key, value, surprise)
}

// StoreWithSurprise admits a pair with a precomputed surprise score.
//
// A key whose tensor identity is already cached updates its entry in
// place (value, surprise, timestamp) and restores heap order; no second
// entry is created. Otherwise, when full, the candidate must strictly
// beat the minimum cached surprise (ties keep incumbents); the minimum
// entry is evicted first. Returns true if the entry was cached.
func (c *SurpriseCache[B]) StoreWithSurprise(key, value *tensor.Tensor[B], surprise float32) bool {
	if key == nil || value == nil {
		return false
	}
	if existing, ok := c.store.entries[key.Raw()]; ok {
		existing.Value = value
		existing.Surprise = surprise
		existing.StoredAt = time.Now()
		heap.Fix(&c.pq, existing.heapIndex)
		return true
	}
	if len(c.pq) >= c.maxCapacity {
		min := c.pq[0]
		if surprise <= min.Surprise {
			return false
		}
		heap.Pop(&c.pq)
		c.store.remove(min)
	}
	e := newEntry(key, value, surprise)
	c.store.add(e)
	heap.Push(&c.pq, e)
	return true
}

// Retrieve returns the value whose key best matches the query and bumps
// that entry's access count. Priorities are untouched; callers wanting
// recency reinforcement follow up with BoostFrequentMemories.
func (c *SurpriseCache[B]) Retrieve(query *tensor.Tensor[B]) *tensor.Tensor[B] {
	return c.store.Retrieve(query)
}

// ApplyDecay attenuates every entry's surprise by (1 - decayRate) and
// prunes entries that fall below the admission threshold. The priority
// queue is rebuilt afterwards (O(n log n)); callers invoke this
// periodically, not on every store.
func (c *SurpriseCache[B]) ApplyDecay() int {
	factor := 1 - c.decayRate
	for _, e := range c.pq {
		e.Surprise *= factor
	}
	return c.dropBelow(c.store.SurpriseThreshold())
}

// BoostFrequentMemories scales each entry's surprise by
// (1 + accessCount * boostFactor), counteracting decay for entries that
// are retrieved often. The priority queue is rebuilt afterwards.
func (c *SurpriseCache[B]) BoostFrequentMemories(boostFactor float32) {
	for _, e := range c.pq {
		e.Surprise *= 1 + float32(e.AccessCount)*boostFactor
	}
	heap.Init(&c.pq)
}

// Prune drops every entry with surprise below the given threshold.
// Returns the number of entries removed.
func (c *SurpriseCache[B]) Prune(threshold float32) int {
	return c.dropBelow(threshold)
}

// dropBelow removes entries under threshold and restores heap order.
func (c *SurpriseCache[B]) dropBelow(threshold float32) int {
	kept := c.pq[:0]
	removed := 0
	for _, e := range c.pq {
		if e.Surprise < threshold {
			c.store.remove(e)
			e.heapIndex = -1
			removed++
			continue
		}
		kept = append(kept, e)
	}
	c.pq = kept
	heap.Init(&c.pq)
	return removed
}

// EntrySnapshot is the persistable view of one cached memory.
type EntrySnapshot struct {
	ID          string
	Surprise    float32
	StoredAt    time.Time
	AccessCount int
}

// Snapshot exports the cache's bookkeeping state, highest surprise first.
// Key and value tensors are not copied; serializing them is the caller's
// concern.
func (c *SurpriseCache[B]) Snapshot() []EntrySnapshot {
	out := make([]EntrySnapshot, 0, len(c.pq))
	for _, e := range c.pq {
		out = append(out, EntrySnapshot{
			ID:          e.ID,
			Surprise:    e.Surprise,
			StoredAt:    e.StoredAt,
			AccessCount: e.AccessCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Surprise > out[j].Surprise })
	return out
}

// surpriseHeap is a min-heap of entries ordered by surprise.
type surpriseHeap[B tensor.Backend] []*Entry[B]

func (h surpriseHeap[B]) Len() int { return len(h) }

func (h surpriseHeap[B]) Less(i, j int) bool { return h[i].Surprise < h[j].Surprise }

func (h surpriseHeap[B]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *surpriseHeap[B]) Push(x any) {
	e := x.(*Entry[B])
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *surpriseHeap[B]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}
