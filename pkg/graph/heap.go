package graph

import (
	"container/heap"
	"sync"
)

// hotHeapEntry is a single (weight, region) observation pushed whenever a
// vertex's weight changes. Entries may go stale: once popped, the caller
// must compare entry.weight against the vertex's live weight and discard
// the entry if they no longer match (spec: "stale entries may exist and
// must be ignored").
type hotHeapEntry struct {
	weight uint64
	seq    uint64 // insertion order, for FIFO tie-break among equal weights
	region VirtualRegionId
}

// entryHeap implements container/heap.Interface as a max-heap on weight,
// ties broken by ascending seq (earlier insertion pops first), grounded on
// the pack's own container/heap usage (katalvlaran/lvlath's Dijkstra uses
// the same Interface shape for a min-heap of path distances).
type entryHeap []*hotHeapEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*hotHeapEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// hotHeap is the Graph's locked max-heap of hot vertices. Push is O(log n)
// and brief, so a single mutex (rather than sharding) is acceptable per
// spec §5: "Graph heap: single lock (it is seldom hot...)".
type hotHeap struct {
	mu     sync.Mutex
	h      entryHeap
	seqCtr uint64
}

func newHotHeap() *hotHeap {
	hh := &hotHeap{}
	heap.Init(&hh.h)
	return hh
}

// push records a new (weight, region) observation.
func (hh *hotHeap) push(region VirtualRegionId, weight uint64) {
	hh.mu.Lock()
	hh.seqCtr++
	heap.Push(&hh.h, &hotHeapEntry{weight: weight, seq: hh.seqCtr, region: region})
	hh.mu.Unlock()
}

// popAll drains the heap into entries sorted by the heap's pop order
// (descending weight, FIFO ties) and leaves the heap empty. Used internally
// by operations that need to reconstruct the heap afterward (top_hot_regions)
// or that are explicitly allowed to consume a working copy destructively
// (hot_clumps, via clone()).
func (hh *hotHeap) popAll() []*hotHeapEntry {
	hh.mu.Lock()
	defer hh.mu.Unlock()
	out := make([]*hotHeapEntry, 0, len(hh.h))
	for hh.h.Len() > 0 {
		out = append(out, heap.Pop(&hh.h).(*hotHeapEntry))
	}
	return out
}

// refill pushes a batch of entries back without re-deriving sequence
// numbers, preserving their original relative FIFO order.
func (hh *hotHeap) refill(entries []*hotHeapEntry) {
	hh.mu.Lock()
	defer hh.mu.Unlock()
	for _, e := range entries {
		heap.Push(&hh.h, e)
	}
}

// clone returns an independent hotHeap seeded with a copy of the current
// entries, so a destructive consumer (hot_clumps's BFS) never mutates the
// persistent heap.
func (hh *hotHeap) clone() *hotHeap {
	hh.mu.Lock()
	defer hh.mu.Unlock()
	cp := &hotHeap{seqCtr: hh.seqCtr}
	cp.h = make(entryHeap, len(hh.h))
	for i, e := range hh.h {
		dup := *e
		cp.h[i] = &dup
	}
	heap.Init(&cp.h)
	return cp
}

func (hh *hotHeap) len() int {
	hh.mu.Lock()
	defer hh.mu.Unlock()
	return hh.h.Len()
}
