package graph

import "sync"

// Edge is the per-pair weight counter keyed by the unordered pair {A, B}.
// If A == B the edge represents self-association (a region appearing twice
// in the same transaction). Unlike Vertex.weight, the increment here is
// serialized by an ordinary mutex: edges are touched far less often than
// vertices (one edge per pair per transaction vs. one vertex per region),
// so the extra lock is not on the hottest part of the hot path.
type Edge struct {
	A, B VirtualRegionId

	mu     sync.Mutex
	weight uint64
}

func newEdge(a, b VirtualRegionId) *Edge {
	return &Edge{A: a, B: b}
}

// AddWeight adds delta to the edge weight and returns the new total.
func (e *Edge) AddWeight(delta uint64) uint64 {
	e.mu.Lock()
	e.weight += delta
	w := e.weight
	e.mu.Unlock()
	return w
}

// Weight returns the current weight.
func (e *Edge) Weight() uint64 {
	e.mu.Lock()
	w := e.weight
	e.mu.Unlock()
	return w
}
