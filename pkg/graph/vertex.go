package graph

import (
	"sync"
	"sync/atomic"
)

// Vertex is the per-region weight counter and neighbor set. Weight is a
// single atomic counter on the hot path (add_transaction increments it once
// per touch); the neighbor set is mutated under a small mutex because it is
// a composite structure, not a scalar.
type Vertex struct {
	RegionID VirtualRegionId

	weight atomic.Uint64

	mu        sync.Mutex
	neighbors map[VirtualRegionId]struct{}
}

func newVertex(id VirtualRegionId) *Vertex {
	return &Vertex{
		RegionID:  id,
		neighbors: make(map[VirtualRegionId]struct{}),
	}
}

// AddWeight adds delta to the vertex weight and returns the new total.
func (v *Vertex) AddWeight(delta uint64) uint64 {
	return v.weight.Add(delta)
}

// Weight returns the current weight.
func (v *Vertex) Weight() uint64 {
	return v.weight.Load()
}

// addNeighbor records that an edge to n now exists. Returns true if n was
// not already a recorded neighbor.
func (v *Vertex) addNeighbor(n VirtualRegionId) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.neighbors[n]; ok {
		return false
	}
	v.neighbors[n] = struct{}{}
	return true
}

// Neighbors returns a snapshot copy of the neighbor set so the caller can
// iterate without holding the vertex lock.
func (v *Vertex) Neighbors() []VirtualRegionId {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]VirtualRegionId, 0, len(v.neighbors))
	for n := range v.neighbors {
		out = append(out, n)
	}
	return out
}
