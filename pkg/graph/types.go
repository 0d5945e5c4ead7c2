// Package graph implements the online co-access graph: a sharded map of
// Vertex/Edge records updated from a transaction stream, a locked max-heap
// of hot vertices, and clump (tightly co-accessed region group) extraction.
//
// The shard-per-bucket layout and the split between atomic hot-path counters
// and per-record locks for cold-path mutation are carried over from this
// module's cache-library ancestor (see DESIGN.md): vertex weight increments
// are a single atomic add, while neighbor-set mutation and edge weight
// increments take a per-record mutex.
//
// © 2025 hotregion authors. MIT License.
package graph

// RegionId is the opaque identifier of a shard of the underlying store.
type RegionId uint64

// StoreId is the opaque identifier of a physical node hosting replicas.
type StoreId uint64

// VirtualRegionId is a dense, 0-based index assigned to a RegionId for the
// lifetime of a single Route snapshot. The graph is keyed on this type so
// its domain stays dense even when RegionIds are sparse.
type VirtualRegionId uint64

// EdgeKey identifies an Edge by its unordered endpoint pair.
type EdgeKey struct {
	A, B VirtualRegionId
}

// edgeKey builds the canonical (sorted) key for an unordered pair so {u,v}
// and {v,u} hash identically; a == b is valid and represents a self-loop.
func edgeKey(a, b VirtualRegionId) EdgeKey {
	if a <= b {
		return EdgeKey{A: a, B: b}
	}
	return EdgeKey{A: b, B: a}
}

// Clump is a set of tightly co-accessed regions extracted from the graph,
// treated as a unit for placement. It is immutable data: the planner owns
// target-store assignment via SubPlan, never by mutating a Clump.
type Clump struct {
	RegionIDs map[VirtualRegionId]struct{}
	Hot       uint64 // sum of member vertex weights at extraction time
}
