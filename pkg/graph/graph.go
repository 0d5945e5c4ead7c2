package graph

import (
	"container/heap"
	"sort"

	"go.uber.org/zap"
)

// RegionWeight is a (region, weight) pair as returned by TopHotRegions.
type RegionWeight struct {
	Region VirtualRegionId
	Weight uint64
}

// Graph owns the ShardedMaps of vertices and edges, the locked max-heap of
// hot vertices, and clump-extraction logic (spec §3 Graph, §4.2).
type Graph struct {
	vertices *ShardedMap[VirtualRegionId, *Vertex]
	edges    *ShardedMap[EdgeKey, *Edge]
	heap     *hotHeap

	wInter       uint64
	wIntra       uint64
	hotThreshold uint64

	logger  *zap.Logger
	metrics metricsSink
}

// Option configures a Graph at construction time.
type Option func(*Graph)

func WithLogger(l *zap.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithMetricsSink(m metricsSink) Option {
	return func(g *Graph) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New constructs an empty Graph. shardCount should be a power of two (spec
// §4.1); wInter/wIntra/hotThreshold are the tunables from spec §4.2.
func New(shardCount int, wInter, wIntra, hotThreshold uint64, opts ...Option) *Graph {
	g := &Graph{
		vertices:     NewShardedMap[VirtualRegionId, *Vertex](shardCount, hashVirtualRegion),
		edges:        NewShardedMap[EdgeKey, *Edge](shardCount, hashEdgeKey),
		heap:         newHotHeap(),
		wInter:       wInter,
		wIntra:       wIntra,
		hotThreshold: hotThreshold,
		logger:       zap.NewNop(),
		metrics:      noopMetrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) vertex(id VirtualRegionId) *Vertex {
	return g.vertices.GetOrCreate(id, func() *Vertex { return newVertex(id) })
}

func (g *Graph) edge(a, b VirtualRegionId) *Edge {
	k := edgeKey(a, b)
	return g.edges.GetOrCreate(k, func() *Edge { return newEdge(k.A, k.B) })
}

// AddTransaction atomically (w.r.t. external observers of weights) adds
// weight to every touched vertex and to every unordered region-pair's edge.
// Pairs with equal endpoints (a region appearing twice) use w_intra*weight;
// distinct pairs use w_inter*weight. Every touched vertex pushes a fresh
// observation onto the heap. The call is infallible (spec §4.2, §7).
//
// Pair enumeration follows combinations of *positions*, not deduplicated
// values: [r, r] yields exactly the single self-pair (r, r), and a value
// repeated at non-adjacent positions still pairs with everything between,
// matching invariant 3 in spec §8 (C(T,u,v) counts index pairs, not distinct
// values).
func (g *Graph) AddTransaction(regions []VirtualRegionId, weight uint64) {
	if weight == 0 {
		weight = 1
	}
	for _, r := range regions {
		v := g.vertex(r)
		nw := v.AddWeight(weight)
		g.heap.push(r, nw)
		g.metrics.observeVertexWeight(nw)
	}

	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			delta := g.wInter * weight
			if a == b {
				delta = g.wIntra * weight
			}
			e := g.edge(a, b)
			e.AddWeight(delta)
			g.vertex(a).addNeighbor(b)
			g.vertex(b).addNeighbor(a)
		}
	}

	g.logger.Debug("applied transaction", zap.Int("regions", len(regions)), zap.Uint64("weight", weight))
}

// TopHotRegions returns every region with weight >= hot_threshold, sorted by
// weight descending. It drains the heap into a working list, discards
// stale entries (whose recorded weight no longer matches the vertex's live
// weight), and re-inserts every non-stale entry so the heap keeps at least
// one current observation per touched region (spec §4.2).
func (g *Graph) TopHotRegions() []RegionWeight {
	entries := g.heap.popAll()
	keep := make([]*hotHeapEntry, 0, len(entries))
	result := make([]RegionWeight, 0, len(entries))

	for _, e := range entries {
		v, ok := g.vertices.Get(e.region)
		if !ok {
			continue // vertex vanished; cannot happen in normal operation but is harmless to drop
		}
		cur := v.Weight()
		if cur != e.weight {
			continue // stale: a fresher observation for this region exists (or will be re-pushed)
		}
		keep = append(keep, e)
		if cur >= g.hotThreshold {
			result = append(result, RegionWeight{Region: e.region, Weight: cur})
		}
	}
	g.heap.refill(keep)

	sort.Slice(result, func(i, j int) bool { return result[i].Weight > result[j].Weight })
	g.metrics.setHotRegionCount(len(result))
	return result
}

// HotClumps runs a BFS from every heap entry in descending-weight,
// FIFO-tied order, skipping seeds already visited, and returns the maximal
// components reachable through edges whose weight exceeds edgeThresh. It
// consumes a private clone of the heap so the persistent heap is untouched
// (spec §4.2: "the engine's persistent heap must survive the call
// unchanged").
//
// Seeds are not filtered by hot_threshold: every region the heap has ever
// observed is a candidate seed, so a transaction-cluster can form its own
// low-weight clump even when none of its members individually clears
// hot_threshold (see spec §8 scenario S3, where {6,7,8} forms a clump with
// hot=3 despite each vertex weighing only 1).
func (g *Graph) HotClumps(edgeThresh uint64) []Clump {
	work := g.heap.clone()
	visited := make(map[VirtualRegionId]struct{})
	var clumps []Clump

	for work.len() > 0 {
		entry := heap.Pop(&work.h).(*hotHeapEntry)
		seed := entry.region
		if _, done := visited[seed]; done {
			continue
		}

		members := map[VirtualRegionId]struct{}{}
		var hot uint64
		queue := []VirtualRegionId{seed}
		visited[seed] = struct{}{}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			members[cur] = struct{}{}
			if v, ok := g.vertices.Get(cur); ok {
				hot += v.Weight()
			}

			v, ok := g.vertices.Get(cur)
			if !ok {
				continue
			}
			for _, n := range v.Neighbors() {
				if _, done := visited[n]; done {
					continue
				}
				e, ok := g.edges.Get(edgeKey(cur, n))
				if !ok || e.Weight() <= edgeThresh {
					continue
				}
				visited[n] = struct{}{}
				queue = append(queue, n)
			}
		}

		if len(members) > 0 {
			clumps = append(clumps, Clump{RegionIDs: members, Hot: hot})
		}
	}

	return clumps
}

// VertexWeight returns the current weight of a region, or (0, false) if the
// region has never been touched.
func (g *Graph) VertexWeight(r VirtualRegionId) (uint64, bool) {
	v, ok := g.vertices.Get(r)
	if !ok {
		return 0, false
	}
	return v.Weight(), true
}

// EdgeWeight returns the current weight of the edge between a and b, or
// (0, false) if it does not exist.
func (g *Graph) EdgeWeight(a, b VirtualRegionId) (uint64, bool) {
	e, ok := g.edges.Get(edgeKey(a, b))
	if !ok {
		return 0, false
	}
	return e.Weight(), true
}

// VertexCount returns the number of distinct regions touched so far.
func (g *Graph) VertexCount() int { return g.vertices.Len() }
