package graph

// State is the gob-encodable, opaque-to-the-caller representation of a
// Graph's contents, produced by Export and consumed by Import. It is the
// "opaque blob the engine can write and read back" named in spec §3/§6;
// pkg/snapshot is responsible for actually persisting it.
type State struct {
	WInter       uint64
	WIntra       uint64
	HotThreshold uint64
	Vertices     []VertexState
	Edges        []EdgeState
}

type VertexState struct {
	Region VirtualRegionId
	Weight uint64
}

type EdgeState struct {
	A, B   VirtualRegionId
	Weight uint64
}

// Export snapshots the current vertex and edge weights. Neighbor sets and
// the heap are not part of the blob: neighbor sets are rebuilt from the
// edge list on Import, and the heap is reseeded with one fresh observation
// per vertex so TopHotRegions works immediately after a restore.
func (g *Graph) Export() *State {
	s := &State{
		WInter:       g.wInter,
		WIntra:       g.wIntra,
		HotThreshold: g.hotThreshold,
	}
	g.vertices.Range(func(id VirtualRegionId, v *Vertex) bool {
		s.Vertices = append(s.Vertices, VertexState{Region: id, Weight: v.Weight()})
		return true
	})
	g.edges.Range(func(k EdgeKey, e *Edge) bool {
		s.Edges = append(s.Edges, EdgeState{A: k.A, B: k.B, Weight: e.Weight()})
		return true
	})
	return s
}

// Import rebuilds a Graph from a previously exported State. shardCount need
// not match the Graph that produced the State.
func Import(shardCount int, s *State, opts ...Option) *Graph {
	g := New(shardCount, s.WInter, s.WIntra, s.HotThreshold, opts...)
	for _, vs := range s.Vertices {
		v := g.vertex(vs.Region)
		v.AddWeight(vs.Weight)
		g.heap.push(vs.Region, vs.Weight)
	}
	for _, es := range s.Edges {
		e := g.edge(es.A, es.B)
		e.AddWeight(es.Weight)
		g.vertex(es.A).addNeighbor(es.B)
		g.vertex(es.B).addNeighbor(es.A)
	}
	return g
}
