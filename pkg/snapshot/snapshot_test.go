package snapshot

import (
	"testing"

	"github.com/Voskan/hotregion/pkg/graph"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	g := graph.New(8, 10, 1, 0)
	g.AddTransaction([]graph.VirtualRegionId{1, 2, 3}, 2)
	gs := g.Export()

	rs := &RouteState{
		StoreIDs:   []uint64{10, 20},
		VirtToReal: map[uint64]uint64{0: 100, 1: 200},
		Leader:     map[uint64]uint64{100: 10, 200: 20},
		Followers:  map[uint64][]uint64{100: {20}, 200: {10}},
	}

	if err := s.Save(gs, rs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loadedGraph, loadedRoute, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loadedGraph.Vertices) != 3 {
		t.Fatalf("loaded graph vertices = %d, want 3", len(loadedGraph.Vertices))
	}
	if loadedRoute.Leader[100] != 10 {
		t.Fatalf("loaded route leader[100] = %d, want 10", loadedRoute.Leader[100])
	}
}

func TestLoadEmptyStoreReturnsNil(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	g, r, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g != nil || r != nil {
		t.Fatalf("expected nil graph/route on empty store, got %+v %+v", g, r)
	}
}

func TestSaveRotatesThroughWindow(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i := 0; i < 5; i++ {
		g := graph.New(8, 10, 1, 0)
		g.AddTransaction([]graph.VirtualRegionId{graph.VirtualRegionId(i)}, uint64(i+1))
		if err := s.Save(g.Export(), nil); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	loaded, _, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Vertices) != 1 || loaded.Vertices[0].Region != 4 {
		t.Fatalf("loaded = %+v, want single vertex region 4 (last save)", loaded.Vertices)
	}
}
