package planner

import (
	"testing"

	"github.com/Voskan/hotregion/pkg/graph"
	"github.com/Voskan/hotregion/pkg/route"
)

type fakeRoute struct {
	leader    map[route.RegionId]route.StoreId
	followers map[route.RegionId][]route.StoreId
	virtToReal map[route.VirtualRegionId]route.RegionId
	stores    []route.StoreId
}

func (f *fakeRoute) LeaderOf(r route.RegionId) (route.StoreId, error) {
	s, ok := f.leader[r]
	if !ok {
		return 0, route.ErrUnknownRegion
	}
	return s, nil
}

func (f *fakeRoute) FollowersOf(r route.RegionId) ([]route.StoreId, error) {
	fo, ok := f.followers[r]
	if !ok {
		return nil, route.ErrUnknownRegion
	}
	return fo, nil
}

func (f *fakeRoute) ToReal(v route.VirtualRegionId) (route.RegionId, error) {
	r, ok := f.virtToReal[v]
	if !ok {
		return 0, route.ErrUnknownRegion
	}
	return r, nil
}

func (f *fakeRoute) AllStores() []route.StoreId { return f.stores }

func clumpOf(virts ...graph.VirtualRegionId) graph.Clump {
	m := make(map[graph.VirtualRegionId]struct{}, len(virts))
	for _, v := range virts {
		m[v] = struct{}{}
	}
	return graph.Clump{RegionIDs: m}
}

// S5 — planner phase-1: clump {r} whose current leader is store A; route
// has stores {A,B,C}; phase 1 keeps the target at A (cost -10). Plan still
// returns one SubPlan, but its phase 2 may move a lone clump onto an empty
// store, so the target is checked on the phase-1 assignment itself.
func TestPlanPhase1StaysWithLeader(t *testing.T) {
	rt := &fakeRoute{
		leader:     map[route.RegionId]route.StoreId{1: 10},
		followers:  map[route.RegionId][]route.StoreId{1: {20, 30}},
		virtToReal: map[route.VirtualRegionId]route.RegionId{0: 1},
		stores:     []route.StoreId{10, 20, 30},
	}
	c := clumpOf(0)
	c.Hot = 5

	p := New(Config{WLeader: 10, Theta: 1e-4, BatchSize: 5})
	subplans, err := p.Plan([]graph.Clump{c}, rt)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(subplans) != 1 {
		t.Fatalf("got %d subplans, want 1", len(subplans))
	}
	phase1, err := p.assignPhase1(c, rt, rt.stores)
	if err != nil {
		t.Fatalf("assignPhase1: %v", err)
	}
	if phase1.TargetStore != 10 {
		t.Fatalf("target = %d, want 10 (stays with leader)", phase1.TargetStore)
	}
}

// Invariant 5: phase 2 never moves the same clump twice, and terminates.
func TestPlanPhase2TerminatesAndMovesOnce(t *testing.T) {
	rt := &fakeRoute{
		leader: map[route.RegionId]route.StoreId{
			1: 10, 2: 10, 3: 10, 4: 20,
		},
		followers: map[route.RegionId][]route.StoreId{
			1: {20}, 2: {20}, 3: {20}, 4: {10},
		},
		virtToReal: map[route.VirtualRegionId]route.RegionId{
			0: 1, 1: 2, 2: 3, 3: 4,
		},
		stores: []route.StoreId{10, 20},
	}

	clumps := []graph.Clump{
		func() graph.Clump { c := clumpOf(0); c.Hot = 100; return c }(),
		func() graph.Clump { c := clumpOf(1); c.Hot = 100; return c }(),
		func() graph.Clump { c := clumpOf(2); c.Hot = 100; return c }(),
		func() graph.Clump { c := clumpOf(3); c.Hot = 1; return c }(),
	}

	p := New(Config{WLeader: 10, Theta: 1e-4, BatchSize: 5})
	subplans, err := p.Plan(clumps, rt)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(subplans) != 4 {
		t.Fatalf("got %d subplans, want 4", len(subplans))
	}

	moved := 0
	for _, sp := range subplans {
		if sp.movedInPhase2 {
			moved++
		}
	}
	if moved > 4 {
		t.Fatalf("more clumps moved than exist: %d", moved)
	}
}

// Phase 2 must pick T = argmin(load) once per overloaded store per pass,
// then move an entire batch onto that same T — not recompute T after every
// single clump, which would scatter one store's evacuees across several
// targets instead of consolidating them.
func TestPlanPhase2BatchConsolidatesOntoOneTarget(t *testing.T) {
	leader := make(map[route.RegionId]route.StoreId, 10)
	followers := make(map[route.RegionId][]route.StoreId, 10)
	virtToReal := make(map[route.VirtualRegionId]route.RegionId, 10)
	clumps := make([]graph.Clump, 10)
	for i := 0; i < 10; i++ {
		region := route.RegionId(i + 1)
		leader[region] = 10
		followers[region] = nil
		virtToReal[route.VirtualRegionId(i)] = region
		c := clumpOf(route.VirtualRegionId(i))
		c.Hot = 100
		clumps[i] = c
	}
	rt := &fakeRoute{
		leader:     leader,
		followers:  followers,
		virtToReal: virtToReal,
		stores:     []route.StoreId{10, 20, 30, 40},
	}

	p := New(Config{WLeader: 10, Theta: 1e-4, BatchSize: 3})
	subplans, err := p.Plan(clumps, rt)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var firstBatch []route.StoreId
	for _, sp := range subplans {
		if sp.movedInPhase2 {
			firstBatch = append(firstBatch, sp.TargetStore)
		}
		if len(firstBatch) == 3 {
			break
		}
	}
	if len(firstBatch) != 3 {
		t.Fatalf("expected the first batch of 3 clumps to move, got %d", len(firstBatch))
	}
	for _, s := range firstBatch[1:] {
		if s != firstBatch[0] {
			t.Fatalf("batch scattered across targets %v, want all == %d", firstBatch, firstBatch[0])
		}
	}
}

func TestRoundRobinAssignsCyclically(t *testing.T) {
	rt := &fakeRoute{
		leader: map[route.RegionId]route.StoreId{1: 10, 2: 10, 3: 10},
		virtToReal: map[route.VirtualRegionId]route.RegionId{
			0: 1, 1: 2, 2: 3,
		},
		stores: []route.StoreId{100, 200},
	}
	subplans, err := RoundRobin([]route.VirtualRegionId{0, 1, 2}, rt)
	if err != nil {
		t.Fatalf("RoundRobin: %v", err)
	}
	want := []route.StoreId{100, 200, 100}
	for i, sp := range subplans {
		if sp.TargetStore != want[i] {
			t.Fatalf("subplan %d target = %d, want %d", i, sp.TargetStore, want[i])
		}
	}
}
