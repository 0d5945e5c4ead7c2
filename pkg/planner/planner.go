// Package planner consumes hot clumps and the current Route and produces
// SubPlans: a target store per clump, first by minimum-cost assignment
// biased toward existing leaders, then by variance-reduction load
// balancing across stores (spec §4.5, C6).
//
// © 2025 hotregion authors. MIT License.
package planner

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/Voskan/hotregion/pkg/graph"
	"github.com/Voskan/hotregion/pkg/route"
)

// SubPlan is one clump's assignment decision: move its leader replicas to
// target_store.
type SubPlan struct {
	Clump        graph.Clump
	OriginStores []route.StoreId
	TargetStore  route.StoreId

	movedInPhase2 bool
}

// RouteView is the subset of *route.Route the planner needs, kept as an
// interface for testability.
type RouteView interface {
	LeaderOf(region route.RegionId) (route.StoreId, error)
	FollowersOf(region route.RegionId) ([]route.StoreId, error)
	ToReal(virt route.VirtualRegionId) (route.RegionId, error)
	AllStores() []route.StoreId
}

// Config carries the planner's tunables (spec §4.5 defaults).
type Config struct {
	WLeader   uint64
	Theta     float64
	BatchSize int
}

// Planner computes SubPlans for a set of clumps against a Route.
type Planner struct {
	cfg     Config
	logger  *zap.Logger
	metrics metricsSink
}

// Option configures a Planner.
type Option func(*Planner)

func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetricsSink(m metricsSink) Option {
	return func(p *Planner) {
		if m != nil {
			p.metrics = m
		}
	}
}

func New(cfg Config, opts ...Option) *Planner {
	p := &Planner{cfg: cfg, logger: zap.NewNop(), metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan runs phase 1 (minimum-cost assignment) then phase 2 (variance
// reduction) and returns the final SubPlans, in a deterministic order over
// the input clumps.
func (p *Planner) Plan(clumps []graph.Clump, rt RouteView) ([]*SubPlan, error) {
	stores := rt.AllStores()
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	if len(stores) == 0 {
		return nil, nil
	}

	subplans := make([]*SubPlan, len(clumps))
	for i, c := range clumps {
		sp, err := p.assignPhase1(c, rt, stores)
		if err != nil {
			return nil, err
		}
		subplans[i] = sp
	}

	p.reduceVariance(subplans, stores)
	return subplans, nil
}

// assignPhase1 computes, for clump c and every candidate store S, cost
// c(clump,S) = -(P*w_leader + F) where P is the number of regions in the
// clump currently led by S and F the number for which S is a follower, and
// picks the argmin (ties broken by the stable store ordering already
// applied to `stores`).
func (p *Planner) assignPhase1(c graph.Clump, rt RouteView, stores []route.StoreId) (*SubPlan, error) {
	origin := make([]route.StoreId, 0, len(c.RegionIDs))
	pCount := make(map[route.StoreId]int, len(stores))
	fCount := make(map[route.StoreId]int, len(stores))

	for virt := range c.RegionIDs {
		real, err := rt.ToReal(route.VirtualRegionId(virt))
		if err != nil {
			return nil, err
		}
		leader, err := rt.LeaderOf(real)
		if err != nil {
			return nil, err
		}
		origin = append(origin, leader)
		pCount[leader]++

		followers, err := rt.FollowersOf(real)
		if err != nil {
			return nil, err
		}
		for _, f := range followers {
			fCount[f]++
		}
	}

	bestStore := stores[0]
	bestCost := math.Inf(1)
	for _, s := range stores {
		cost := -(float64(pCount[s])*float64(p.cfg.WLeader) + float64(fCount[s]))
		if cost < bestCost {
			bestCost = cost
			bestStore = s
		}
	}

	sort.Slice(origin, func(i, j int) bool { return origin[i] < origin[j] })
	return &SubPlan{Clump: c, OriginStores: origin, TargetStore: bestStore}, nil
}

// reduceVariance implements phase 2: iteratively moves clumps from
// overloaded stores to the least-loaded store until the population
// variance of normalized loads drops to or below theta, each clump moved
// at most once. The overloaded set persists across passes (stores drop out
// in place once their load reaches the mean) and is only rebuilt once it
// has gone completely empty, matching generate_subplan's
// overloaded_nodes/min_load_store bookkeeping in the original planner.
// It also stops after a full pass that moves no clump, or when the rebuilt
// overloaded set is empty.
func (p *Planner) reduceVariance(subplans []*SubPlan, stores []route.StoreId) {
	load := make(map[route.StoreId]uint64, len(stores))
	for _, s := range stores {
		load[s] = 0
	}
	for _, sp := range subplans {
		load[sp.TargetStore] += sp.Clump.Hot
	}

	p.metrics.setVariance(variance(load))
	if variance(load) <= p.cfg.Theta {
		return
	}
	meanLoad := mean(load)
	overloaded := overloadedStores(load)

	for {
		v := variance(load)
		p.metrics.setVariance(v)
		if v <= p.cfg.Theta || len(overloaded) == 0 {
			return
		}

		pass := append([]route.StoreId(nil), overloaded...)
		progress := false
		for _, s := range pass {
			target := argMin(load)
			moved := 0
			for _, sp := range subplans {
				if moved >= p.cfg.BatchSize {
					break
				}
				if sp.TargetStore != s || sp.movedInPhase2 {
					continue
				}
				load[s] -= sp.Clump.Hot
				load[target] += sp.Clump.Hot
				sp.TargetStore = target
				sp.movedInPhase2 = true
				moved++
				progress = true

				if float64(load[s]) <= meanLoad || float64(load[target]) >= meanLoad {
					break
				}
			}
			if float64(load[s]) <= meanLoad {
				overloaded = removeStore(overloaded, s)
			}
		}

		// A pass that moves no clump leaves every load unchanged, so every
		// later pass would repeat it exactly: stop (progress stall).
		if !progress {
			return
		}

		if len(overloaded) == 0 {
			overloaded = overloadedStores(load)
		}
	}
}

// removeStore returns stores with s removed, preserving relative order.
func removeStore(stores []route.StoreId, s route.StoreId) []route.StoreId {
	out := stores[:0:0]
	for _, x := range stores {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

func mean(load map[route.StoreId]uint64) float64 {
	if len(load) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range load {
		sum += v
	}
	return float64(sum) / float64(len(load))
}

func variance(load map[route.StoreId]uint64) float64 {
	var total uint64
	for _, v := range load {
		total += v
	}
	if total == 0 {
		return 0
	}
	n := make([]float64, 0, len(load))
	for _, v := range load {
		n = append(n, float64(v)/float64(total))
	}
	m := 0.0
	for _, x := range n {
		m += x
	}
	m /= float64(len(n))
	var sq float64
	for _, x := range n {
		sq += (x - m) * (x - m)
	}
	return sq / float64(len(n))
}

// overloadedStores returns stores whose load exceeds the mean, in
// descending-load order (stable iteration required by spec §4.5).
func overloadedStores(load map[route.StoreId]uint64) []route.StoreId {
	m := mean(load)
	stores := make([]route.StoreId, 0, len(load))
	for s, v := range load {
		if float64(v) > m {
			stores = append(stores, s)
		}
	}
	sort.Slice(stores, func(i, j int) bool {
		if load[stores[i]] != load[stores[j]] {
			return load[stores[i]] > load[stores[j]]
		}
		return stores[i] < stores[j]
	})
	return stores
}

func argMin(load map[route.StoreId]uint64) route.StoreId {
	var best route.StoreId
	bestVal := uint64(math.MaxUint64)
	stores := make([]route.StoreId, 0, len(load))
	for s := range load {
		stores = append(stores, s)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	for _, s := range stores {
		if load[s] < bestVal {
			bestVal = load[s]
			best = s
		}
	}
	return best
}

// RoundRobin bypasses cost-based assignment, assigning each virtual region
// to store_ids[i mod |stores|] and feeding the resulting synthetic
// SubPlans directly to plan generation (spec §4.6 "round_robin mode").
// Each region becomes its own single-region clump.
func RoundRobin(virtualRegions []route.VirtualRegionId, rt RouteView) ([]*SubPlan, error) {
	stores := rt.AllStores()
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	if len(stores) == 0 {
		return nil, nil
	}

	subplans := make([]*SubPlan, 0, len(virtualRegions))
	for i, virt := range virtualRegions {
		real, err := rt.ToReal(virt)
		if err != nil {
			return nil, err
		}
		leader, err := rt.LeaderOf(real)
		if err != nil {
			return nil, err
		}
		clump := graph.Clump{RegionIDs: map[graph.VirtualRegionId]struct{}{graph.VirtualRegionId(virt): {}}, Hot: 0}
		subplans = append(subplans, &SubPlan{
			Clump:        clump,
			OriginStores: []route.StoreId{leader},
			TargetStore:  stores[i%len(stores)],
		})
	}
	return subplans, nil
}
