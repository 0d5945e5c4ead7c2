// Package route maintains the read-mostly view of PD's region→(leader
// store, follower stores) mapping and its virtual-id remapping (spec §4.4,
// C5). Refresh is exclusive with respect to readers: it swaps in a whole
// new generation atomically, grounded on the teacher's functional-option
// config pattern and its singleflight-based de-duplication of concurrent
// loads (pkg/loader.go's loaderGroup), here de-duplicating concurrent
// RefreshFromPD calls against the same PD client.
//
// © 2025 hotregion authors. MIT License.
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"go.uber.org/zap"

	"github.com/Voskan/hotregion/pkg/pd"
)

// ErrUnknownRegion is returned by any query against a virtual-id or
// real-id absent from the current generation.
var ErrUnknownRegion = errors.New("route: unknown region")

type VirtualRegionId = uint64
type RegionId = uint64
type StoreId = uint64

// generation is one immutable snapshot of the Route table, replaced whole
// on every refresh (spec §4.4: "Routes are fully replaced on refresh").
type generation struct {
	storeIDs    map[StoreId]struct{}
	virtToReal  map[VirtualRegionId]RegionId
	leader      map[RegionId]StoreId
	followers   map[RegionId][]StoreId
	allPeers    map[RegionId][]pd.Peer
}

// Route is a read-mostly, generation-swapped view of PD's placement.
type Route struct {
	mu  sync.RWMutex
	gen *generation

	client pd.RegionFetcher
	table  tableRegionsFetcher
	sf     singleflight.Group
	logger *zap.Logger
}

// tableRegionsFetcher is the subset of *pd.Client used for refresh, kept as
// an interface so tests can fake it without an HTTP server.
type tableRegionsFetcher interface {
	TableRegions(ctx context.Context, db, table string) ([]pd.RegionInfo, error)
}

// Option configures a Route at construction time.
type Option func(*Route)

func WithLogger(l *zap.Logger) Option {
	return func(r *Route) {
		if l != nil {
			r.logger = l
		}
	}
}

// New constructs an empty Route bound to the given PD table-regions client.
func New(client tableRegionsFetcher, opts ...Option) *Route {
	r := &Route{
		gen:    &generation{},
		table:  client,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefreshFromPD issues a single table-regions GET and replaces internal
// state wholesale. Virtual ids are assigned by enumeration order of the
// response (spec §4.4). Concurrent RefreshFromPD calls for the same
// (db,table) are de-duplicated via singleflight, mirroring the teacher's
// loaderGroup: only one GET fires, every caller observes its result.
//
// Callers must not refresh the Route while a Graph built against the
// previous generation is still in use (see SPEC_FULL §6, Open Question
// resolution): this package does not attempt to remap or invalidate an
// outstanding Graph — that discipline is the caller's responsibility.
func (r *Route) RefreshFromPD(ctx context.Context, db, table string) error {
	key := db + "/" + table
	_, err, _ := r.sf.Do(key, func() (any, error) {
		regions, err := r.table.TableRegions(ctx, db, table)
		if err != nil {
			return nil, err
		}

		g := &generation{
			storeIDs:   make(map[StoreId]struct{}),
			virtToReal: make(map[VirtualRegionId]RegionId, len(regions)),
			leader:     make(map[RegionId]StoreId, len(regions)),
			followers:  make(map[RegionId][]StoreId, len(regions)),
			allPeers:   make(map[RegionId][]pd.Peer, len(regions)),
		}
		for i, ri := range regions {
			g.virtToReal[VirtualRegionId(i)] = ri.RegionID
			g.leader[ri.RegionID] = ri.Leader.StoreID
			g.storeIDs[ri.Leader.StoreID] = struct{}{}
			g.allPeers[ri.RegionID] = ri.Peers

			followers := make([]StoreId, 0, len(ri.Peers))
			for _, p := range ri.Peers {
				if p.ID == ri.Leader.ID {
					continue
				}
				followers = append(followers, p.StoreID)
				g.storeIDs[p.StoreID] = struct{}{}
			}
			g.followers[ri.RegionID] = followers
		}

		r.mu.Lock()
		r.gen = g
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// LeaderOf returns the leader store of a real region id.
func (r *Route) LeaderOf(region RegionId) (StoreId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.gen.leader[region]
	if !ok {
		return 0, fmt.Errorf("%w: region %d", ErrUnknownRegion, region)
	}
	return s, nil
}

// FollowersOf returns the follower stores of a real region id, excluding
// the leader.
func (r *Route) FollowersOf(region RegionId) ([]StoreId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.gen.followers[region]
	if !ok {
		return nil, fmt.Errorf("%w: region %d", ErrUnknownRegion, region)
	}
	out := make([]StoreId, len(f))
	copy(out, f)
	return out, nil
}

// AllStores returns every store id participating as a leader or follower
// in the current generation.
func (r *Route) AllStores() []StoreId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StoreId, 0, len(r.gen.storeIDs))
	for s := range r.gen.storeIDs {
		out = append(out, s)
	}
	return out
}

// ToReal maps a virtual region id (valid only within the current
// generation) to its real region id.
func (r *Route) ToReal(virt VirtualRegionId) (RegionId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	real, ok := r.gen.virtToReal[virt]
	if !ok {
		return 0, fmt.Errorf("%w: virtual region %d", ErrUnknownRegion, virt)
	}
	return real, nil
}

// Peers returns the raw peer list (including the leader and any learner
// role markers) for a real region id.
func (r *Route) Peers(region RegionId) ([]pd.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.gen.allPeers[region]
	if !ok {
		return nil, fmt.Errorf("%w: region %d", ErrUnknownRegion, region)
	}
	out := make([]pd.Peer, len(p))
	copy(out, p)
	return out, nil
}

// VirtualRegionCount returns the number of regions (and so of virtual ids)
// in the current generation.
func (r *Route) VirtualRegionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.gen.virtToReal)
}

// ExportState copies out the current generation's fields in plain map/slice
// form, letting a caller (pkg/snapshot) persist them without this package
// depending on the snapshot blob format.
func (r *Route) ExportState() (storeIDs []StoreId, virtToReal map[VirtualRegionId]RegionId, leader map[RegionId]StoreId, followers map[RegionId][]StoreId) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	storeIDs = make([]StoreId, 0, len(r.gen.storeIDs))
	for s := range r.gen.storeIDs {
		storeIDs = append(storeIDs, s)
	}
	virtToReal = make(map[VirtualRegionId]RegionId, len(r.gen.virtToReal))
	for k, v := range r.gen.virtToReal {
		virtToReal[k] = v
	}
	leader = make(map[RegionId]StoreId, len(r.gen.leader))
	for k, v := range r.gen.leader {
		leader[k] = v
	}
	followers = make(map[RegionId][]StoreId, len(r.gen.followers))
	for k, v := range r.gen.followers {
		cp := make([]StoreId, len(v))
		copy(cp, v)
		followers[k] = cp
	}
	return
}

// ImportState replaces the current generation wholesale from previously
// exported state (used to restore a Route from a snapshot without
// contacting PD). allPeers is left empty: peer role/learner details are not
// part of the persisted blob and are re-learned on the next RefreshFromPD.
func (r *Route) ImportState(storeIDs []StoreId, virtToReal map[VirtualRegionId]RegionId, leader map[RegionId]StoreId, followers map[RegionId][]StoreId) {
	g := &generation{
		storeIDs:   make(map[StoreId]struct{}, len(storeIDs)),
		virtToReal: virtToReal,
		leader:     leader,
		followers:  followers,
		allPeers:   make(map[RegionId][]pd.Peer),
	}
	for _, s := range storeIDs {
		g.storeIDs[s] = struct{}{}
	}

	r.mu.Lock()
	r.gen = g
	r.mu.Unlock()
}
