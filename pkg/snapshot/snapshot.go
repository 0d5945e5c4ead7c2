// Package snapshot periodically persists a Graph and a Route as opaque
// blobs and rotates a bounded window of past generations (spec §9, C8).
//
// Storage is a badger.DB (the teacher's L2 store, repurposed here from a
// cache-eviction backing store into a small embedded key/value store for
// snapshot generations) instead of flat files: each generation gets its own
// key, and the rotation window is a ring of keys exactly as the teacher's
// internal/genring rotates a ring of in-memory generations — adapted here
// from "ring of allocation arenas" to "ring of persisted snapshot slots".
//
// © 2025 hotregion authors. MIT License.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/Voskan/hotregion/pkg/graph"
)

// SnapshotIoError wraps any read/write failure against the underlying
// store (spec §7).
type SnapshotIoError struct {
	Reason string
	Err    error
}

func (e *SnapshotIoError) Error() string { return fmt.Sprintf("snapshot io: %s: %v", e.Reason, e.Err) }
func (e *SnapshotIoError) Unwrap() error { return e.Err }

const (
	graphKeyPrefix = "graph/"
	routeKeyPrefix = "route/"
	latestKey      = "latest"
)

// bundle is the gob-encoded payload written for one generation: a Graph
// state and, optionally, a Route state captured at the same instant.
type bundle struct {
	Graph *graph.State
	Route *RouteState
}

// RouteState mirrors route.generation's exported fields well enough to
// round-trip through Export/Import without pkg/route depending on this
// package (avoids an import cycle: route is a dependency of planner and
// dispatcher, snapshot depends on route's public shape only via this
// plain struct the caller fills in).
type RouteState struct {
	StoreIDs   []uint64
	VirtToReal map[uint64]uint64
	Leader     map[uint64]uint64
	Followers  map[uint64][]uint64
}

// Store persists Graph/Route bundles to a badger.DB, rotating through a
// fixed-size window of generation slots.
type Store struct {
	db     *badger.DB
	window uint32
	genCtr atomic.Uint32
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if absent) a badger.DB at dir and returns a Store
// that rotates through `window` generation slots (default 10).
func Open(dir string, window int, opts ...Option) (*Store, error) {
	if window <= 0 {
		window = 10
	}
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return nil, &SnapshotIoError{Reason: "open", Err: err}
	}
	s := &Store{db: db, window: uint32(window), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return &SnapshotIoError{Reason: "close", Err: err}
	}
	return nil
}

// Save writes graph and (optionally nil) route state into the next slot of
// the rotation window and advances the "latest" pointer.
func (s *Store) Save(g *graph.State, r *RouteState) error {
	slot := s.genCtr.Add(1) % s.window

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&bundle{Graph: g, Route: r}); err != nil {
		return &SnapshotIoError{Reason: "encode", Err: err}
	}
	payload := buf.Bytes()

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(fmt.Sprintf("slot/%d", slot))
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		return txn.Set([]byte(latestKey), key)
	})
	if err != nil {
		return &SnapshotIoError{Reason: "write", Err: err}
	}
	s.logger.Debug("snapshot saved", zap.Uint32("slot", slot))
	return nil
}

// Load reads the most recently saved generation.
func (s *Store) Load() (*graph.State, *RouteState, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		latestItem, err := txn.Get([]byte(latestKey))
		if err != nil {
			return err
		}
		var key []byte
		if err := latestItem.Value(func(v []byte) error {
			key = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			payload = append([]byte(nil), v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &SnapshotIoError{Reason: "read", Err: err}
	}

	var b bundle
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&b); err != nil {
		return nil, nil, &SnapshotIoError{Reason: "decode", Err: err}
	}
	return b.Graph, b.Route, nil
}
