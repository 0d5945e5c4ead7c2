// Package config bundles every tunable recognised by the hot-region
// detector and rebalancer, following the same functional-option shape the
// rest of this module inherits from its cache-library ancestor: a plain
// struct filled in by DefaultConfig(), then mutated in place by a slice of
// Option values, then validated once before use.
//
// © 2025 hotregion authors. MIT License.
package config

import (
	"errors"
	"time"

	"github.com/Voskan/hotregion/internal/unsafehelpers"
)

// Config holds every knob named in the system's external interface: graph
// weighting, hot/edge thresholds, planner variance target and batch size,
// dispatcher retry policy and worker count, and ingest queueing.
type Config struct {
	// Graph (C3)
	WInter       uint64 // edge weight multiplier for distinct region pairs
	WIntra       uint64 // edge weight multiplier for a region paired with itself
	HotThreshold uint64 // minimum vertex weight considered "hot"
	EdgeThresh   uint64 // clump BFS traverses only edges weighing more than this
	ShardCount   int    // ShardedMap bucket count, power-of-two

	// Planner (C6)
	WLeader   uint64  // bias toward keeping an existing leader as target
	Theta     float64 // variance-reduction stop threshold
	BatchSize int     // clumps moved per overloaded store per pass

	// Dispatcher (C7)
	MaxRetry      uint32        // retries before an OpPlan is dropped
	RetryInterval time.Duration // delay before a rescheduled OpPlan is retried
	MaxWorkers    int           // bounded dispatcher worker pool size
	PDTimeout     time.Duration // per-call timeout for PD HTTP requests

	// Ingest (C4)
	QueueCount      int // number of ingest queues
	WorkersPerQueue int // workers served per queue
	QueueCapacity   int // buffered channel capacity per queue; 0 = reject immediately on contention

	// Snapshot (C8)
	SnapshotInterval time.Duration // how often the agent takes a snapshot
	SnapshotWindow   int           // number of historical snapshots retained
}

// DefaultConfig returns the tunables named in the spec's defaults.
func DefaultConfig() *Config {
	return &Config{
		WInter:       10,
		WIntra:       1,
		HotThreshold: 0,
		EdgeThresh:   0,
		ShardCount:   1024,

		WLeader:   10,
		Theta:     1e-4,
		BatchSize: 5,

		MaxRetry:      10,
		RetryInterval: 20 * time.Second,
		MaxWorkers:    20,
		PDTimeout:     10 * time.Second,

		QueueCount:      10,
		WorkersPerQueue: 2,
		QueueCapacity:   4096,

		SnapshotInterval: 60 * time.Second,
		SnapshotWindow:   10,
	}
}

// Option mutates a Config in place. Options never fail on their own; all
// validation happens once, in Validate.
type Option func(*Config)

func WithGraphWeights(wInter, wIntra, hotThreshold, edgeThresh uint64) Option {
	return func(c *Config) {
		c.WInter = wInter
		c.WIntra = wIntra
		c.HotThreshold = hotThreshold
		c.EdgeThresh = edgeThresh
	}
}

func WithShardCount(n int) Option {
	return func(c *Config) { c.ShardCount = n }
}

func WithPlanner(wLeader uint64, theta float64, batchSize int) Option {
	return func(c *Config) {
		c.WLeader = wLeader
		c.Theta = theta
		c.BatchSize = batchSize
	}
}

func WithDispatcher(maxRetry uint32, retryInterval time.Duration, maxWorkers int) Option {
	return func(c *Config) {
		c.MaxRetry = maxRetry
		c.RetryInterval = retryInterval
		c.MaxWorkers = maxWorkers
	}
}

func WithPDTimeout(d time.Duration) Option {
	return func(c *Config) { c.PDTimeout = d }
}

func WithIngest(queueCount, workersPerQueue, queueCapacity int) Option {
	return func(c *Config) {
		c.QueueCount = queueCount
		c.WorkersPerQueue = workersPerQueue
		c.QueueCapacity = queueCapacity
	}
}

func WithSnapshot(interval time.Duration, window int) Option {
	return func(c *Config) {
		c.SnapshotInterval = interval
		c.SnapshotWindow = window
	}
}

// Apply copies every option onto a fresh DefaultConfig and validates it.
func Apply(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects nonsensical tunables early, the way the cache library's
// applyOptions rejects bad capacity/ttl/shard values before New returns.
func (c *Config) Validate() error {
	if c.ShardCount <= 0 || !unsafehelpers.IsPowerOfTwo(uintptr(c.ShardCount)) {
		return errInvalidShardCount
	}
	if c.BatchSize <= 0 {
		return errInvalidBatchSize
	}
	if c.Theta < 0 {
		return errInvalidTheta
	}
	if c.MaxRetry == 0 {
		return errInvalidMaxRetry
	}
	if c.MaxWorkers <= 0 {
		return errInvalidMaxWorkers
	}
	if c.QueueCount <= 0 || c.WorkersPerQueue <= 0 {
		return errInvalidIngest
	}
	if c.SnapshotWindow <= 0 {
		return errInvalidSnapshotWindow
	}
	return nil
}

var (
	errInvalidShardCount     = errors.New("config: shard count must be a power of two and > 0")
	errInvalidBatchSize      = errors.New("config: batch size must be > 0")
	errInvalidTheta          = errors.New("config: theta must be >= 0")
	errInvalidMaxRetry       = errors.New("config: max retry must be > 0")
	errInvalidMaxWorkers     = errors.New("config: max workers must be > 0")
	errInvalidIngest         = errors.New("config: queue count and workers per queue must be > 0")
	errInvalidSnapshotWindow = errors.New("config: snapshot window must be > 0")
)
