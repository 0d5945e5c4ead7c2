// Package ingest is the front-door worker pool that hashes transactions
// into per-queue FIFOs and applies them to a graph.Graph (spec §4.3, C4).
//
// Submit is non-blocking with respect to graph work: once a job is enqueued
// the call returns, and a worker bound to that queue applies it later. Two
// transactions hashing to the same queue apply in submission order; two
// transactions hashing to different queues may apply in any order, which is
// safe because graph.Graph.AddTransaction is commutative addition (spec §5).
//
// © 2025 hotregion authors. MIT License.
package ingest

import (
	"context"
	"errors"
	"hash/fnv"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/Voskan/hotregion/pkg/graph"
)

// ErrOverloaded is returned by Submit when the target queue is full. The
// reference implementation used unbounded queues; spec §4.3 explicitly
// leaves back-pressure as "the implementation's choice, not the source's" —
// this module caps queue length and rejects on overflow.
var ErrOverloaded = errors.New("ingest: queue overloaded")

type job struct {
	regions []graph.VirtualRegionId
	weight  uint64
}

// Ingest owns Q buffered channels, each served by W worker goroutines that
// call graph.AddTransaction.
type Ingest struct {
	g       *graph.Graph
	queues  []chan job
	workers int

	eg      *errgroup.Group
	logger  *zap.Logger
	metrics metricsSink
}

// Option configures an Ingest at construction time.
type Option func(*Ingest)

func WithLogger(l *zap.Logger) Option {
	return func(in *Ingest) {
		if l != nil {
			in.logger = l
		}
	}
}

func WithMetricsSink(m metricsSink) Option {
	return func(in *Ingest) {
		if m != nil {
			in.metrics = m
		}
	}
}

// New constructs an Ingest bound to g, with queueCount queues of the given
// capacity, each served by workersPerQueue goroutines, and starts the
// workers immediately. Call Close to drain and stop them.
func New(ctx context.Context, g *graph.Graph, queueCount, workersPerQueue, queueCapacity int, opts ...Option) *Ingest {
	in := &Ingest{
		g:       g,
		queues:  make([]chan job, queueCount),
		workers: workersPerQueue,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(in)
	}

	eg, _ := errgroup.WithContext(ctx)
	in.eg = eg

	for i := range in.queues {
		in.queues[i] = make(chan job, queueCapacity)
		q := in.queues[i]
		for w := 0; w < workersPerQueue; w++ {
			eg.Go(func() error {
				for j := range q {
					in.g.AddTransaction(j.regions, j.weight)
					in.metrics.incApplied()
				}
				return nil
			})
		}
	}
	return in
}

// Submit hashes regions (as an ordered tuple) onto one of the queues and
// enqueues the transaction. It returns ErrOverloaded if that queue's buffer
// is full, rather than blocking.
func (in *Ingest) Submit(regions []graph.VirtualRegionId, weight uint64) error {
	idx := in.hashRegions(regions) % uint64(len(in.queues))
	select {
	case in.queues[idx] <- job{regions: regions, weight: weight}:
		in.metrics.incSubmitted()
		return nil
	default:
		in.logger.Warn("ingest queue overloaded", zap.Uint64("queue", idx))
		in.metrics.incOverloaded()
		return ErrOverloaded
	}
}

// hashRegions hashes the ordered tuple of region ids with FNV-1a so that
// identical transactions (same regions, same order) always land on the same
// queue, preserving per-queue FIFO order for repeats.
func (in *Ingest) hashRegions(regions []graph.VirtualRegionId) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, r := range regions {
		v := uint64(r)
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf)
	}
	return h.Sum64()
}

// Close closes every queue so workers drain remaining jobs and exit, then
// waits for them (spec §9: "created at startup, shut down on process exit
// after all in-flight ingest workers drain").
func (in *Ingest) Close() error {
	for _, q := range in.queues {
		close(q)
	}
	return in.eg.Wait()
}
