// Command hotregion-agent is the process entrypoint: it wires the ingest
// worker pool, graph engine, Route table, planner, dispatcher, and
// snapshot store together, exposes the transaction ingest and metrics HTTP
// endpoints, and runs the planner/dispatcher cycle on a timer until
// SIGINT/SIGTERM (spec §9 "Process-wide state").
//
// © 2025 hotregion authors. MIT License.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Voskan/hotregion/internal/config"
	"github.com/Voskan/hotregion/pkg/dispatcher"
	"github.com/Voskan/hotregion/pkg/graph"
	"github.com/Voskan/hotregion/pkg/ingest"
	"github.com/Voskan/hotregion/pkg/pd"
	"github.com/Voskan/hotregion/pkg/planner"
	"github.com/Voskan/hotregion/pkg/route"
	"github.com/Voskan/hotregion/pkg/snapshot"
)

func main() {
	var (
		addr       = flag.String("addr", ":8090", "HTTP listen address for /ingest and /metrics")
		pdURL      = flag.String("pd-url", "http://127.0.0.1:2379", "Placement Director base URL")
		pdDB       = flag.String("pd-db", "default", "PD table-regions database name")
		pdTable    = flag.String("pd-table", "default", "PD table-regions table name")
		snapDir    = flag.String("snapshot-dir", "./snapshots", "badger directory for snapshot storage")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(agentVersion)
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap init: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Apply()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	// A single registry backs every component's Prometheus metrics (spec §2
	// "used by the Graph ... the dispatcher ... and the planner"), exposed
	// together at /metrics instead of the default global registry so the
	// endpoint carries only this process's own series.
	reg := prometheus.NewRegistry()

	g := graph.New(cfg.ShardCount, cfg.WInter, cfg.WIntra, cfg.HotThreshold, graph.WithLogger(logger), graph.WithMetricsSink(graph.NewPromMetrics(reg)))
	in := ingest.New(ctx, g, cfg.QueueCount, cfg.WorkersPerQueue, cfg.QueueCapacity, ingest.WithLogger(logger), ingest.WithMetricsSink(ingest.NewPromMetrics(reg)))

	pdClient := pd.New(*pdURL, cfg.PDTimeout, pd.WithLogger(logger))
	rt := route.New(pdClient, route.WithLogger(logger))
	if err := rt.RefreshFromPD(ctx, *pdDB, *pdTable); err != nil {
		logger.Fatal("initial route refresh failed", zap.Error(err))
	}

	store, err := snapshot.Open(*snapDir, cfg.SnapshotWindow, snapshot.WithLogger(logger))
	if err != nil {
		logger.Fatal("snapshot store open failed", zap.Error(err))
	}
	defer store.Close()

	pl := planner.New(planner.Config{WLeader: cfg.WLeader, Theta: cfg.Theta, BatchSize: cfg.BatchSize}, planner.WithLogger(logger), planner.WithMetricsSink(planner.NewPromMetrics(reg)))
	disp := dispatcher.New(dispatcher.Config{MaxRetry: cfg.MaxRetry, RetryInterval: cfg.RetryInterval, MaxWorkers: cfg.MaxWorkers}, pdClient, pdClient, dispatcher.WithLogger(logger), dispatcher.WithMetricsSink(dispatcher.NewPromMetrics(reg)))

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", ingestHandler(in, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", zap.Error(err))
		}
	}()

	planTicker := time.NewTicker(5 * time.Minute)
	defer planTicker.Stop()
	snapTicker := time.NewTicker(cfg.SnapshotInterval)
	defer snapTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-planTicker.C:
			runPlanCycle(ctx, g, rt, pl, disp, logger)
		case <-snapTicker.C:
			saveSnapshot(g, rt, store, logger)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	if err := in.Close(); err != nil {
		logger.Error("ingest drain failed", zap.Error(err))
	}
	saveSnapshot(g, rt, store, logger)
	logger.Info("shutdown complete")
}

// ingestHandler realizes the externally-provided wire protocol boundary
// (spec §6): `{ region_ids: [uint64] }` in, `{ success: bool }` out.
func ingestHandler(in *ingest.Ingest, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		RegionIDs []uint64 `json:"region_ids"`
		Weight    uint64   `json:"weight,omitempty"`
	}
	type response struct {
		Success bool `json:"success"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		weight := req.Weight
		if weight == 0 {
			weight = 1
		}
		regions := make([]graph.VirtualRegionId, len(req.RegionIDs))
		for i, id := range req.RegionIDs {
			regions[i] = graph.VirtualRegionId(id)
		}

		err := in.Submit(regions, weight)
		if err != nil {
			logger.Warn("ingest submit rejected", zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response{Success: err == nil})
	}
}

func runPlanCycle(ctx context.Context, g *graph.Graph, rt *route.Route, pl *planner.Planner, disp *dispatcher.Dispatcher, logger *zap.Logger) {
	clumps := g.HotClumps(0)
	if len(clumps) == 0 {
		return
	}
	subplans, err := pl.Plan(clumps, rt)
	if err != nil {
		logger.Error("planning failed", zap.Error(err))
		return
	}
	plans, err := dispatcher.GenerateOpPlans(subplans, rt)
	if err != nil {
		logger.Error("opplan generation failed", zap.Error(err))
		return
	}
	if err := disp.Run(ctx, plans); err != nil {
		logger.Error("dispatch run failed", zap.Error(err))
	}
}

func saveSnapshot(g *graph.Graph, rt *route.Route, store *snapshot.Store, logger *zap.Logger) {
	storeIDs, virtToReal, leader, followers := rt.ExportState()
	rs := &snapshot.RouteState{StoreIDs: storeIDs, VirtToReal: virtToReal, Leader: leader, Followers: followers}
	if err := store.Save(g.Export(), rs); err != nil {
		logger.Error("snapshot save failed", zap.Error(err))
	}
}

var agentVersion = "dev"
