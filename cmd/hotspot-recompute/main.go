// Command hotspot-recompute runs one clustering pass over the stored
// sightings and prints the resulting hotspots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-hotspot-patrol/internal/cluster"
	"github.com/mr1hm/go-hotspot-patrol/internal/config"
	"github.com/mr1hm/go-hotspot-patrol/internal/hotspot"
	"github.com/mr1hm/go-hotspot-patrol/internal/ingestion"
	"github.com/mr1hm/go-hotspot-patrol/internal/logging"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}

	refresh := flag.Bool("refresh", false, "fetch every enabled source before clustering")
	epsilon := flag.Float64("epsilon", cfg.Cluster.EpsilonMeters, "neighborhood radius in meters")
	minSamples := flag.Int("min-samples", cfg.Cluster.MinSamples, "points required for a core point")
	flag.Parse()

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetricsForTesting()
	svc := hotspot.NewService(db, hotspot.Options{
		Params:  cluster.Params{EpsilonMeters: cfg.Cluster.EpsilonMeters, MinSamples: cfg.Cluster.MinSamples},
		Metrics: metrics,
	})

	if *refresh {
		mgr := ingestion.NewManager(cfg, db, metrics, ingestion.NewFetchers(cfg.Sources)...)
		results, err := mgr.Refresh(ctx)
		if err != nil {
			slog.Error("refresh interrupted", "error", err)
			os.Exit(1)
		}
		for _, r := range results {
			fmt.Printf("%-12s fetched=%d stored=%d ok=%t\n", r.Source, r.Fetched, r.Stored, r.Err == nil)
		}
	}

	run, err := svc.RecomputeWith(ctx, cluster.Params{EpsilonMeters: *epsilon, MinSamples: *minSamples})
	if err != nil {
		slog.Error("recompute failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("run %s: %d eligible, %d noise, %d hotspots\n", run.ID, run.Eligible, run.Noise, len(run.Clusters))
	for _, c := range run.Clusters {
		fmt.Printf("cluster %d: %d sightings at (%.5f, %.5f) radius %dm\n",
			c.ClusterID, c.MemberCount, c.CenterLatitude, c.CenterLongitude, c.RadiusMeters)
	}
}
