package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-hotspot-patrol/internal/api"
	"github.com/mr1hm/go-hotspot-patrol/internal/broadcast"
	"github.com/mr1hm/go-hotspot-patrol/internal/cluster"
	"github.com/mr1hm/go-hotspot-patrol/internal/config"
	"github.com/mr1hm/go-hotspot-patrol/internal/detect"
	"github.com/mr1hm/go-hotspot-patrol/internal/hotspot"
	"github.com/mr1hm/go-hotspot-patrol/internal/ingestion"
	"github.com/mr1hm/go-hotspot-patrol/internal/logging"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/publish"
	"github.com/mr1hm/go-hotspot-patrol/internal/reports"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
	"github.com/mr1hm/go-hotspot-patrol/internal/scheduler"
)

// scheduledUpdateTimeout bounds one cron-triggered refresh.
const scheduledUpdateTimeout = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	mgr := ingestion.NewManager(cfg, db, metrics, ingestion.NewFetchers(cfg.Sources)...)
	collector := reports.NewCollector(&http.Client{Timeout: cfg.Sources.Timeout}, cfg.Reports.URLs, db, metrics)

	detector, err := detect.New(cfg.Detector)
	if err != nil {
		logging.Fatalf("Failed to initialize detector: %v", err)
	}

	var publisher publish.Publisher = publish.Nop{}
	if cfg.Kafka.Enabled {
		publisher = publish.NewKafkaPublisher(cfg.Kafka)
		slog.Info("publishing hotspots to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.HotspotTopic)
	}
	defer publisher.Close()

	// Broadcaster fans cluster runs out to SSE clients
	broadcaster := broadcast.NewBroadcaster()

	svc := hotspot.NewService(db, hotspot.Options{
		Params: cluster.Params{
			EpsilonMeters: cfg.Cluster.EpsilonMeters,
			MinSamples:    cfg.Cluster.MinSamples,
		},
		Metrics:     metrics,
		Broadcaster: broadcaster,
		Publisher:   publisher,
		Refresher:   mgr,
		Reports:     collector,
	})

	// Hotspots from whatever is already stored, before the first refresh
	if _, err := svc.Recompute(ctx); err != nil {
		slog.Error("initial hotspot run failed", "error", err)
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Schedule != "" {
		sched, err = scheduler.New(cfg.Scheduler.Timezone)
		if err != nil {
			logging.Fatalf("Failed to create scheduler: %v", err)
		}
		err = sched.Schedule(cfg.Scheduler.Schedule, func() {
			runCtx, runCancel := context.WithTimeout(ctx, scheduledUpdateTimeout)
			defer runCancel()
			if _, err := svc.UpdateAll(runCtx); err != nil {
				slog.Error("scheduled update failed", "error", err)
			}
		})
		if err != nil {
			logging.Fatalf("Failed to schedule updates: %v", err)
		}
		sched.Start()
		slog.Info("next scheduled update", "at", sched.Next())
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(api.Dependencies{
		Store:       db,
		Hotspots:    svc,
		Ingestion:   mgr,
		Detector:    detector,
		Broadcaster: broadcaster,
		Metrics:     metrics,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	if sched != nil {
		sched.Stop()
	}
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
