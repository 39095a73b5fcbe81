// Package hotspot runs the clustering job: read every stored sighting,
// cluster the geolocated ones and atomically replace the stored hotspots.
package hotspot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hotspot-patrol/internal/broadcast"
	"github.com/mr1hm/go-hotspot-patrol/internal/cluster"
	"github.com/mr1hm/go-hotspot-patrol/internal/ingestion"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/publish"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
)

// ErrStoreUnavailable wraps any failure to read sightings or write clusters.
var ErrStoreUnavailable = errors.New("sighting store unavailable")

type Store interface {
	repository.SightingRepository
	repository.ClusterRepository
}

type Refresher interface {
	Refresh(ctx context.Context) ([]ingestion.SourceResult, error)
}

type ReportCollector interface {
	Collect(ctx context.Context) (int, error)
}

type Options struct {
	Params      cluster.Params
	Metrics     *observability.Metrics
	Broadcaster *broadcast.Broadcaster // optional
	Publisher   publish.Publisher      // optional
	Refresher   Refresher              // optional, used by UpdateAll
	Reports     ReportCollector        // optional, used by UpdateAll
}

type Service struct {
	store       Store
	params      cluster.Params
	metrics     *observability.Metrics
	broadcaster *broadcast.Broadcaster
	publisher   publish.Publisher
	refresher   Refresher
	reports     ReportCollector
	clock       clockwork.Clock

	// mu serializes runs so two replaces never interleave.
	mu sync.Mutex
}

func NewService(store Store, opts Options) *Service {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = publish.Nop{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}
	return &Service{
		store:       store,
		params:      opts.Params,
		metrics:     metrics,
		broadcaster: opts.Broadcaster,
		publisher:   publisher,
		refresher:   opts.Refresher,
		reports:     opts.Reports,
		clock:       clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used to stamp runs.
func (s *Service) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Params returns the configured clustering parameters.
func (s *Service) Params() cluster.Params {
	return s.params
}

// Recompute clusters with the configured parameters.
func (s *Service) Recompute(ctx context.Context) (*models.ClusterRun, error) {
	return s.RecomputeWith(ctx, s.params)
}

// RecomputeWith clusters with params instead of the configured ones. Invalid
// params fail with cluster.ErrInvalidParameters before the store is touched;
// store failures wrap ErrStoreUnavailable and leave the previous hotspots in
// place. Runs are serialized with UpdateAll, so a call can wait behind a
// source refresh in progress.
func (s *Service) RecomputeWith(ctx context.Context, params cluster.Params) (*models.ClusterRun, error) {
	if err := params.Validate(); err != nil {
		s.metrics.ClusterRuns.WithLabelValues("invalid").Inc()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recompute(ctx, params)
}

func (s *Service) recompute(ctx context.Context, params cluster.Params) (*models.ClusterRun, error) {
	started := s.clock.Now()

	sightings, err := s.store.ReadAll(ctx)
	if err != nil {
		s.metrics.ClusterRuns.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: reading sightings: %w", ErrStoreUnavailable, err)
	}

	points := make([]cluster.Point, 0, len(sightings))
	for _, sg := range sightings {
		c, ok := sg.Coordinates()
		if !ok {
			continue
		}
		points = append(points, cluster.Point{ID: sg.ID, Lat: c.Latitude, Lng: c.Longitude})
	}

	assignment, err := cluster.Run(points, params)
	if err != nil {
		s.metrics.ClusterRuns.WithLabelValues("invalid").Inc()
		return nil, err
	}

	run := &models.ClusterRun{
		ID:            uuid.NewString(),
		EpsilonMeters: params.EpsilonMeters,
		MinSamples:    params.MinSamples,
		Eligible:      len(points),
		Noise:         assignment.NoiseCount(),
		Clusters:      cluster.Summarize(points, assignment),
		StartedAt:     started.UTC(),
		FinishedAt:    s.clock.Now().UTC(),
	}

	if err := s.store.ReplaceClusters(ctx, run); err != nil {
		s.metrics.ClusterRuns.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: replacing clusters: %w", ErrStoreUnavailable, err)
	}

	s.metrics.ClusterRuns.WithLabelValues("success").Inc()
	s.metrics.ClusterRunTime.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	s.metrics.CurrentClusters.Set(float64(len(run.Clusters)))
	s.metrics.NoisePoints.Set(float64(run.Noise))

	slog.Info("hotspots recomputed",
		"run_id", run.ID,
		"sightings", len(sightings),
		"eligible", run.Eligible,
		"clusters", len(run.Clusters),
		"noise", run.Noise,
	)

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(run)
	}
	if err := s.publisher.Publish(ctx, run); err != nil {
		slog.Error("error publishing hotspots", "run_id", run.ID, "error", err)
	}

	return run, nil
}

type UpdateResult struct {
	Sources []ingestion.SourceResult
	Reports int
	Run     *models.ClusterRun
}

// UpdateAll refreshes every source, collects text reports and recomputes
// hotspots as one serialized step. Source and report failures are logged and
// do not stop the recompute.
func (s *Service) UpdateAll(ctx context.Context) (*UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &UpdateResult{}

	if s.refresher != nil {
		sources, err := s.refresher.Refresh(ctx)
		res.Sources = sources
		if err != nil {
			return res, fmt.Errorf("error refreshing sources: %w", err)
		}
	}

	if s.reports != nil {
		n, err := s.reports.Collect(ctx)
		if err != nil {
			slog.Error("error collecting reports", "error", err)
		}
		res.Reports = n
	}

	run, err := s.recompute(ctx, s.params)
	if err != nil {
		return res, err
	}
	res.Run = run
	return res, nil
}
