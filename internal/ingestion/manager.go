package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hotspot-patrol/internal/config"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
	"github.com/mr1hm/go-hotspot-patrol/internal/worker"
)

// SourceResult reports what one refresh did for one source.
type SourceResult struct {
	Source  models.Source `json:"source"`
	Fetched int           `json:"fetched"`
	Stored  int           `json:"stored"`
	Err     error         `json:"-"`
}

type Manager struct {
	cfg      *config.Config
	repo     repository.SightingRepository
	fetchers []Fetcher
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

func NewManager(cfg *config.Config, repo repository.SightingRepository, metrics *observability.Metrics, fetchers ...Fetcher) *Manager {
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		fetchers: fetchers,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used to stamp ingestion times.
func (m *Manager) SetClock(c clockwork.Clock) {
	m.clock = c
}

type storeJob struct {
	slot     int
	sighting models.Sighting
}

// Refresh fetches every configured source concurrently, normalizes the
// records and stores them through a bounded worker pool. A failing source is
// logged and reported in its result; it never stops the others. The returned
// error is non-nil only when ctx ends first.
func (m *Manager) Refresh(ctx context.Context) ([]SourceResult, error) {
	results := make([]SourceResult, len(m.fetchers))
	stored := make([]atomic.Int64, len(m.fetchers))

	processor := func(ctx context.Context, job storeJob) error {
		s := job.sighting
		if err := m.repo.AddSighting(ctx, &s); err != nil {
			slog.Error("error adding sighting", "source", s.Source, "error", err)
			return err
		}
		stored[job.slot].Add(1)
		m.metrics.SightingsStored.WithLabelValues(string(s.Source)).Inc()
		return nil
	}

	pool := worker.NewWorkerPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, processor)
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i, f := range m.fetchers {
		results[i].Source = f.Source()

		wg.Add(1)
		go func(slot int, f Fetcher) {
			defer wg.Done()
			results[slot].Fetched, results[slot].Err = m.ingest(ctx, slot, f, pool)
		}(i, f)
	}
	wg.Wait()
	pool.Stop()

	for i := range results {
		results[i].Stored = int(stored[i].Load())
		slog.Info("source refreshed",
			"source", results[i].Source,
			"fetched", results[i].Fetched,
			"stored", results[i].Stored,
			"ok", results[i].Err == nil,
		)
	}

	stats := pool.Stats()
	if stats.Failed > 0 {
		slog.Warn("some sightings were not stored", "failed", stats.Failed)
	}

	return results, ctx.Err()
}

func (m *Manager) ingest(ctx context.Context, slot int, f Fetcher, pool *worker.WorkerPool[storeJob]) (int, error) {
	source := f.Source()
	slog.Debug("fetching", "source", source)

	raws, err := f.Fetch(ctx)
	if err != nil {
		m.metrics.SourceErrors.WithLabelValues(string(source)).Inc()
		slog.Error("fetch failed", "source", source, "error", err)
		return 0, err
	}
	m.metrics.RecordsFetched.WithLabelValues(string(source)).Add(float64(len(raws)))

	for _, raw := range raws {
		s := m.normalize(raw, source)
		if err := pool.Submit(ctx, storeJob{slot: slot, sighting: s}); err != nil {
			return len(raws), fmt.Errorf("refresh of %s interrupted: %w", source, err)
		}
	}

	slog.Debug("fetch complete", "source", source, "count", len(raws))
	return len(raws), nil
}

func (m *Manager) normalize(raw normalize.RawRecord, source models.Source) models.Sighting {
	s, rejected := normalize.Inspect(raw, source)
	for _, field := range rejected {
		m.metrics.FieldsRejected.WithLabelValues(string(source), string(field)).Inc()
	}
	if len(rejected) > 0 {
		slog.Debug("dropped malformed fields", "source", source, "fields", rejected)
	}
	s.CreatedAt = m.clock.Now().UTC()
	return s
}

// AddManual normalizes and stores a single user-submitted record.
func (m *Manager) AddManual(ctx context.Context, raw normalize.RawRecord) (models.Sighting, error) {
	s := m.normalize(raw, models.SourceManual)
	if err := m.repo.AddSighting(ctx, &s); err != nil {
		return models.Sighting{}, fmt.Errorf("error storing manual sighting: %w", err)
	}
	m.metrics.SightingsStored.WithLabelValues(string(models.SourceManual)).Inc()
	slog.Info("added manual sighting", "id", s.ID, "geolocated", s.Geolocated())
	return s, nil
}

// Sources lists the sources this manager refreshes.
func (m *Manager) Sources() []models.Source {
	out := make([]models.Source, len(m.fetchers))
	for i, f := range m.fetchers {
		out[i] = f.Source()
	}
	return out
}
