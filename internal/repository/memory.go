package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	sightings []models.Sighting
	clusters  []models.ClusterSummary
	runs      []models.ClusterRun
	reports   []models.Report
	nextID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AddSighting(ctx context.Context, s *models.Sighting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	s.ID = m.nextID
	m.sightings = append(m.sightings, cloneSighting(*s))
	return nil
}

func (m *MemoryStore) ReadAll(ctx context.Context) ([]models.Sighting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Sighting, len(m.sightings))
	for i, s := range m.sightings {
		out[i] = cloneSighting(s)
	}
	return out, nil
}

// cloneSighting copies the pointed-to fields so callers never share them with
// the store.
func cloneSighting(s models.Sighting) models.Sighting {
	if s.ObservedAt != nil {
		t := *s.ObservedAt
		s.ObservedAt = &t
	}
	if s.Latitude != nil {
		v := *s.Latitude
		s.Latitude = &v
	}
	if s.Longitude != nil {
		v := *s.Longitude
		s.Longitude = &v
	}
	if s.Region != nil {
		v := *s.Region
		s.Region = &v
	}
	return s
}

func (m *MemoryStore) ListSightings(ctx context.Context, opts Filter) ([]models.Sighting, error) {
	all, err := m.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Sighting
	for i := len(all) - 1; i >= 0; i-- {
		s := all[i]
		if opts.Since != nil && (s.ObservedAt == nil || s.ObservedAt.Before(*opts.Since)) {
			continue
		}
		if opts.Source != nil && s.Source != *opts.Source {
			continue
		}
		if opts.GeolocatedOnly && !s.Geolocated() {
			continue
		}
		out = append(out, s)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountSightings(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sightings), nil
}

func (m *MemoryStore) ReplaceClusters(ctx context.Context, run *models.ClusterRun) error {
	if run == nil || run.ID == "" {
		return errors.New("cluster run must have an id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.runs {
		if r.ID == run.ID {
			return errors.New("duplicate cluster run id " + run.ID)
		}
	}

	m.clusters = append([]models.ClusterSummary(nil), run.Clusters...)
	stored := *run
	stored.Clusters = m.clusters
	m.runs = append(m.runs, stored)
	return nil
}

func (m *MemoryStore) ListClusters(ctx context.Context) ([]models.ClusterSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ClusterSummary, len(m.clusters))
	copy(out, m.clusters)
	return out, nil
}

func (m *MemoryStore) LatestRun(ctx context.Context) (*models.ClusterRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.runs) == 0 {
		return nil, nil
	}
	run := m.runs[len(m.runs)-1]
	run.Clusters = append([]models.ClusterSummary(nil), run.Clusters...)
	return &run, nil
}

func (m *MemoryStore) AddReport(ctx context.Context, r *models.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	r.ID = m.nextID
	m.reports = append(m.reports, *r)
	return nil
}

func (m *MemoryStore) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	out := make([]models.Report, len(m.reports))
	copy(out, m.reports)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
