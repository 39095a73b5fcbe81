package repository

import (
	"context"
	"time"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

type Filter struct {
	Limit          int
	Offset         int
	Since          *time.Time // observed on or after
	Source         *models.Source
	GeolocatedOnly bool
}

type SightingRepository interface {
	// AddSighting stores s and sets s.ID.
	AddSighting(ctx context.Context, s *models.Sighting) error
	// ReadAll returns every stored sighting from one consistent snapshot,
	// in insertion order.
	ReadAll(ctx context.Context) ([]models.Sighting, error)
	ListSightings(ctx context.Context, opts Filter) ([]models.Sighting, error)
	CountSightings(ctx context.Context) (int, error)
}

type ClusterRepository interface {
	// ReplaceClusters swaps the stored cluster set for run.Clusters and
	// records the run. Either everything is replaced or nothing changes.
	ReplaceClusters(ctx context.Context, run *models.ClusterRun) error
	ListClusters(ctx context.Context) ([]models.ClusterSummary, error)
	// LatestRun returns nil when no run has been stored yet.
	LatestRun(ctx context.Context) (*models.ClusterRun, error)
}

type ReportRepository interface {
	AddReport(ctx context.Context, r *models.Report) error
	ListReports(ctx context.Context, limit int) ([]models.Report, error)
}

type Store interface {
	SightingRepository
	ClusterRepository
	ReportRepository
}
