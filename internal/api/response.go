package api

import (
	"time"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

type mapDataResponse struct {
	Sightings []sightingResponse `json:"sightings"`
	Clusters  []clusterResponse  `json:"clusters"`
}

type sightingResponse struct {
	ID     int64    `json:"id"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Source string   `json:"source"`
	Date   any      `json:"date"`
	County *string  `json:"county"`
	Note   string   `json:"note,omitempty"`
}

type clusterResponse struct {
	ClusterID int     `json:"cluster_id"`
	Count     int     `json:"count"`
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	RadiusM   int     `json:"radius_m"`
}

type runResponse struct {
	RunID         string            `json:"run_id"`
	EpsilonMeters float64           `json:"epsilon_meters"`
	MinSamples    int               `json:"min_samples"`
	Eligible      int               `json:"eligible"`
	Noise         int               `json:"noise"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	Clusters      []clusterResponse `json:"clusters"`
}

type sourceResponse struct {
	Source  string `json:"source"`
	Fetched int    `json:"fetched"`
	Stored  int    `json:"stored"`
	Error   string `json:"error,omitempty"`
}

type reportResponse struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Text   string `json:"text"`
	Date   string `json:"date"`
}

// formatDate renders a calendar date, or nil so the field encodes as null.
func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

func toSightingResponse(s models.Sighting) sightingResponse {
	return sightingResponse{
		ID:     s.ID,
		Lat:    s.Latitude,
		Lng:    s.Longitude,
		Source: string(s.Source),
		Date:   formatDate(s.ObservedAt),
		County: s.Region,
		Note:   s.Note,
	}
}

func toSightingResponses(sightings []models.Sighting) []sightingResponse {
	out := make([]sightingResponse, 0, len(sightings))
	for _, s := range sightings {
		out = append(out, toSightingResponse(s))
	}
	return out
}

func toClusterResponses(clusters []models.ClusterSummary) []clusterResponse {
	out := make([]clusterResponse, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, clusterResponse{
			ClusterID: c.ClusterID,
			Count:     c.MemberCount,
			CenterLat: c.CenterLatitude,
			CenterLng: c.CenterLongitude,
			RadiusM:   c.RadiusMeters,
		})
	}
	return out
}

func toRunResponse(run *models.ClusterRun) runResponse {
	return runResponse{
		RunID:         run.ID,
		EpsilonMeters: run.EpsilonMeters,
		MinSamples:    run.MinSamples,
		Eligible:      run.Eligible,
		Noise:         run.Noise,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Clusters:      toClusterResponses(run.Clusters),
	}
}
