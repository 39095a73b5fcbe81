package models

import "time"

// ClusterSummary describes one hotspot from a single clustering run. IDs are
// only meaningful within the run that produced them.
type ClusterSummary struct {
	ClusterID       int
	MemberCount     int
	CenterLatitude  float64
	CenterLongitude float64
	RadiusMeters    int
}

// ClusterRun records the outcome of one recompute.
type ClusterRun struct {
	ID            string
	EpsilonMeters float64
	MinSamples    int
	Eligible      int // geolocated sightings fed to the engine
	Noise         int
	Clusters      []ClusterSummary
	StartedAt     time.Time
	FinishedAt    time.Time
}
