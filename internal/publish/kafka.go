// Package publish pushes finished hotspot sets to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-hotspot-patrol/internal/config"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
)

// Publisher receives every successfully stored cluster run.
type Publisher interface {
	Publish(ctx context.Context, run *models.ClusterRun) error
	Close() error
}

// Nop discards runs. Used when no sink is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *models.ClusterRun) error { return nil }
func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes one message per run to the hotspot topic, keyed by
// run ID.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.HotspotTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, run *models.ClusterRun) error {
	msg, err := serializeRun(run)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish hotspot run %s: %w", run.ID, err)
	}
	slog.Debug("published hotspot run", "run_id", run.ID, "clusters", len(run.Clusters))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type hotspotMessage struct {
	RunID         string           `json:"run_id"`
	ComputedAt    time.Time        `json:"computed_at"`
	EpsilonMeters float64          `json:"epsilon_meters"`
	MinSamples    int              `json:"min_samples"`
	Eligible      int              `json:"eligible"`
	Noise         int              `json:"noise"`
	Hotspots      []hotspotPayload `json:"hotspots"`
}

type hotspotPayload struct {
	ClusterID    int     `json:"cluster_id"`
	MemberCount  int     `json:"member_count"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters int     `json:"radius_meters"`
}

func serializeRun(run *models.ClusterRun) (kafkago.Message, error) {
	payload := hotspotMessage{
		RunID:         run.ID,
		ComputedAt:    run.FinishedAt.UTC(),
		EpsilonMeters: run.EpsilonMeters,
		MinSamples:    run.MinSamples,
		Eligible:      run.Eligible,
		Noise:         run.Noise,
		Hotspots:      make([]hotspotPayload, 0, len(run.Clusters)),
	}
	for _, c := range run.Clusters {
		payload.Hotspots = append(payload.Hotspots, hotspotPayload{
			ClusterID:    c.ClusterID,
			MemberCount:  c.MemberCount,
			Latitude:     c.CenterLatitude,
			Longitude:    c.CenterLongitude,
			RadiusMeters: c.RadiusMeters,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hotspot run: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(run.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "hotspot_count", Value: []byte(strconv.Itoa(len(run.Clusters)))},
			{Key: "computed_at", Value: []byte(run.FinishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
