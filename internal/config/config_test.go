package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 10000.0, cfg.Cluster.EpsilonMeters)
	assert.Equal(t, 4, cfg.Cluster.MinSamples)
	assert.Equal(t, "stub", cfg.Detector.Kind)
	assert.Equal(t, "./data/hotspot-patrol.db", cfg.DB.Path)
	assert.Equal(t, 30*time.Second, cfg.Sources.Timeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Reports.URLs)
	assert.Empty(t, cfg.Scheduler.Schedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CLUSTER_EPSILON_METERS", "2500.5")
	t.Setenv("CLUSTER_MIN_SAMPLES", "6")
	t.Setenv("REPORT_URLS", "https://a.example/x, ,https://b.example/y")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REFRESH_SCHEDULE", "0 */6 * * *")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2500.5, cfg.Cluster.EpsilonMeters)
	assert.Equal(t, 6, cfg.Cluster.MinSamples)
	assert.Equal(t, []string{"https://a.example/x", "https://b.example/y"}, cfg.Reports.URLs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"zero epsilon", map[string]string{"CLUSTER_EPSILON_METERS": "0"}},
		{"negative epsilon", map[string]string{"CLUSTER_EPSILON_METERS": "-10"}},
		{"nan epsilon", map[string]string{"CLUSTER_EPSILON_METERS": "NaN"}},
		{"zero min samples", map[string]string{"CLUSTER_MIN_SAMPLES": "0"}},
		{"unknown detector", map[string]string{"DETECTOR_KIND": "yolo"}},
		{"remote detector without url", map[string]string{"DETECTOR_KIND": "remote"}},
		{"bad cron", map[string]string{"REFRESH_SCHEDULE": "every tuesday"}},
		{"bad timezone", map[string]string{"REFRESH_TIMEZONE": "Mars/Olympus"}},
		{"zero workers", map[string]string{"WORKER_COUNT": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_DURATION", "soon")
	t.Setenv("TEST_BOOL", "maybe")

	assert.Equal(t, 3, getEnvInt("TEST_INT", 3))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))
	assert.True(t, getEnvBool("TEST_BOOL", true))
	assert.Equal(t, []string{"x"}, getEnvList("TEST_UNSET_LIST", []string{"x"}))
}
