package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	Cluster   ClusterConfig
	Reports   ReportsConfig
	Detector  DetectorConfig
	Scheduler SchedulerConfig
	Kafka     KafkaConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	RateLimitRPS    int
	ShutdownTimeout time.Duration
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	Timeout             time.Duration
	EDDMapSEnabled      bool
	EDDMapSURL          string
	NASEnabled          bool
	NASURL              string
	INaturalistEnabled  bool
	INaturalistURL      string
	INaturalistPageSize int
	INaturalistMaxPages int
}

type ClusterConfig struct {
	EpsilonMeters float64
	MinSamples    int
}

type ReportsConfig struct {
	URLs []string
}

type DetectorConfig struct {
	Kind    string // "stub" or "remote"
	URL     string
	Timeout time.Duration
}

type SchedulerConfig struct {
	Schedule string // cron spec, empty disables
	Timezone string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	HotspotTopic string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:    getEnvInt("RATE_LIMIT_RPS", 5),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Sources: SourcesConfig{
			Timeout:             getEnvDuration("SOURCE_TIMEOUT", 30*time.Second),
			EDDMapSEnabled:      getEnvBool("EDDMAPS_ENABLED", true),
			EDDMapSURL:          getEnv("EDDMAPS_URL", "https://www.eddmaps.org/csv/Python_bivittatus_records.csv"),
			NASEnabled:          getEnvBool("NAS_ENABLED", true),
			NASURL:              getEnv("NAS_URL", "https://nas.er.usgs.gov/api/v2/occurrence/search?species_id=2552&state=FL&format=json"),
			INaturalistEnabled:  getEnvBool("INATURALIST_ENABLED", true),
			INaturalistURL:      getEnv("INATURALIST_URL", "https://api.inaturalist.org/v1/observations?taxon_id=238252&place_id=21"),
			INaturalistPageSize: getEnvInt("INATURALIST_PAGE_SIZE", 100),
			INaturalistMaxPages: getEnvInt("INATURALIST_MAX_PAGES", 50),
		},
		Cluster: ClusterConfig{
			EpsilonMeters: getEnvFloat("CLUSTER_EPSILON_METERS", 10000),
			MinSamples:    getEnvInt("CLUSTER_MIN_SAMPLES", 4),
		},
		Reports: ReportsConfig{
			URLs: getEnvList("REPORT_URLS", nil),
		},
		Detector: DetectorConfig{
			Kind:    getEnv("DETECTOR_KIND", "stub"),
			URL:     getEnv("DETECTOR_URL", ""),
			Timeout: getEnvDuration("DETECTOR_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			Schedule: getEnv("REFRESH_SCHEDULE", ""),
			Timezone: getEnv("REFRESH_TIMEZONE", "UTC"),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvBool("KAFKA_ENABLED", false),
			Brokers:      getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			HotspotTopic: getEnv("KAFKA_HOTSPOT_TOPIC", "wildlife-hotspots"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/hotspot-patrol.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size cannot be negative")
	}

	if c.Sources.Timeout <= 0 {
		return fmt.Errorf("source timeout must be positive")
	}
	if c.Sources.INaturalistPageSize < 1 || c.Sources.INaturalistMaxPages < 1 {
		return fmt.Errorf("iNaturalist page size and max pages must be at least 1")
	}

	eps := c.Cluster.EpsilonMeters
	if math.IsNaN(eps) || math.IsInf(eps, 0) || eps <= 0 {
		return fmt.Errorf("cluster epsilon must be a positive distance in meters, got %v", eps)
	}
	if c.Cluster.MinSamples < 1 {
		return fmt.Errorf("cluster min samples must be at least 1, got %d", c.Cluster.MinSamples)
	}

	switch c.Detector.Kind {
	case "stub":
	case "remote":
		if c.Detector.URL == "" {
			return fmt.Errorf("DETECTOR_URL is required for the remote detector")
		}
	default:
		return fmt.Errorf("invalid detector kind: %s", c.Detector.Kind)
	}

	if c.Scheduler.Schedule != "" {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", c.Scheduler.Schedule, err)
		}
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid refresh timezone %q: %w", c.Scheduler.Timezone, err)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
