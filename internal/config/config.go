// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Validation dispatch modes.
const (
	AIModeNone  = "none"
	AIModeHTTP  = "http"
	AIModeKafka = "kafka"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the JSON API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects the in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// AIScoreThreshold is the score (0-10) below which ingested results open AI findings.
	AIScoreThreshold float64 `mapstructure:"AI_SCORE_THRESHOLD"`
	// AIAutoApproveScore enables auto-approval at or above this score; 0 disables it.
	AIAutoApproveScore float64 `mapstructure:"AI_AUTO_APPROVE_SCORE"`
	// AIAutoApproveMinConfidence is the minimum confidence (0-1) for auto-approval.
	AIAutoApproveMinConfidence float64 `mapstructure:"AI_AUTO_APPROVE_MIN_CONFIDENCE"`
	// AIAutoReview moves ai_validated submissions straight to under_review on ingest.
	AIAutoReview bool `mapstructure:"AI_AUTO_REVIEW"`
	// AIValidationMode selects how jobs are dispatched: none, http or kafka.
	AIValidationMode string `mapstructure:"AI_VALIDATION_MODE"`
	// AIValidatorURL is the base URL of the HTTP validator (mode http).
	AIValidatorURL string `mapstructure:"AI_VALIDATOR_URL"`
	// AIMaxConcurrentJobs bounds in-flight HTTP validation jobs.
	AIMaxConcurrentJobs int `mapstructure:"AI_MAX_CONCURRENT_JOBS"`
	// AIJobTimeout is the per-attempt validator timeout (e.g. "60s").
	AIJobTimeout string `mapstructure:"AI_JOB_TIMEOUT"`
	// AIMaxRetries is the number of validator attempts before a job is marked failed.
	AIMaxRetries int `mapstructure:"AI_MAX_RETRIES"`

	// EscalationSchedule is the cron spec for the escalation tick (e.g. "@every 1m").
	EscalationSchedule string `mapstructure:"ESCALATION_SCHEDULE"`
	// EscalationInterval is how long past a deadline each further level waits (e.g. "24h").
	EscalationInterval string `mapstructure:"ESCALATION_INTERVAL"`
	// EscalationMaxLevel caps automatic escalation.
	EscalationMaxLevel int `mapstructure:"ESCALATION_MAX_LEVEL"`
	// EscalationWarningWindow is how far ahead of a deadline a warning is sent (e.g. "48h").
	EscalationWarningWindow string `mapstructure:"ESCALATION_WARNING_WINDOW"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// WorkflowEventsTopic receives one message per ledger block.
	WorkflowEventsTopic string `mapstructure:"WORKFLOW_EVENTS_TOPIC"`
	// AIJobsTopic receives validation job requests (mode kafka).
	AIJobsTopic string `mapstructure:"AI_JOBS_TOPIC"`
	// AIResultsTopic is consumed for validation results (mode kafka).
	AIResultsTopic string `mapstructure:"AI_RESULTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the server's result consumer and the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// RabbitMQURL enables notification delivery to RabbitMQ when set.
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	// NotificationQueue is the RabbitMQ queue for notifications.
	NotificationQueue string `mapstructure:"NOTIFICATION_QUEUE"`

	// Worker-only: Loki URL for the events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// Worker-only: consumer group for the workflow events topic.
	WorkerGroupID string `mapstructure:"WORKER_GROUP_ID"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// ProjectionCacheSize is the number of last-known-good read projections kept in memory.
	ProjectionCacheSize int `mapstructure:"PROJECTION_CACHE_SIZE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("AI_SCORE_THRESHOLD", 7.0)
	v.SetDefault("AI_AUTO_APPROVE_SCORE", 0.0)
	v.SetDefault("AI_AUTO_APPROVE_MIN_CONFIDENCE", 0.85)
	v.SetDefault("AI_AUTO_REVIEW", true)
	v.SetDefault("AI_VALIDATION_MODE", AIModeNone)
	v.SetDefault("AI_VALIDATOR_URL", "")
	v.SetDefault("AI_MAX_CONCURRENT_JOBS", 4)
	v.SetDefault("AI_JOB_TIMEOUT", "60s")
	v.SetDefault("AI_MAX_RETRIES", 3)
	v.SetDefault("ESCALATION_SCHEDULE", "@every 1m")
	v.SetDefault("ESCALATION_INTERVAL", "24h")
	v.SetDefault("ESCALATION_MAX_LEVEL", 5)
	v.SetDefault("ESCALATION_WARNING_WINDOW", "48h")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("WORKFLOW_EVENTS_TOPIC", "auditflow-workflow-events")
	v.SetDefault("AI_JOBS_TOPIC", "auditflow-ai-jobs")
	v.SetDefault("AI_RESULTS_TOPIC", "auditflow-ai-results")
	v.SetDefault("KAFKA_GROUP_ID", "auditflow-engine")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("NOTIFICATION_QUEUE", "auditflow-notifications")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("WORKER_GROUP_ID", "auditflow-events-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "auditflow-engine")
	v.SetDefault("PROJECTION_CACHE_SIZE", 256)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.AIScoreThreshold < 0 || cfg.AIScoreThreshold > 10 {
		return nil, errors.New("config: AI_SCORE_THRESHOLD must be between 0 and 10")
	}
	if cfg.AIAutoApproveScore < 0 || cfg.AIAutoApproveScore > 10 {
		return nil, errors.New("config: AI_AUTO_APPROVE_SCORE must be between 0 and 10")
	}
	if cfg.AIAutoApproveMinConfidence < 0 || cfg.AIAutoApproveMinConfidence > 1 {
		return nil, errors.New("config: AI_AUTO_APPROVE_MIN_CONFIDENCE must be between 0 and 1")
	}

	cfg.AIValidationMode = strings.ToLower(strings.TrimSpace(cfg.AIValidationMode))
	switch cfg.AIValidationMode {
	case "":
		cfg.AIValidationMode = AIModeNone
	case AIModeNone:
	case AIModeHTTP:
		if cfg.AIValidatorURL == "" {
			return nil, errors.New("config: AI_VALIDATOR_URL must be set when AI_VALIDATION_MODE=http")
		}
	case AIModeKafka:
		if len(cfg.KafkaBrokersList()) == 0 {
			return nil, errors.New("config: KAFKA_BROKERS must be set when AI_VALIDATION_MODE=kafka")
		}
	default:
		return nil, errors.New("config: AI_VALIDATION_MODE must be none, http or kafka")
	}

	if cfg.AIMaxConcurrentJobs <= 0 {
		cfg.AIMaxConcurrentJobs = 4
	}
	if cfg.AIMaxRetries <= 0 {
		cfg.AIMaxRetries = 1
	}
	if cfg.EscalationMaxLevel <= 0 {
		return nil, errors.New("config: ESCALATION_MAX_LEVEL must be positive")
	}
	if cfg.ProjectionCacheSize <= 0 {
		cfg.ProjectionCacheSize = 256
	}

	return &cfg, nil
}

// JobTimeout parses AIJobTimeout. Returns 60s if unset or invalid.
func (c *Config) JobTimeout() time.Duration {
	return parsePositive(c.AIJobTimeout, 60*time.Second)
}

// EscalationStep parses EscalationInterval. Returns 24h if unset or invalid.
func (c *Config) EscalationStep() time.Duration {
	return parsePositive(c.EscalationInterval, 24*time.Hour)
}

// WarningWindow parses EscalationWarningWindow. Returns 48h if unset or invalid.
func (c *Config) WarningWindow() time.Duration {
	return parsePositive(c.EscalationWarningWindow, 48*time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means Kafka is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePositive(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
