package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.AIScoreThreshold != 7.0 {
		t.Errorf("AIScoreThreshold = %v, want 7.0", cfg.AIScoreThreshold)
	}
	if cfg.AIAutoApproveScore != 0 {
		t.Errorf("AIAutoApproveScore = %v, want 0 (disabled)", cfg.AIAutoApproveScore)
	}
	if !cfg.AIAutoReview {
		t.Error("AIAutoReview should default to true")
	}
	if cfg.AIValidationMode != AIModeNone {
		t.Errorf("AIValidationMode = %q, want %q", cfg.AIValidationMode, AIModeNone)
	}
	if cfg.EscalationSchedule != "@every 1m" {
		t.Errorf("EscalationSchedule = %q, want @every 1m", cfg.EscalationSchedule)
	}
	if cfg.EscalationMaxLevel != 5 {
		t.Errorf("EscalationMaxLevel = %d, want 5", cfg.EscalationMaxLevel)
	}
	if cfg.WorkflowEventsTopic != "auditflow-workflow-events" {
		t.Errorf("WorkflowEventsTopic = %q, want default", cfg.WorkflowEventsTopic)
	}
	if cfg.ProjectionCacheSize != 256 {
		t.Errorf("ProjectionCacheSize = %d, want 256", cfg.ProjectionCacheSize)
	}
	if cfg.WorkerGroupID != "auditflow-events-worker" {
		t.Errorf("WorkerGroupID = %q, want default", cfg.WorkerGroupID)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("AI_SCORE_THRESHOLD", "6.5")
	os.Setenv("AI_AUTO_REVIEW", "false")
	os.Setenv("ESCALATION_MAX_LEVEL", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.AIScoreThreshold != 6.5 {
		t.Errorf("AIScoreThreshold = %v, want 6.5", cfg.AIScoreThreshold)
	}
	if cfg.AIAutoReview {
		t.Error("AIAutoReview should be false")
	}
	if cfg.EscalationMaxLevel != 3 {
		t.Errorf("EscalationMaxLevel = %d, want 3", cfg.EscalationMaxLevel)
	}
}

func TestLoad_ThresholdRange(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		err   bool
	}{
		{"threshold min", "AI_SCORE_THRESHOLD", "0", false},
		{"threshold max", "AI_SCORE_THRESHOLD", "10", false},
		{"threshold too high", "AI_SCORE_THRESHOLD", "10.5", true},
		{"threshold negative", "AI_SCORE_THRESHOLD", "-1", true},
		{"auto approve too high", "AI_AUTO_APPROVE_SCORE", "11", true},
		{"confidence too high", "AI_AUTO_APPROVE_MIN_CONFIDENCE", "1.2", true},
		{"confidence valid", "AI_AUTO_APPROVE_MIN_CONFIDENCE", "0.5", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.key, tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				if cfg != nil {
					t.Error("Load should return nil config on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestLoad_ValidationMode(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		want string
		err  bool
	}{
		{"none", map[string]string{"AI_VALIDATION_MODE": "none"}, AIModeNone, false},
		{"upper case http", map[string]string{"AI_VALIDATION_MODE": "HTTP", "AI_VALIDATOR_URL": "http://ai:8000"}, AIModeHTTP, false},
		{"http without url", map[string]string{"AI_VALIDATION_MODE": "http"}, "", true},
		{"kafka", map[string]string{"AI_VALIDATION_MODE": "kafka", "KAFKA_BROKERS": "localhost:9092"}, AIModeKafka, false},
		{"kafka without brokers", map[string]string{"AI_VALIDATION_MODE": "kafka"}, "", true},
		{"unknown", map[string]string{"AI_VALIDATION_MODE": "grpc"}, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.AIValidationMode != tc.want {
				t.Errorf("AIValidationMode = %q, want %q", cfg.AIValidationMode, tc.want)
			}
		})
	}
}

func TestLoad_EscalationMaxLevelMustBePositive(t *testing.T) {
	os.Clearenv()
	os.Setenv("ESCALATION_MAX_LEVEL", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject ESCALATION_MAX_LEVEL=0")
	}
}

func TestDurations(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		got  func(*Config) time.Duration
		want time.Duration
	}{
		{"job timeout valid", Config{AIJobTimeout: "30s"}, (*Config).JobTimeout, 30 * time.Second},
		{"job timeout invalid", Config{AIJobTimeout: "soon"}, (*Config).JobTimeout, 60 * time.Second},
		{"job timeout negative", Config{AIJobTimeout: "-5s"}, (*Config).JobTimeout, 60 * time.Second},
		{"escalation step valid", Config{EscalationInterval: "12h"}, (*Config).EscalationStep, 12 * time.Hour},
		{"escalation step zero", Config{EscalationInterval: "0"}, (*Config).EscalationStep, 24 * time.Hour},
		{"warning window valid", Config{EscalationWarningWindow: "72h"}, (*Config).WarningWindow, 72 * time.Hour},
		{"warning window empty", Config{}, (*Config).WarningWindow, 48 * time.Hour},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if got := tc.got(&cfg); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("KafkaBrokersList = %v, want [a:9092 b:9092]", got)
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}
