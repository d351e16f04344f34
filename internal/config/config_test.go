package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.StagingDir != "staging" {
		t.Fatalf("unexpected staging dir: %s", cfg.StagingDir)
	}
	if cfg.StableDir != "stable" {
		t.Fatalf("unexpected stable dir: %s", cfg.StableDir)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval)
	}
	if cfg.HealthyThreshold != 10 {
		t.Fatalf("unexpected healthy threshold: %d", cfg.HealthyThreshold)
	}
	if cfg.ValidatorTimeout != 2*time.Minute {
		t.Fatalf("unexpected validator timeout: %s", cfg.ValidatorTimeout)
	}
	if cfg.AppCheckCmd != "npm run typecheck" {
		t.Fatalf("unexpected app check cmd: %s", cfg.AppCheckCmd)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MG_STAGING_DIR", "models/staging")
	t.Setenv("MG_STABLE_DIR", "models/stable")
	t.Setenv("MG_POLL_INTERVAL", "5s")
	t.Setenv("MG_HEALTHY_THRESHOLD", "3")
	t.Setenv("MG_DOCKER_HOST", "tcp://localhost:2376")
	t.Setenv("MG_METRICS_PORT", "9102")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.StagingDir != "models/staging" {
		t.Fatalf("unexpected staging dir: %s", cfg.StagingDir)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval)
	}
	if cfg.HealthyThreshold != 3 {
		t.Fatalf("unexpected healthy threshold: %d", cfg.HealthyThreshold)
	}
	if cfg.DockerHost != "tcp://localhost:2376" {
		t.Fatalf("unexpected docker host: %s", cfg.DockerHost)
	}
	if cfg.MetricsPort != 9102 {
		t.Fatalf("unexpected metrics port: %d", cfg.MetricsPort)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad interval", "MG_POLL_INTERVAL", "soon"},
		{"zero interval", "MG_POLL_INTERVAL", "0s"},
		{"negative threshold", "MG_HEALTHY_THRESHOLD", "-1"},
		{"bad threshold", "MG_HEALTHY_THRESHOLD", "ten"},
		{"bad timeout", "MG_VALIDATOR_TIMEOUT", "forever"},
		{"bad port", "MG_HEALTH_PORT", "99999"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_StagingEqualsStable(t *testing.T) {
	t.Setenv("MG_STAGING_DIR", "models")
	t.Setenv("MG_STABLE_DIR", "models")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when staging and stable collide")
	}
}
