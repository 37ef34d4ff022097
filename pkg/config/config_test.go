package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Local.Path != "./market_data.db" {
		t.Fatalf("unexpected default local path %q", cfg.Local.Path)
	}
	if cfg.Failover.HealthInterval != 15*time.Second {
		t.Fatalf("unexpected default health interval %v", cfg.Failover.HealthInterval)
	}
	if cfg.Hub.SubscriberBuffer != 256 {
		t.Fatalf("unexpected default subscriber buffer %d", cfg.Hub.SubscriberBuffer)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("unexpected default cache backend %q", cfg.Cache.Backend)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
remote:
  host: ch.internal
  database: derivatives
failover:
  health_interval: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Remote.Host != "ch.internal" || cfg.Remote.Database != "derivatives" {
		t.Fatalf("remote config not applied: %+v", cfg.Remote)
	}
	if cfg.Failover.HealthInterval != 30*time.Second {
		t.Fatalf("expected 30s health interval, got %v", cfg.Failover.HealthInterval)
	}
	// Untouched fields keep defaults.
	if cfg.Remote.Port != 9000 {
		t.Fatalf("expected default remote port, got %d", cfg.Remote.Port)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("REMOTE_DB_HOST", "ch.prod.internal")
	t.Setenv("LOCAL_DB_PATH", "/var/lib/voldesk/local.db")
	t.Setenv("ALLOWED_ORIGINS", "https://desk.example.com,https://ops.example.com")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.Host != "ch.prod.internal" {
		t.Fatalf("env remote host not applied: %q", cfg.Remote.Host)
	}
	if cfg.Local.Path != "/var/lib/voldesk/local.db" {
		t.Fatalf("env local path not applied: %q", cfg.Local.Path)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("env origins not applied: %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("env brokers must enable kafka: %+v", cfg.Kafka)
	}
}

func TestValidateRejectsBadCacheBackend(t *testing.T) {
	path := writeConfig(t, `
cache:
  backend: memcached
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for unknown cache backend")
	}
}

func TestValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	path := writeConfig(t, `
kafka:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for kafka without brokers")
	}
}
