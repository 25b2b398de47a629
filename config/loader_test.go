package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stream.yml", `
url: https://example.com/stream
method: post
name: orders
last_event_id: "17"
reconnect_time: 2s
max_reconnect_time: 1m
backoff_reset_threshold: 90s
read_buffer_size: 4096
stream_event_data: true
expect_fields:
  - event
max_event_tasks_in_flight: 8
`)

	cfg, err := Load(LoaderConfig{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "https://example.com/stream" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Method != "post" {
		t.Errorf("Method = %q (normalization happens in ApplyDefaults)", cfg.Method)
	}
	if cfg.Name != "orders" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.LastEventID != "17" {
		t.Errorf("LastEventID = %q", cfg.LastEventID)
	}
	if cfg.ReconnectTime != 2*time.Second {
		t.Errorf("ReconnectTime = %v", cfg.ReconnectTime)
	}
	if cfg.MaxReconnectTime != time.Minute {
		t.Errorf("MaxReconnectTime = %v", cfg.MaxReconnectTime)
	}
	if cfg.BackoffResetThreshold != 90*time.Second {
		t.Errorf("BackoffResetThreshold = %v", cfg.BackoffResetThreshold)
	}
	if cfg.ReadBufferSize != 4096 {
		t.Errorf("ReadBufferSize = %d", cfg.ReadBufferSize)
	}
	if !cfg.StreamEventData {
		t.Error("StreamEventData = false")
	}
	if len(cfg.ExpectFields) != 1 || cfg.ExpectFields[0] != "event" {
		t.Errorf("ExpectFields = %v", cfg.ExpectFields)
	}
	if cfg.MaxEventTasksInFlight != 8 {
		t.Errorf("MaxEventTasksInFlight = %d", cfg.MaxEventTasksInFlight)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stream.yml", "url: https://file.example.com/stream\n")

	t.Setenv("EVENTSOURCE_URL", "https://env.example.com/stream")
	cfg, err := Load(LoaderConfig{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "https://env.example.com/stream" {
		t.Errorf("URL = %q, env override not applied", cfg.URL)
	}
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("ORDERS_URL", "https://orders.example.com/stream")
	cfg, err := Load(LoaderConfig{EnvPrefix: "ORDERS"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "https://orders.example.com/stream" {
		t.Errorf("URL = %q", cfg.URL)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("EVENTSOURCE_URL", "https://env.example.com/stream")
	t.Setenv("EVENTSOURCE_READ_BUFFER_SIZE", "2048")
	cfg, err := Load(LoaderConfig{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "https://env.example.com/stream" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.ReadBufferSize != 2048 {
		t.Errorf("ReadBufferSize = %d", cfg.ReadBufferSize)
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, "stream.env", "EVENTSOURCE_URL=https://dotenv.example.com/stream\n")

	cfg, err := Load(LoaderConfig{EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "https://dotenv.example.com/stream" {
		t.Errorf("URL = %q", cfg.URL)
	}
	os.Unsetenv("EVENTSOURCE_URL")
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(LoaderConfig{ConfigFile: "/does/not/exist.yml"}); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}
