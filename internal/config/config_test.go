package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	t.Setenv("POOL_PASSWORD", "s3cret")

	path := writeFile(t, "config.yaml", `
flipr:
  username: pool@example.com
  password: ${POOL_PASSWORD}
  name_overrides:
    - match: "F*"
      name: "Pool {serial}"
bridge:
  runtime: none
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Flipr.Password != "s3cret" {
		t.Fatalf("expected expanded password, got %q", cfg.Flipr.Password)
	}
	if cfg.Flipr.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected base url: %s", cfg.Flipr.BaseURL)
	}
	interval, err := cfg.Flipr.Interval()
	if err != nil || interval != time.Minute {
		t.Fatalf("unexpected interval %v (%v)", interval, err)
	}
	if cfg.Core.HTTPAddr != "0.0.0.0:8080" || cfg.Core.GRPCAddr != "0.0.0.0:9000" {
		t.Fatalf("unexpected core defaults: %+v", cfg.Core)
	}
	if cfg.Bridge.Cache.Kind != CacheFile || cfg.Bridge.Cache.Dir == "" {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Bridge.Cache)
	}
	if cfg.Bridge.MQTT.TopicPrefix != "flipr" {
		t.Fatalf("unexpected topic prefix: %s", cfg.Bridge.MQTT.TopicPrefix)
	}
	if len(cfg.Flipr.NameOverrides) != 1 || cfg.Flipr.NameOverrides[0].Name != "Pool {serial}" {
		t.Fatalf("unexpected overrides: %+v", cfg.Flipr.NameOverrides)
	}
}

func TestLoadTOML(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	path := writeFile(t, "config.toml", `
[flipr]
username = "pool@example.com"
password = "pw"
poll_interval = "2m"

[bridge]
runtime = "mqtt"

[bridge.mqtt]
broker = "tcp://localhost:1883"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	interval, _ := cfg.Flipr.Interval()
	if interval != 2*time.Minute {
		t.Fatalf("unexpected interval: %v", interval)
	}
	if cfg.Bridge.Runtime != RuntimeMQTT || cfg.Bridge.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("unexpected bridge config: %+v", cfg.Bridge)
	}
}

func TestCredentialsFromEnvAndFile(t *testing.T) {
	t.Setenv(EnvUsername, "env-user")
	t.Setenv(EnvPassword, "")

	secret := writeFile(t, "password", "from-file\n")
	cfg, err := Parse([]byte("flipr:\n  password_file: "+secret+"\nbridge:\n  runtime: none\n"), "yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Flipr.Username != "env-user" {
		t.Fatalf("expected env username, got %q", cfg.Flipr.Username)
	}
	if cfg.Flipr.Password != "from-file" {
		t.Fatalf("expected trimmed file password, got %q", cfg.Flipr.Password)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	cases := map[string]string{
		"missing username": "flipr:\n  password: pw\n",
		"bad interval":     "flipr:\n  username: u\n  password: pw\n  poll_interval: soon\n",
		"bad runtime":      "flipr:\n  username: u\n  password: pw\nbridge:\n  runtime: zigbee\n",
		"mqtt no broker":   "flipr:\n  username: u\n  password: pw\nbridge:\n  runtime: mqtt\n",
		"s3 no bucket":     "flipr:\n  username: u\n  password: pw\nbridge:\n  runtime: none\n  cache:\n    kind: s3\n    endpoint: https://s3.local\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc), "yaml"); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateMentionsEnvFallback(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	_, err := Parse([]byte("bridge:\n  runtime: none\n"), "yaml")
	if err == nil || !strings.Contains(err.Error(), EnvUsername) {
		t.Fatalf("expected username error mentioning %s, got %v", EnvUsername, err)
	}
}
