package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
engine:
  assets: [KAITO]
  reference_assets: [SOL, ETH]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.Detectors.Volume.Window != 24 || c.Detectors.Volume.Significant != 3 || c.Detectors.Volume.Moderate != 2 {
		t.Errorf("volume defaults = %+v", c.Detectors.Volume)
	}
	if c.Aggregator.DefaultCooldown != time.Hour {
		t.Errorf("default cooldown = %v, want 1h", c.Aggregator.DefaultCooldown)
	}
	if c.Guard.Threshold != 0.85 || c.Guard.Timeframe != 24*time.Hour || c.Guard.Similarity != "token_jaccard" {
		t.Errorf("guard defaults = %+v", c.Guard)
	}
	if c.Detectors.Correlation.CorrelationFloor != 0.3 || c.Detectors.Correlation.MinOverlap != 10 {
		t.Errorf("correlation defaults = %+v", c.Detectors.Correlation)
	}
	if !c.Detectors.Divergence.Stealth || c.Detectors.Divergence.ClusterMultiple != 1.3 {
		t.Errorf("divergence defaults = %+v", c.Detectors.Divergence)
	}
	if c.Storage.Backend != "memory" || c.Engine.CycleInterval != time.Minute {
		t.Errorf("storage/engine defaults = %s %v", c.Storage.Backend, c.Engine.CycleInterval)
	}
	if c.Server.IngestRate != 20 || !c.Aggregator.PersistCooldowns || c.Stream.ReconnectDelay != 5*time.Second {
		t.Errorf("server/aggregator/stream defaults = %v %v %v", c.Server.IngestRate, c.Aggregator.PersistCooldowns, c.Stream.ReconnectDelay)
	}
	if !c.Content.Queue.Enabled || c.Content.Queue.Backend != "memory" || c.Content.Queue.Workers != 2 {
		t.Errorf("queue defaults = %+v", c.Content.Queue)
	}
	if len(c.Kafka.Brokers) != 1 || c.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("brokers = %v", c.Kafka.Brokers)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal + `
aggregator:
  default_cooldown: 30m
  cooldowns:
    volume_clustering: 2h
guard:
  similarity: shingle_jaccard
  threshold: 0.9
detectors:
  divergence:
    stealth: false
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Aggregator.DefaultCooldown != 30*time.Minute {
		t.Errorf("default cooldown = %v", c.Aggregator.DefaultCooldown)
	}
	if c.Aggregator.Cooldowns["volume_clustering"] != 2*time.Hour {
		t.Errorf("override = %v", c.Aggregator.Cooldowns)
	}
	if c.Guard.Similarity != "shingle_jaccard" || c.Guard.Threshold != 0.9 {
		t.Errorf("guard = %+v", c.Guard)
	}
	if c.Detectors.Divergence.Stealth {
		t.Error("stealth should be disabled")
	}
	if !c.Detectors.Divergence.UnusualHour {
		t.Error("unusual hour should keep its default")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no assets", `environment: test`, "Assets"},
		{"moderate above significant", minimal + `
detectors:
  volume: {moderate: 3, significant: 2}
`, "moderate"},
		{"zero threshold", minimal + `
guard: {threshold: 0}
`, "Threshold"},
		{"unknown cooldown kind", minimal + `
aggregator:
  cooldowns: {price_spike: 1h}
`, "price_spike"},
		{"bad backend", minimal + `
storage: {backend: postgres}
`, "Backend"},
		{"duplicate asset", `
engine:
  assets: [KAITO]
  reference_assets: [KAITO]
`, "more than once"},
		{"min overlap above window", minimal + `
detectors:
  correlation: {window: 8, min_overlap: 10}
`, "min_overlap"},
		{"content without url", minimal + `
content: {enabled: true}
`, "service_url"},
		{"stream without url", minimal + `
stream: {enabled: true}
`, "stream.url"},
		{"redis queue without redis", minimal + `
content:
  queue: {backend: redis}
`, "requires redis.enabled"},
		{"zero ingest rate", minimal + `
server: {ingest_rate: 0}
`, "IngestRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadWithEnvOverridesBeforeValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("environment: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASSETS", "KAITO, ")
	t.Setenv("REFERENCE_ASSETS", "SOL,ETH,AVAX")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if len(c.Engine.Assets) != 1 || c.Engine.Assets[0] != "KAITO" {
		t.Errorf("assets = %v", c.Engine.Assets)
	}
	if len(c.Engine.ReferenceAssets) != 3 {
		t.Errorf("reference assets = %v", c.Engine.ReferenceAssets)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level = %s", c.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
