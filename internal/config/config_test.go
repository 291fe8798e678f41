package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
catalog:
  base_url: http://localhost:9090
  timeout: 2s
  max_attempts: 3
  backoff: 200ms
  max_backoff: 800ms
  max_inflight: 4
cache:
  backend: pebble
  dir: /tmp/salespipe-cache
validation:
  reject_zero_amount: true
filter:
  region: North
  min_amount: 50
  max_amount: 5000
kafka:
  bootstrap: localhost:9092
  group_id: salespipe
  topic_raw: sales.raw
  topic_enriched: sales.enriched
  topic_aggregates: sales.aggregates
sink:
  enriched_sink: both
  enriched_path: out/enriched.jsonl
  report_sink: file
  report_dir: out/reports
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Catalog.BaseURL != "http://localhost:9090" {
		t.Fatalf("base_url=%q", c.Catalog.BaseURL)
	}
	if c.Catalog.Timeout.Std() != 2*time.Second || c.Catalog.Backoff.Std() != 200*time.Millisecond {
		t.Fatalf("catalog durations: %+v", c.Catalog)
	}
	if c.Cache.Backend != "pebble" || c.Cache.Dir == "" {
		t.Fatalf("cache: %+v", c.Cache)
	}
	if !c.Validation.RejectZeroAmount {
		t.Fatalf("reject_zero_amount not set")
	}
	if c.Filter.Region != "North" || c.Filter.MinAmount == nil || *c.Filter.MinAmount != 50 {
		t.Fatalf("filter: %+v", c.Filter)
	}
	if c.Kafka.TopicEnriched != "sales.enriched" {
		t.Fatalf("kafka: %+v", c.Kafka)
	}
	if c.Sink.EnrichedSink != "both" {
		t.Fatalf("sink: %+v", c.Sink)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "catalog:\n  base_url: http://localhost:9090\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Filter.MinAmount != nil || c.Filter.MaxAmount != nil || c.Filter.Region != "" {
		t.Fatalf("filter should be unset: %+v", c.Filter)
	}
	if c.Validation.RejectZeroAmount {
		t.Fatalf("reject_zero_amount should default off")
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing base_url", "cache:\n  backend: memory\n"},
		{"pebble without dir", "catalog:\n  base_url: http://x\ncache:\n  backend: pebble\n"},
		{"inverted amount bounds", "catalog:\n  base_url: http://x\nfilter:\n  min_amount: 100\n  max_amount: 10\n"},
		{"bad duration", "catalog:\n  base_url: http://x\n  timeout: soon\n"},
		{"bad yaml", "catalog: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
