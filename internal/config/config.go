// Package config loads the pipeline configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts yaml values like "200ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type CatalogConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Timeout     Duration `yaml:"timeout"`      // per-request
	MaxAttempts int      `yaml:"max_attempts"` // per product, default 3
	Backoff     Duration `yaml:"backoff"`      // initial, default 200ms
	MaxBackoff  Duration `yaml:"max_backoff"`  // cap, default 800ms
	MaxInflight int      `yaml:"max_inflight"` // concurrent lookups
}

type CacheConfig struct {
	Backend string `yaml:"backend"` // memory|pebble
	Dir     string `yaml:"dir"`     // pebble data directory
}

type ValidationConfig struct {
	RejectZeroAmount bool `yaml:"reject_zero_amount"`
}

// FilterConfig narrows the admitted set before enrichment. Nil bounds and
// an empty region leave the batch untouched.
type FilterConfig struct {
	Region    string   `yaml:"region"`
	MinAmount *float64 `yaml:"min_amount"`
	MaxAmount *float64 `yaml:"max_amount"`
}

type KafkaConfig struct {
	Bootstrap       string `yaml:"bootstrap"`
	GroupID         string `yaml:"group_id"`
	TopicRaw        string `yaml:"topic_raw"`
	TopicEnriched   string `yaml:"topic_enriched"`
	TopicAggregates string `yaml:"topic_aggregates"`
}

type SinkConfig struct {
	EnrichedSink string `yaml:"enriched_sink"` // off|file|kafka|both
	EnrichedPath string `yaml:"enriched_path"` // jsonl dump path
	ReportSink   string `yaml:"report_sink"`   // file|kafka|both
	ReportDir    string `yaml:"report_dir"`
}

type Config struct {
	Catalog    CatalogConfig    `yaml:"catalog"`
	Cache      CacheConfig      `yaml:"cache"`
	Validation ValidationConfig `yaml:"validation"`
	Filter     FilterConfig     `yaml:"filter"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Sink       SinkConfig       `yaml:"sink"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}
	if c.Catalog.BaseURL == "" {
		return c, errors.New("catalog.base_url is required")
	}
	if c.Cache.Backend == "pebble" && c.Cache.Dir == "" {
		return c, errors.New("cache.dir is required for the pebble backend")
	}
	if c.Filter.MinAmount != nil && c.Filter.MaxAmount != nil && *c.Filter.MinAmount > *c.Filter.MaxAmount {
		return c, fmt.Errorf("filter: min_amount %v exceeds max_amount %v", *c.Filter.MinAmount, *c.Filter.MaxAmount)
	}
	return c, nil
}
