package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"salespipe/internal/config"
	"salespipe/internal/enrich"
	"salespipe/internal/ingest"
	"salespipe/internal/logger"
	"salespipe/internal/metrics"
	"salespipe/internal/model"
	"salespipe/internal/pipeline"
	"salespipe/internal/report"
	"salespipe/internal/sink"
	"salespipe/internal/validate"
)

// Flags holds CLI flags for the pipeline binary.
type Flags struct {
	ConfigPath string
	Source     string // file|kafka
	Input      string
	Format     string // pipe|jsonl
	RunID      string
	HTTPAddr   string
	LogMode    string
	Interval   time.Duration
	MaxBatch   int
	KafkaIdle  time.Duration
}

func main() {
	fl := readFlags()
	log, err := logger.New(fl.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if err := run(fl, log); err != nil {
		log.Fatal("pipeline failed", "err", err)
	}
}

func readFlags() Flags {
	var fl Flags
	flag.StringVar(&fl.ConfigPath, "config", "config.yml", "path to YAML config")
	flag.StringVar(&fl.Source, "source", "file", "raw record source: file|kafka")
	flag.StringVar(&fl.Input, "input", "sales_data.txt", "input file for -source=file")
	flag.StringVar(&fl.Format, "format", "pipe", "input file format: pipe|jsonl")
	flag.StringVar(&fl.RunID, "run-id", "", "run identifier (default: UTC timestamp)")
	flag.StringVar(&fl.HTTPAddr, "http", ":8080", "http listen for /metrics and /healthz")
	flag.StringVar(&fl.LogMode, "log-mode", "dev", "logger mode: dev|prod")
	flag.DurationVar(&fl.Interval, "interval", 0, "rerun interval; 0 runs a single batch")
	flag.IntVar(&fl.MaxBatch, "max-batch", 10000, "max records per kafka batch")
	flag.DurationVar(&fl.KafkaIdle, "kafka-idle", 5*time.Second, "kafka batch idle cutoff")
	flag.Parse()
	return fl
}

func run(fl Flags, log *logger.Logger) error {
	cfg, err := config.Load(fl.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mreg := metrics.NewRegistry()
	for _, r := range validate.Reasons {
		mreg.Rejected.WithLabelValues(string(r))
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mreg.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		})
		_ = http.ListenAndServe(fl.HTTPAddr, mux)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache enrich.Cache
	if cfg.Cache.Backend == "pebble" {
		pc, err := enrich.NewPebbleCache(cfg.Cache.Dir)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		defer pc.Close()
		cache = pc
	} else {
		cache = enrich.NewMemoryCache()
	}

	client := enrich.NewClient(enrich.Config{
		BaseURL:        cfg.Catalog.BaseURL,
		Timeout:        cfg.Catalog.Timeout.Std(),
		MaxAttempts:    cfg.Catalog.MaxAttempts,
		InitialBackoff: cfg.Catalog.Backoff.Std(),
		MaxBackoff:     cfg.Catalog.MaxBackoff.Std(),
		MaxInflight:    cfg.Catalog.MaxInflight,
	}, cache, log, mreg)

	rules := validate.Rules{RejectZeroAmount: cfg.Validation.RejectZeroAmount}
	pipe := pipeline.New(rules, cfg.Filter, client, log, mreg)

	var source *ingest.KafkaSource
	if fl.Source == "kafka" {
		if cfg.Kafka.Bootstrap == "" {
			return fmt.Errorf("kafka source requires kafka.bootstrap in config")
		}
		src, err := ingest.NewKafkaSource(cfg.Kafka.Bootstrap, cfg.Kafka.GroupID, cfg.Kafka.TopicRaw)
		if err != nil {
			return fmt.Errorf("init kafka source: %w", err)
		}
		defer src.Close()
		source = src
	}

	publisher, enrichedSink, err := buildSinks(cfg)
	if err != nil {
		return err
	}

	for {
		raws, skipped, err := readBatch(fl, source)
		if err != nil {
			return err
		}
		if skipped > 0 {
			log.Warn("undecodable input rows skipped", "count", skipped)
		}

		runID := batchRunID(fl.RunID, fl.Interval > 0, time.Now())
		res := pipe.Run(ctx, raws)

		if enrichedSink != nil {
			for _, rec := range res.Records {
				if err := enrichedSink.Append(rec); err != nil {
					return fmt.Errorf("append enriched record: %w", err)
				}
			}
		}
		if publisher != nil {
			if err := publisher.Publish(runID, res); err != nil {
				return fmt.Errorf("publish report: %w", err)
			}
			log.Info("report published", "runId", runID)
		}
		if source != nil {
			if err := source.Commit(); err != nil {
				return fmt.Errorf("commit offsets: %w", err)
			}
		}

		if fl.Interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(fl.Interval):
		}
	}
}

// batchRunID names one batch. In loop mode an explicit base still gets a
// per-iteration timestamp suffix so successive reports never overwrite
// each other.
func batchRunID(base string, loop bool, now time.Time) string {
	ts := now.UTC().Format("20060102T150405Z")
	switch {
	case base == "":
		return ts
	case loop:
		return base + "-" + ts
	default:
		return base
	}
}

func readBatch(fl Flags, source *ingest.KafkaSource) ([]model.RawRecord, int, error) {
	if source != nil {
		raws, skipped, err := source.ReadBatch(fl.MaxBatch, fl.KafkaIdle)
		if err != nil {
			return nil, skipped, fmt.Errorf("read kafka batch: %w", err)
		}
		return raws, skipped, nil
	}
	switch fl.Format {
	case "jsonl":
		raws, err := ingest.ReadJSONLFile(fl.Input)
		return raws, 0, err
	default:
		return ingest.ReadPipeFile(fl.Input)
	}
}

func buildSinks(cfg config.Config) (report.Publisher, sink.Writer, error) {
	var pubs []report.Publisher
	switch cfg.Sink.ReportSink {
	case "kafka":
		pubs = append(pubs, report.NewKafkaPublisher(cfg.Kafka.Bootstrap, cfg.Kafka.TopicAggregates))
	case "both":
		pubs = append(pubs, report.NewFilesystemPublisher(cfg.Sink.ReportDir))
		pubs = append(pubs, report.NewKafkaPublisher(cfg.Kafka.Bootstrap, cfg.Kafka.TopicAggregates))
	default:
		dir := cfg.Sink.ReportDir
		if dir == "" {
			dir = "./reports"
		}
		pubs = append(pubs, report.NewFilesystemPublisher(dir))
	}
	var publisher report.Publisher
	if len(pubs) == 1 {
		publisher = pubs[0]
	} else {
		publisher = report.MultiPublisher(pubs...)
	}

	var writers []sink.Writer
	switch cfg.Sink.EnrichedSink {
	case "off", "":
	case "kafka":
		writers = append(writers, sink.NewKafkaWriter(cfg.Kafka.Bootstrap, cfg.Kafka.TopicEnriched))
	case "both":
		fw, err := newEnrichedFileWriter(cfg)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw, sink.NewKafkaWriter(cfg.Kafka.Bootstrap, cfg.Kafka.TopicEnriched))
	default: // file
		fw, err := newEnrichedFileWriter(cfg)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
	}
	var enrichedSink sink.Writer
	switch len(writers) {
	case 0:
	case 1:
		enrichedSink = writers[0]
	default:
		enrichedSink = sink.NewMultiWriter(writers...)
	}
	return publisher, enrichedSink, nil
}

func newEnrichedFileWriter(cfg config.Config) (*sink.FileWriter, error) {
	path := cfg.Sink.EnrichedPath
	if path == "" {
		path = "./data/enriched_sales_data.jsonl"
	}
	fw, err := sink.NewFileWriter(filepath.Dir(path), filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("init enriched sink: %w", err)
	}
	return fw, nil
}
