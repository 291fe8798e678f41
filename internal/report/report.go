// Package report hands the final aggregate and run tallies to the
// reporting layer as structured data: a JSON document per run on disk, a
// compacted latest record on Kafka, or both.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"salespipe/internal/pipeline"
)

// LatestKey is the compacted-record key for the most recent aggregate.
const LatestKey = "salespipe-report-latest"

// RunSummary points at the latest published run.
type RunSummary struct {
	RunID                string  `json:"runId"`
	TotalRevenue         float64 `json:"totalRevenue"`
	TransactionCount     int64   `json:"transactionCount"`
	CreatedAtEpochSecond int64   `json:"createdAt"`
}

type Publisher interface {
	Publish(runID string, res *pipeline.Result) error
}

// MultiPublisher writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) Publish(runID string, res *pipeline.Result) error {
	for _, p := range m.pubs {
		if err := p.Publish(runID, res); err != nil {
			return err
		}
	}
	return nil
}

// FilesystemPublisher writes one directory per run plus a latest pointer.
type FilesystemPublisher struct {
	baseDir string
}

func NewFilesystemPublisher(baseDir string) *FilesystemPublisher {
	return &FilesystemPublisher{baseDir: baseDir}
}

func (f *FilesystemPublisher) Publish(runID string, res *pipeline.Result) error {
	dir := filepath.Join(f.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	out, err := os.Create(filepath.Join(dir, "report.json"))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return f.writeLatest(runID, res)
}

func (f *FilesystemPublisher) writeLatest(runID string, res *pipeline.Result) error {
	s := RunSummary{
		RunID:                runID,
		TotalRevenue:         res.Aggregate.TotalRevenue,
		TransactionCount:     res.Aggregate.TransactionCount,
		CreatedAtEpochSecond: time.Now().UTC().Unix(),
	}
	out, err := os.Create(filepath.Join(f.baseDir, "report.latest.json"))
	if err != nil {
		return fmt.Errorf("create latest: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&s); err != nil {
		return fmt.Errorf("encode latest: %w", err)
	}
	return nil
}

// ReadLatest returns the pointer to the most recently published run.
func (f *FilesystemPublisher) ReadLatest() (RunSummary, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, "report.latest.json"))
	if err != nil {
		return RunSummary{}, fmt.Errorf("read latest: %w", err)
	}
	var s RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return RunSummary{}, fmt.Errorf("unmarshal latest: %w", err)
	}
	return s, nil
}

// KafkaPublisher publishes the full run result as a compacted record so
// downstream reporting always sees the latest aggregate.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaPublisher creates a Kafka report publisher.
// bootstrap can be comma-separated brokers.
func NewKafkaPublisher(bootstrap string, topic string) *KafkaPublisher {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, key: []byte(LatestKey)}
}

func (k *KafkaPublisher) Publish(runID string, res *pipeline.Result) error {
	doc := struct {
		RunID string `json:"runId"`
		*pipeline.Result
	}{RunID: runID, Result: res}
	b, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(context.Background(), kafka.Message{Key: k.key, Value: b})
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, key: []byte(LatestKey)}
}
