package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"

	"salespipe/internal/aggregate"
	"salespipe/internal/pipeline"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Aggregate: aggregate.Aggregate{
			TotalRevenue:      300,
			TransactionCount:  3,
			AverageOrderValue: 100,
		},
		Counts: pipeline.Counts{Read: 5, Admitted: 3},
	}
}

func TestFilesystemPublisher_PublishAndReadLatest(t *testing.T) {
	dir := t.TempDir()
	p := NewFilesystemPublisher(dir)

	if err := p.Publish("run-1", sampleResult()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run-1", "report.json"))
	if err != nil {
		t.Fatalf("report.json missing: %v", err)
	}
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("report.json unreadable: %v", err)
	}
	if res.Aggregate.TotalRevenue != 300 {
		t.Fatalf("revenue=%v want 300", res.Aggregate.TotalRevenue)
	}

	latest, err := p.ReadLatest()
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if latest.RunID != "run-1" || latest.TotalRevenue != 300 || latest.TransactionCount != 3 {
		t.Fatalf("latest=%+v", latest)
	}
	if latest.CreatedAtEpochSecond == 0 {
		t.Fatalf("latest missing timestamp")
	}
}

func TestFilesystemPublisher_LatestTracksNewestRun(t *testing.T) {
	dir := t.TempDir()
	p := NewFilesystemPublisher(dir)

	if err := p.Publish("run-1", sampleResult()); err != nil {
		t.Fatalf("publish run-1: %v", err)
	}
	second := sampleResult()
	second.Aggregate.TotalRevenue = 999
	if err := p.Publish("run-2", second); err != nil {
		t.Fatalf("publish run-2: %v", err)
	}

	latest, err := p.ReadLatest()
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if latest.RunID != "run-2" || latest.TotalRevenue != 999 {
		t.Fatalf("latest=%+v want run-2", latest)
	}
	// Both run directories remain.
	if _, err := os.Stat(filepath.Join(dir, "run-1", "report.json")); err != nil {
		t.Fatalf("run-1 report gone: %v", err)
	}
}

func TestFilesystemPublisher_ReadLatestMissing(t *testing.T) {
	p := NewFilesystemPublisher(t.TempDir())
	if _, err := p.ReadLatest(); err == nil {
		t.Fatalf("expected error with no published runs")
	}
}

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaPublisher_CompactedLatestKey(t *testing.T) {
	fake := &fakeKafkaWriter{}
	p := NewKafkaPublisherWith(fake)

	if err := p.Publish("run-7", sampleResult()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fake.msgs) != 1 {
		t.Fatalf("messages=%d want 1", len(fake.msgs))
	}
	if string(fake.msgs[0].Key) != LatestKey {
		t.Fatalf("key=%s want %s", fake.msgs[0].Key, LatestKey)
	}

	var doc struct {
		RunID     string              `json:"runId"`
		Aggregate aggregate.Aggregate `json:"aggregate"`
	}
	if err := json.Unmarshal(fake.msgs[0].Value, &doc); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if doc.RunID != "run-7" {
		t.Fatalf("runId=%s want run-7", doc.RunID)
	}
	if doc.Aggregate.TotalRevenue != 300 {
		t.Fatalf("embedded aggregate revenue=%v want 300", doc.Aggregate.TotalRevenue)
	}
}

func TestKafkaPublisher_PropagatesError(t *testing.T) {
	wantErr := errors.New("broker down")
	p := NewKafkaPublisherWith(&fakeKafkaWriter{err: wantErr})
	if err := p.Publish("run-1", sampleResult()); !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
}

func TestMultiPublisher_StopsOnError(t *testing.T) {
	wantErr := errors.New("broker down")
	second := &fakeKafkaWriter{}
	m := MultiPublisher(
		NewKafkaPublisherWith(&fakeKafkaWriter{err: wantErr}),
		NewKafkaPublisherWith(second),
	)
	if err := m.Publish("run-1", sampleResult()); !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
	if len(second.msgs) != 0 {
		t.Fatalf("second publisher reached after failure")
	}
}
