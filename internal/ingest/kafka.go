package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"salespipe/internal/model"
)

// KafkaSource consumes raw records (JSON values) from a topic with manual
// offset commit: offsets advance only after the batch has been processed
// and its outputs published.
type KafkaSource struct {
	c *ck.Consumer
}

func NewKafkaSource(bootstrap string, groupID string, topic string) (*KafkaSource, error) {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"group.id":           groupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("consumer: %w", err)
	}
	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &KafkaSource{c: c}, nil
}

// ReadBatch drains up to max records, stopping early once the topic goes
// idle for the given duration. Undecodable values are skipped and counted.
func (s *KafkaSource) ReadBatch(max int, idle time.Duration) ([]model.RawRecord, int, error) {
	var out []model.RawRecord
	skipped := 0
	for len(out) < max {
		msg, err := s.c.ReadMessage(idle)
		if err != nil {
			if kerr, ok := err.(ck.Error); ok && kerr.Code() == ck.ErrTimedOut {
				break
			}
			return out, skipped, fmt.Errorf("read: %w", err)
		}
		var raw model.RawRecord
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			skipped++
			continue
		}
		out = append(out, raw)
	}
	return out, skipped, nil
}

// Commit records the consumed offsets after a successful run.
func (s *KafkaSource) Commit() error {
	if _, err := s.c.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *KafkaSource) Close() error { return s.c.Close() }
