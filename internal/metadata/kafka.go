package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/log"
)

const (
	defaultBatchTimeout = 100 * time.Millisecond
	defaultMaxAttempts  = 3
)

// kafkaReporter publishes records as JSON keyed by stream name. Writes are
// asynchronous so a slow broker never stalls a tick; failures are counted and
// logged from the completion callback.
type kafkaReporter struct {
	writer *kafka.Writer
	topic  string

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

func compressionCodec(name string) (compress.Codec, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	case "zstd":
		return compress.Zstd.Codec(), nil
	default:
		return nil, fmt.Errorf("invalid compression type: %s", name)
	}
}

func newKafka(cfg config.KafkaConfig) (*kafkaReporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka reporter requires brokers")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka reporter requires a topic")
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	r := &kafkaReporter{topic: cfg.Topic}
	logger := log.GetLogger().WithField("topic", cfg.Topic)
	r.writer = kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{}, // records of one stream stay ordered on one partition
		BatchTimeout:     cfg.BatchTimeout,
		MaxAttempts:      defaultMaxAttempts,
		CompressionCodec: codec,
		Async:            true,
	})
	r.writer.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			r.errorCount.Add(uint64(len(messages)))
			logger.WithError(err).Warnf("failed to publish %d metadata records", len(messages))
			return
		}
		r.reportedCount.Add(uint64(len(messages)))
	}

	logger.WithField("brokers", cfg.Brokers).Info("kafka metadata reporter created")
	return r, nil
}

func (r *kafkaReporter) Name() string { return "kafka" }

func (r *kafkaReporter) Report(ctx context.Context, rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("serialize record failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.Stream),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "session", Value: []byte(rec.Session)},
		},
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (r *kafkaReporter) Close() error {
	err := r.writer.Close()
	log.GetLogger().WithField("topic", r.topic).
		Infof("kafka metadata reporter closed, reported %d, errors %d",
			r.reportedCount.Load(), r.errorCount.Load())
	return err
}
