// Package kafka publishes job payloads to Kafka topics with franz-go.
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"

	"github.com/fairyhunter13/chronoq/internal/config"
	"github.com/fairyhunter13/chronoq/internal/domain"
)

// Executor publishes payloads through one process-wide idempotent producer.
// The publish is synchronous: Execute returns after the brokers acknowledge
// the record or the delivery timeout expires.
type Executor struct {
	client       *kgo.Client
	defaultTopic string
	metrics      domain.MetricsSink
}

// New constructs the executor and its producer from configuration. The
// configured default topic is created if absent; a failure there is logged
// and tolerated since the broker may auto-create or the topic may appear
// later.
func New(cfg config.Config, metrics domain.MetricsSink) (*Executor, error) {
	slog.Info("creating kafka producer",
		slog.Any("brokers", cfg.KafkaBootstrapServers),
		slog.String("default_topic", cfg.KafkaDefaultTopic))

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.KafkaBootstrapServers...),
		// acks=all with idempotence; franz-go enables idempotent writes by
		// default and AllISRAcks is what they require.
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.KafkaProducerRetries),
		kgo.RecordDeliveryTimeout(cfg.KafkaProducerTimeout()),
		kgo.ProducerBatchMaxBytes(int32(cfg.KafkaBatchSize)),
		kgo.ProducerBatchCompression(compressionCodec(cfg.KafkaCompressionType)),
		kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(kotel.NewTracer())).Hooks()...),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.New: %w: %w", domain.ErrKafka, err)
	}
	return &Executor{client: client, defaultTopic: cfg.KafkaDefaultTopic, metrics: metrics}, nil
}

var _ domain.Executor = (*Executor)(nil)

// Execute publishes payload as a JSON value to target, or to the default
// topic when target is empty. Broker errors and delivery timeouts are
// retryable.
func (e *Executor) Execute(ctx domain.Context, target string, payload json.RawMessage) error {
	topic := strings.TrimSpace(target)
	if topic == "" {
		topic = e.defaultTopic
	}
	value := payload
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	record := &kgo.Record{Topic: topic, Value: value}
	if err := e.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=kafka.Execute topic=%s: %w: %w", topic, domain.ErrKafka, err)
	}
	if e.metrics != nil {
		e.metrics.KafkaMessage()
	}
	return nil
}

// EnsureDefaultTopic creates the configured default topic if it does not
// exist yet. Meant for startup; callers log and continue on error.
func (e *Executor) EnsureDefaultTopic(ctx domain.Context) error {
	return createTopicIfNotExists(ctx, e.client, e.defaultTopic, 1, 1)
}

// Close flushes buffered records and releases the producer.
func (e *Executor) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

func compressionCodec(name string) kgo.CompressionCodec {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gzip":
		return kgo.GzipCompression()
	case "lz4":
		return kgo.Lz4Compression()
	case "zstd":
		return kgo.ZstdCompression()
	case "none":
		return kgo.NoCompression()
	default:
		return kgo.SnappyCompression()
	}
}
