// Package stream publishes extracted records to Kafka while a sweep runs
package stream

import (
	"context"
	"crypto/tls"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	jsonpool "github.com/ajitpratap0/sweepline/pkg/json"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// Config configures the Kafka producer
type Config struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Brokers     []string      `yaml:"brokers,omitempty" mapstructure:"brokers"`
	Topic       string        `yaml:"topic" mapstructure:"topic"`
	ClientID    string        `yaml:"client_id" mapstructure:"client_id"`
	Acks        string        `yaml:"acks" mapstructure:"acks"`               // all, 1 or 0
	Compression string        `yaml:"compression" mapstructure:"compression"` // none, gzip, snappy, lz4, zstd
	Retries     int           `yaml:"retries" mapstructure:"retries"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	TLS         bool          `yaml:"tls" mapstructure:"tls"`
}

// DefaultConfig returns a disabled producer config
func DefaultConfig() Config {
	return Config{
		Topic:       "sweepline.records",
		ClientID:    "sweepline",
		Acks:        "all",
		Compression: "none",
		Retries:     3,
		Timeout:     10 * time.Second,
	}
}

// Validate checks an enabled config
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return errors.New(errors.ErrorTypeConfig, "stream.brokers is required when streaming is enabled")
	}
	if c.Topic == "" {
		return errors.New(errors.ErrorTypeConfig, "stream.topic is required when streaming is enabled")
	}
	if _, err := compression(c.Compression); err != nil {
		return err
	}
	return nil
}

// SaramaConfig builds the producer configuration
func (c Config) SaramaConfig() (*sarama.Config, error) {
	config := sarama.NewConfig()
	if c.ClientID != "" {
		config.ClientID = c.ClientID
	}

	switch c.Acks {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	config.Producer.Retry.Max = c.Retries
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	if c.Timeout > 0 {
		config.Producer.Timeout = c.Timeout
		config.Net.DialTimeout = c.Timeout
	}

	codec, err := compression(c.Compression)
	if err != nil {
		return nil, err
	}
	config.Producer.Compression = codec
	if codec == sarama.CompressionZSTD {
		// brokers before 2.1 reject zstd batches
		config.Version = sarama.V2_1_0_0
	}

	if c.TLS {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return config, nil
}

func compression(name string) (sarama.CompressionCodec, error) {
	switch name {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, errors.New(errors.ErrorTypeConfig, "unknown stream compression").
			WithDetail("compression", name)
	}
}

// Message is the payload sent for every record
type Message struct {
	SweepID    string          `json:"sweep_id"`
	Experiment string          `json:"experiment"`
	Point      string          `json:"point"`
	Trial      int             `json:"trial"`
	Record     jsonpool.Record `json:"record"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Sink sends one Kafka message per record. Messages are keyed by object so
// a consumer sees each object's records in sweep order.
type Sink struct {
	producer   sarama.SyncProducer
	topic      string
	sweepID    string
	experiment string
	logger     *zap.Logger
	sent       int
	now        func() time.Time
}

// NewSink connects a synchronous producer to the configured brokers
func NewSink(config Config, sweepID, experiment string, logger *zap.Logger) (*Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	sc, err := config.SaramaConfig()
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(config.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to kafka").
			WithDetail("brokers", config.Brokers)
	}
	return NewSinkWithProducer(producer, config.Topic, sweepID, experiment, logger), nil
}

// NewSinkWithProducer wraps an existing producer
func NewSinkWithProducer(producer sarama.SyncProducer, topic, sweepID, experiment string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		producer:   producer,
		topic:      topic,
		sweepID:    sweepID,
		experiment: experiment,
		logger:     logger.With(zap.String("component", "stream"), zap.String("topic", topic)),
		now:        time.Now,
	}
}

// Emit publishes rec for point p
func (s *Sink) Emit(ctx context.Context, p sweep.Point, rec *models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := jsonpool.Marshal(Message{
		SweepID:    s.sweepID,
		Experiment: s.experiment,
		Point:      p.String(),
		Trial:      p.Trial,
		Record:     jsonpool.Record{Record: rec},
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode stream message")
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(p.Object),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("sweep-id"), Value: []byte(s.sweepID)},
			{Key: []byte("experiment"), Value: []byte(s.experiment)},
			{Key: []byte("trial"), Value: []byte(strconv.Itoa(p.Trial))},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish record").
			WithDetail("topic", s.topic).
			WithDetail("point", p.String())
	}
	s.sent++
	s.logger.Debug("record published",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Stringer("point", p))
	return nil
}

// Sent returns the number of messages delivered
func (s *Sink) Sent() int {
	return s.sent
}

// Close closes the producer
func (s *Sink) Close() error {
	if err := s.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close kafka producer")
	}
	return nil
}
