// Package kafka publishes domain events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Config holds producer settings.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Producer sends events synchronously to a single topic.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewProducer connects an idempotent synchronous producer.
func NewProducer(cfg Config, logger *zap.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newProducer(producer, cfg.Topic, logger), nil
}

func newProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "kafka-producer")),
	}
}

// Publish sends body keyed by key so events of one aggregate keep their order.
func (p *Producer) Publish(ctx context.Context, eventType, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(body),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("failed to send message to kafka",
			zap.String("topic", p.topic), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Debug("message sent to kafka",
		zap.String("topic", p.topic),
		zap.String("type", eventType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
