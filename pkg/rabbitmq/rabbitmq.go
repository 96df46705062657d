package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	logger   *zap.Logger
	mu       sync.Mutex // amqp channels are not safe for concurrent publishing
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL      string
	Exchange string
	Queue    string
}

// BindingKeys are the routing patterns bound to the event queue.
var BindingKeys = []string{"order.#", "shipment.#"}

// NewClient connects to RabbitMQ, declares a durable topic exchange and a
// durable queue bound to every order and shipment event.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ client connected",
		zap.String("exchange", cfg.Exchange), zap.String("queue", cfg.Queue))

	return &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		logger:   logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	for _, key := range BindingKeys {
		if err := ch.QueueBind(cfg.Queue, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", cfg.Queue, key, err)
		}
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// Publish sends body to the exchange using eventType as routing key.
func (c *Client) Publish(ctx context.Context, eventType, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.channel.Publish(
		c.exchange, // exchange
		eventType,  // routing key
		false,      // mandatory
		false,      // immediate
		newPublishing(key, body, time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("event sent", zap.String("type", eventType), zap.String("key", key))
	return nil
}

func newPublishing(key string, body []byte, at time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     at,
		CorrelationId: key,
		Body:          body,
	}
}

// ConsumeOrderEvents starts a goroutine delivering queued events to
// handler. Messages are acked on success and requeued once on failure;
// a message that fails after redelivery is dropped.
func (c *Client) ConsumeOrderEvents(handler func(msg amqp.Delivery) error) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available for consumption")
	}

	msgs, err := c.channel.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			settle(c.logger, msg, handler(msg))
		}
	}()
	return nil
}

// LogHandler returns a consumer handler that records every delivered event.
func LogHandler(logger *zap.Logger) func(msg amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		logger.Info("event received",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("key", msg.CorrelationId),
			zap.Int("bytes", len(msg.Body)))
		return nil
	}
}

// acknowledger is the subset of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(logger *zap.Logger, msg amqp.Delivery, handlerErr error) {
	settleWith(logger, msg, msg.DeliveryTag, msg.Redelivered, handlerErr)
}

func settleWith(logger *zap.Logger, ack acknowledger, tag uint64, redelivered bool, handlerErr error) {
	if handlerErr == nil {
		if err := ack.Ack(false); err != nil {
			logger.Warn("ack failed", zap.Uint64("tag", tag), zap.Error(err))
		}
		return
	}
	logger.Error("event handler failed", zap.Uint64("tag", tag), zap.Bool("redelivered", redelivered), zap.Error(handlerErr))
	if err := ack.Nack(false, !redelivered); err != nil {
		logger.Warn("nack failed", zap.Uint64("tag", tag), zap.Error(err))
	}
}
