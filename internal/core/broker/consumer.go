package broker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery body. Returning an error nacks the message;
// requeue controls whether the broker redelivers it.
type Handler func(ctx context.Context, body []byte) (requeue bool, err error)

// ConsumerConfig binds a durable queue to an exchange.
type ConsumerConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	ExchangeType string
	RoutingKey   string
	Prefetch     int
}

// Consumer delivers queued messages to a Handler one at a time, so handlers
// observe messages in queue order.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler
	log     *slog.Logger
	conn    *amqp.Connection
	ch      *amqp.Channel
}

func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.URL == "" || cfg.QueueName == "" {
		return nil, fmt.Errorf("consumer: URL and queue name are required")
	}
	if handler == nil {
		return nil, fmt.Errorf("consumer: message handler is required")
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeDirect
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("consumer: dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("consumer: open channel: %w", err)
	}
	fail := func(err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("consumer: set QoS: %w", err))
	}
	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("consumer: declare queue %q: %w", cfg.QueueName, err))
	}
	if cfg.ExchangeName != "" {
		if err := ch.ExchangeDeclare(cfg.ExchangeName, cfg.ExchangeType, true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("consumer: declare exchange %q: %w", cfg.ExchangeName, err))
		}
		if err := ch.QueueBind(cfg.QueueName, cfg.RoutingKey, cfg.ExchangeName, false, nil); err != nil {
			return fail(fmt.Errorf("consumer: bind queue %q: %w", cfg.QueueName, err))
		}
	}

	logger = logger.With("component", "amqp-consumer", "queue", cfg.QueueName)
	return &Consumer{cfg: cfg, handler: handler, log: logger, conn: conn, ch: ch}, nil
}

// Run consumes until ctx is cancelled or the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(c.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consumer: register on %q: %w", c.cfg.QueueName, err)
	}
	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.Info("waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return nil
			}
			return fmt.Errorf("consumer: connection closed: %w", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	requeue, err := c.handler(ctx, d.Body)
	if err != nil {
		c.log.Warn("handler failed", "delivery_tag", d.DeliveryTag, "requeue", requeue, "err", err)
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			c.log.Error("nack failed", "delivery_tag", d.DeliveryTag, "err", nackErr)
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Error("ack failed", "delivery_tag", d.DeliveryTag, "err", ackErr)
	}
}

func (c *Consumer) Close() error {
	var firstErr error
	if err := c.ch.Close(); err != nil {
		firstErr = err
	}
	if err := c.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.log.Info("closed")
	return firstErr
}
