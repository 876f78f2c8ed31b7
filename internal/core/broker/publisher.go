package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PublisherConfig describes the exchange events are published to.
type PublisherConfig struct {
	URL          string
	ExchangeName string
	ExchangeType string
	Durable      bool
}

// Publisher sends JSON events to a RabbitMQ exchange.
type Publisher struct {
	cfg    PublisherConfig
	log    *slog.Logger
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewPublisher(cfg PublisherConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("publisher: RabbitMQ URL is required")
	}
	if cfg.ExchangeName == "" {
		return nil, fmt.Errorf("publisher: exchange name is required")
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeDirect
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("publisher: dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.ExchangeName, cfg.ExchangeType, cfg.Durable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: declare exchange %q: %w", cfg.ExchangeName, err)
	}

	logger = logger.With("component", "amqp-publisher", "exchange", cfg.ExchangeName)
	logger.Info("connected")
	return &Publisher{cfg: cfg, log: logger, conn: conn, ch: ch}, nil
}

// PublishJSON marshals v and publishes it as a persistent message.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("publisher: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ch == nil || p.conn.IsClosed() {
		return fmt.Errorf("publisher: connection is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, p.cfg.ExchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publisher: publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if err := p.ch.Close(); err != nil {
		firstErr = err
	}
	if err := p.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	p.log.Info("closed")
	return firstErr
}
