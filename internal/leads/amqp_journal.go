package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/Rentora/internal/core/broker"
)

const routingKey = "lead.message"

// AMQPJournal publishes entries to RabbitMQ; a Consumer running Handler
// applies them, possibly on another instance.
type AMQPJournal struct {
	pub *broker.Publisher
	log *slog.Logger
}

func NewAMQPJournal(pub *broker.Publisher, logger *slog.Logger) *AMQPJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPJournal{pub: pub, log: logger.With("component", "lead-journal-amqp")}
}

func (j *AMQPJournal) Record(ctx context.Context, e Entry) {
	if err := j.pub.PublishJSON(ctx, routingKey, e); err != nil {
		j.log.Warn("lead journal publish failed", "listing_id", e.ListingID, "err", err)
	}
}

// RoutingKey is the binding key consumers should use.
func RoutingKey() string { return routingKey }

// Handler decodes published entries and applies them with rec.
func Handler(rec *Recorder) broker.Handler {
	return func(ctx context.Context, body []byte) (bool, error) {
		var e Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return false, fmt.Errorf("decode journal entry: %w", err)
		}
		if err := rec.Apply(ctx, e); err != nil {
			return false, err
		}
		return false, nil
	}
}
