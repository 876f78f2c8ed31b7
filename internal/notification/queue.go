// Package notification is the durable outbox: Queue inserts records and
// Dispatcher delivers them in the background with bounded retries.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

// Payload keys the chat channel understands.
const (
	PayloadButtonText = "button_text"
	PayloadButtonData = "button_data"
	PayloadListingID  = "listing_id"
	PayloadLeadID     = "lead_id"
)

// Request describes a notification to queue for an account.
type Request struct {
	UserID  string
	Kind    models.NotificationKind
	Title   string
	Message string
	Payload map[string]string
}

// Enqueuer is what producers depend on.
type Enqueuer interface {
	Enqueue(ctx context.Context, req Request) (*models.Notification, error)
}

// Queue writes pending notifications. It never attempts delivery itself.
type Queue struct {
	store core.NotificationStore
	newID func() string
	log   *slog.Logger
}

var _ Enqueuer = (*Queue)(nil)

func NewQueue(store core.NotificationStore, newID func() string, logger *slog.Logger) *Queue {
	if newID == nil {
		newID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, newID: newID, log: logger.With("component", "notification-queue")}
}

func (q *Queue) Enqueue(ctx context.Context, req Request) (*models.Notification, error) {
	if req.UserID == "" {
		return nil, errors.New("notification requires a user id")
	}
	n := &models.Notification{
		ID:      q.newID(),
		UserID:  req.UserID,
		Kind:    req.Kind,
		Title:   req.Title,
		Message: req.Message,
		Payload: req.Payload,
		Status:  models.NotificationPending,
	}
	if err := q.store.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	q.log.Info("notification queued", "notification_id", n.ID, "user_id", n.UserID, "kind", n.Kind)
	return n, nil
}
