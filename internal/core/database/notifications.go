package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

const notificationColumns = `id, user_id, kind, title, message, payload, status, attempts, last_error, created_at, updated_at`

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n            models.Notification
		kind, status string
		payload      []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Message, &payload, &status,
		&n.Attempts, &n.LastError, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Kind = models.NotificationKind(kind)
	n.Status = models.NotificationStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("notification %s payload: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (c *DatabaseClient) queryNotifications(ctx context.Context, q string, args ...any) ([]models.Notification, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("nil notification")
	}
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	raw, err := jsonArg(payload)
	if err != nil {
		return err
	}
	status := n.Status
	if status == "" {
		status = models.NotificationPending
	}
	const q = `
		INSERT INTO notifications (id, user_id, kind, title, message, payload, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Message, raw, string(status), n.Attempts, n.LastError)
	return err
}

func (c *DatabaseClient) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(c.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func (c *DatabaseClient) ListDeliverable(ctx context.Context, maxAttempts, limit int) ([]models.Notification, error) {
	q := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1 AND attempts < $2
		ORDER BY created_at, id
		LIMIT $3`
	return c.queryNotifications(ctx, q, string(models.NotificationPending), maxAttempts, limit)
}

func (c *DatabaseClient) ListNotificationsByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	q := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1
		ORDER BY created_at DESC, id
		LIMIT $2`
	return c.queryNotifications(ctx, q, string(status), limit)
}

func (c *DatabaseClient) MarkNotificationSent(ctx context.Context, id string) error {
	return mustRows(c.db.ExecContext(ctx,
		`UPDATE notifications SET status = $2, last_error = '', updated_at = now() WHERE id = $1`,
		id, string(models.NotificationSent)))
}

func (c *DatabaseClient) RecordNotificationFailure(ctx context.Context, id, lastError string, maxAttempts int) (models.NotificationStatus, error) {
	const q = `
		UPDATE notifications
		SET attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN $4 ELSE $5 END,
			updated_at = now()
		WHERE id = $1
		RETURNING status
	`
	var status string
	err := c.db.QueryRowContext(ctx, q, id, lastError, maxAttempts,
		string(models.NotificationFailed), string(models.NotificationPending)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("notification %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return models.NotificationStatus(status), nil
}

// RequeueNotification resets a notification to pending with a fresh attempt budget.
func (c *DatabaseClient) RequeueNotification(ctx context.Context, id string) error {
	return mustRows(c.db.ExecContext(ctx,
		`UPDATE notifications SET status = $2, attempts = 0, last_error = '', updated_at = now() WHERE id = $1`,
		id, string(models.NotificationPending)))
}
