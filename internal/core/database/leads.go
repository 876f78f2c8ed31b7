package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/markdave123-py/Rentora/internal/models"
)

const leadColumns = `id, listing_id, searcher_identity, searcher_name, status, last_message_at, created_at`

func scanLead(row rowScanner) (*models.Lead, error) {
	var (
		l      models.Lead
		status string
		last   sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.ListingID, &l.SearcherIdentity, &l.SearcherName, &status, &last, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Status = models.LeadStatus(status)
	l.LastMessageAt = timePtr(last)
	return &l, nil
}

// GetOrCreateLead returns the lead for (listingID, searcherIdentity), creating it
// when absent. The unique constraint makes concurrent callers converge on one row.
func (c *DatabaseClient) GetOrCreateLead(ctx context.Context, listingID, searcherIdentity, searcherName string) (*models.Lead, bool, error) {
	if listingID == "" || searcherIdentity == "" {
		return nil, false, errors.New("lead requires listing and searcher")
	}
	const insert = `
		INSERT INTO leads (id, listing_id, searcher_identity, searcher_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (listing_id, searcher_identity) DO NOTHING
		RETURNING ` + leadColumns
	l, err := scanLead(c.db.QueryRowContext(ctx, insert,
		uuid.NewString(), listingID, searcherIdentity, searcherName, string(models.LeadNew)))
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert lead: %w", err)
	}

	const sel = `SELECT ` + leadColumns + ` FROM leads WHERE listing_id = $1 AND searcher_identity = $2`
	l, err = scanLead(c.db.QueryRowContext(ctx, sel, listingID, searcherIdentity))
	if err != nil {
		return nil, false, fmt.Errorf("load lead: %w", err)
	}
	return l, false, nil
}

// GetLead loads a lead together with its message history in timestamp order.
func (c *DatabaseClient) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	l, err := scanLead(c.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT id, lead_id, sender_role, content, "timestamp"
		FROM lead_messages WHERE lead_id = $1
		ORDER BY "timestamp", id
	`
	rows, err := c.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m    models.LeadMessage
			role string
		)
		if err := rows.Scan(&m.ID, &m.LeadID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		m.SenderRole = models.SenderRole(role)
		l.Messages = append(l.Messages, m)
	}
	return l, rows.Err()
}

// AppendLeadMessage stores msg and advances the lead's last_message_at.
func (c *DatabaseClient) AppendLeadMessage(ctx context.Context, leadID string, msg models.LeadMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := mustRows(tx.ExecContext(ctx,
		`UPDATE leads SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2) WHERE id = $1`,
		leadID, msg.Timestamp)); err != nil {
		return err
	}
	const q = `
		INSERT INTO lead_messages (id, lead_id, sender_role, content, "timestamp")
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, q, msg.ID, leadID, string(msg.SenderRole), msg.Content, msg.Timestamp); err != nil {
		return fmt.Errorf("insert lead message: %w", err)
	}
	return tx.Commit()
}

func (c *DatabaseClient) UpdateLeadStatus(ctx context.Context, leadID string, status models.LeadStatus) error {
	return mustRows(c.db.ExecContext(ctx, `UPDATE leads SET status = $2 WHERE id = $1`, leadID, string(status)))
}
