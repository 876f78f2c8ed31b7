package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/markdave123-py/Rentora/internal/models"
)

func (c *DatabaseClient) GetSession(ctx context.Context, chatIdentity string) (*models.Session, error) {
	const q = `
		SELECT chat_identity, display_name, role, state, data, linked_account_id, created_at, updated_at
		FROM sessions WHERE chat_identity = $1
	`
	var (
		s     models.Session
		role  string
		state string
		raw   []byte
	)
	err := c.db.QueryRowContext(ctx, q, chatIdentity).Scan(
		&s.ChatIdentity, &s.DisplayName, &role, &state, &raw, &s.LinkedAccountID, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Role = models.Role(role)
	data, err := models.DecodeSessionData(models.State(state), raw)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", chatIdentity, err)
	}
	s.Data = data
	return &s, nil
}

// SaveSession upserts the session row keyed by chat identity.
func (c *DatabaseClient) SaveSession(ctx context.Context, s *models.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	state, raw, err := models.EncodeSessionData(s.Data)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO sessions (chat_identity, display_name, role, state, data, linked_account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), now())
		ON CONFLICT (chat_identity) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			state = EXCLUDED.state,
			data = EXCLUDED.data,
			linked_account_id = EXCLUDED.linked_account_id,
			updated_at = now()
	`
	_, err = c.db.ExecContext(ctx, q,
		s.ChatIdentity, s.DisplayName, string(s.Role), string(state), raw, s.LinkedAccountID, nullTime(nonZero(s.CreatedAt)))
	return err
}
