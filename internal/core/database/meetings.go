package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/markdave123-py/Rentora/internal/models"
)

// CreateMeeting inserts m unless a meeting for the same lead and start time
// already exists, in which case it reports false and leaves the table unchanged.
func (c *DatabaseClient) CreateMeeting(ctx context.Context, m *models.Meeting) (bool, error) {
	if m == nil {
		return false, errors.New("nil meeting")
	}
	if !m.StartTime.Before(m.EndTime) {
		return false, errors.New("meeting must end after it starts")
	}
	const q = `
		INSERT INTO meetings (id, lead_id, start_time, end_time, location, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (lead_id, start_time) DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, q,
		m.ID, m.LeadID, m.StartTime.UTC(), m.EndTime.UTC(), m.Location, string(m.Status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) FindMeeting(ctx context.Context, leadID string, start time.Time) (*models.Meeting, error) {
	const q = `
		SELECT id, lead_id, start_time, end_time, location, status, created_at
		FROM meetings WHERE lead_id = $1 AND start_time = $2
	`
	var (
		m      models.Meeting
		status string
	)
	err := c.db.QueryRowContext(ctx, q, leadID, start.UTC()).Scan(
		&m.ID, &m.LeadID, &m.StartTime, &m.EndTime, &m.Location, &status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Status = models.MeetingStatus(status)
	return &m, nil
}
