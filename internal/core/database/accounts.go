package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/markdave123-py/Rentora/internal/models"
)

const accountColumns = `id, name, email, phone, chat_identity, role, plan_expires_at, created_at, updated_at`

func (c *DatabaseClient) getAccountWhere(ctx context.Context, where string, arg any) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where + ` LIMIT 1`
	var (
		a    models.Account
		role string
		plan sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, q, arg).Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.ChatIdentity, &role, &plan, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.PlanExpiresAt = timePtr(plan)
	return &a, nil
}

func (c *DatabaseClient) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return c.getAccountWhere(ctx, `id = $1`, id)
}

func (c *DatabaseClient) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return c.getAccountWhere(ctx, `lower(email) = $1`, email)
}

func (c *DatabaseClient) FindAccountByPhone(ctx context.Context, phone string) (*models.Account, error) {
	if phone == "" {
		return nil, nil
	}
	return c.getAccountWhere(ctx, `phone = $1 AND chat_identity <> ''`, phone)
}

func (c *DatabaseClient) FindAccountByChat(ctx context.Context, chatIdentity string) (*models.Account, error) {
	if chatIdentity == "" {
		return nil, nil
	}
	return c.getAccountWhere(ctx, `chat_identity = $1`, chatIdentity)
}

func (c *DatabaseClient) CreateAccount(ctx context.Context, a *models.Account) error {
	if a == nil {
		return errors.New("nil account")
	}
	const q = `
		INSERT INTO accounts (id, name, email, phone, chat_identity, role, plan_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		a.ID, a.Name, a.Email, a.Phone, a.ChatIdentity, string(a.Role), nullTime(a.PlanExpiresAt))
	return err
}

func (c *DatabaseClient) UpdateAccount(ctx context.Context, a *models.Account) error {
	if a == nil {
		return errors.New("nil account")
	}
	const q = `
		UPDATE accounts
		SET name = $2, email = $3, phone = $4, chat_identity = $5, role = $6, plan_expires_at = $7, updated_at = now()
		WHERE id = $1
	`
	return mustRows(c.db.ExecContext(ctx, q,
		a.ID, a.Name, a.Email, a.Phone, a.ChatIdentity, string(a.Role), nullTime(a.PlanExpiresAt)))
}

func (c *DatabaseClient) DeleteAccount(ctx context.Context, id string) error {
	return mustRows(c.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id))
}
