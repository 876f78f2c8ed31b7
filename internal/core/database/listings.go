package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Rentora/internal/models"
)

const listingColumns = `id, owner_id, city, address, price, rooms, description, contact_phone, calendar_id,
	images, videos, availability, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l                      models.Listing
		images, videos, avails []byte
	)
	if err := row.Scan(
		&l.ID, &l.OwnerID, &l.City, &l.Address, &l.Price, &l.Rooms, &l.Description, &l.ContactPhone, &l.CalendarID,
		&images, &videos, &avails, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(images, &l.Images); err != nil {
		return nil, fmt.Errorf("listing %s images: %w", l.ID, err)
	}
	if err := json.Unmarshal(videos, &l.Videos); err != nil {
		return nil, fmt.Errorf("listing %s videos: %w", l.ID, err)
	}
	if err := json.Unmarshal(avails, &l.Availability); err != nil {
		return nil, fmt.Errorf("listing %s availability: %w", l.ID, err)
	}
	return &l, nil
}

// FindByShortID returns the newest listing whose id starts with shortID.
func (c *DatabaseClient) FindByShortID(ctx context.Context, shortID string) (*models.Listing, error) {
	shortID = strings.TrimSpace(shortID)
	if shortID == "" || strings.ContainsAny(shortID, `%_\`) {
		return nil, nil
	}
	q := `SELECT ` + listingColumns + ` FROM listings WHERE id LIKE $1 || '%' ORDER BY created_at DESC LIMIT 1`
	l, err := scanListing(c.db.QueryRowContext(ctx, q, strings.ToLower(shortID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (c *DatabaseClient) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	l, err := scanListing(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (c *DatabaseClient) Create(ctx context.Context, l *models.Listing) error {
	if l == nil {
		return errors.New("nil listing")
	}
	images, videos, avails, err := listingJSON(l)
	if err != nil {
		return err
	}
	var vec any
	if len(l.Embedding) > 0 {
		vec = pgvector.NewVector(l.Embedding)
	}
	const q = `
		INSERT INTO listings
			(id, owner_id, city, address, price, rooms, description, contact_phone, calendar_id,
			 images, videos, availability, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q,
		l.ID, l.OwnerID, l.City, l.Address, l.Price, l.Rooms, l.Description, l.ContactPhone, l.CalendarID,
		images, videos, avails, vec)
	return err
}

// Update rewrites the mutable listing fields. The embedding is left untouched.
func (c *DatabaseClient) Update(ctx context.Context, l *models.Listing) error {
	if l == nil {
		return errors.New("nil listing")
	}
	images, videos, avails, err := listingJSON(l)
	if err != nil {
		return err
	}
	const q = `
		UPDATE listings
		SET city = $2, address = $3, price = $4, rooms = $5, description = $6, contact_phone = $7,
			calendar_id = $8, images = $9, videos = $10, availability = $11, updated_at = now()
		WHERE id = $1
	`
	return mustRows(c.db.ExecContext(ctx, q,
		l.ID, l.City, l.Address, l.Price, l.Rooms, l.Description, l.ContactPhone, l.CalendarID, images, videos, avails))
}

// AppendMedia adds images and videos to the end of the listing's media lists.
func (c *DatabaseClient) AppendMedia(ctx context.Context, listingID string, media []models.MediaRef) error {
	images, videos := models.SplitMedia(media)
	if len(images) == 0 && len(videos) == 0 {
		return nil
	}
	imgJSON, err := jsonArg(images)
	if err != nil {
		return err
	}
	vidJSON, err := jsonArg(videos)
	if err != nil {
		return err
	}
	const q = `
		UPDATE listings
		SET images = images || $2::jsonb, videos = videos || $3::jsonb, updated_at = now()
		WHERE id = $1
	`
	return mustRows(c.db.ExecContext(ctx, q, listingID, imgJSON, vidJSON))
}

// SearchSimilar returns the listings nearest to queryVec by L2 distance.
func (c *DatabaseClient) SearchSimilar(ctx context.Context, queryVec []float32, limit int) ([]models.Listing, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}
	q := `SELECT ` + listingColumns + `
		FROM listings
		WHERE embedding IS NOT NULL
		ORDER BY embedding <-> $1
		LIMIT $2`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func listingJSON(l *models.Listing) (images, videos, avails []byte, err error) {
	if images, err = jsonArg(nonNil(l.Images)); err != nil {
		return
	}
	if videos, err = jsonArg(nonNil(l.Videos)); err != nil {
		return
	}
	slots := l.Availability
	if slots == nil {
		slots = []models.Slot{}
	}
	avails, err = jsonArg(slots)
	return
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
