package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/markdave123-py/Rentora/internal/models"
)

// ErrNotFound is returned by writes that target a record which does not exist.
// Lookups return (nil, nil) instead.
var ErrNotFound = errors.New("record not found")

// SessionStore persists one session per chat identity.
type SessionStore interface {
	GetSession(ctx context.Context, chatIdentity string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
}

// AccountDirectory resolves durable accounts and their reachable channels.
type AccountDirectory interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	FindAccountByPhone(ctx context.Context, phone string) (*models.Account, error)
	FindAccountByChat(ctx context.Context, chatIdentity string) (*models.Account, error)
	CreateAccount(ctx context.Context, a *models.Account) error
	UpdateAccount(ctx context.Context, a *models.Account) error
	DeleteAccount(ctx context.Context, id string) error
}

// ListingGateway stores published listings.
type ListingGateway interface {
	FindByShortID(ctx context.Context, shortID string) (*models.Listing, error)
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	Create(ctx context.Context, l *models.Listing) error
	Update(ctx context.Context, l *models.Listing) error
	AppendMedia(ctx context.Context, listingID string, media []models.MediaRef) error
	SearchSimilar(ctx context.Context, queryVec []float32, limit int) ([]models.Listing, error)
}

// LeadGateway stores inquiry threads. GetOrCreateLead reports whether it created the lead.
type LeadGateway interface {
	GetOrCreateLead(ctx context.Context, listingID, searcherIdentity, searcherName string) (*models.Lead, bool, error)
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	AppendLeadMessage(ctx context.Context, leadID string, msg models.LeadMessage) error
	UpdateLeadStatus(ctx context.Context, leadID string, status models.LeadStatus) error
}

// MeetingStore records confirmed viewings. CreateMeeting is a no-op returning
// false when a meeting already exists for the same lead and start time.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, m *models.Meeting) (bool, error)
	FindMeeting(ctx context.Context, leadID string, start time.Time) (*models.Meeting, error)
}

// NotificationStore is the durable outbox behind the delivery queue.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	// ListDeliverable returns pending notifications with attempts below maxAttempts, oldest first.
	ListDeliverable(ctx context.Context, maxAttempts, limit int) ([]models.Notification, error)
	ListNotificationsByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]models.Notification, error)
	MarkNotificationSent(ctx context.Context, id string) error
	// RecordNotificationFailure increments attempts and stores lastError; the record
	// becomes Failed once attempts reaches maxAttempts. It returns the new status.
	RecordNotificationFailure(ctx context.Context, id, lastError string, maxAttempts int) (models.NotificationStatus, error)
	RequeueNotification(ctx context.Context, id string) error
}

// Store bundles every persistence port. Both the Postgres client and the
// in-memory store satisfy it.
type Store interface {
	SessionStore
	AccountDirectory
	ListingGateway
	LeadGateway
	MeetingStore
	NotificationStore
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
}
