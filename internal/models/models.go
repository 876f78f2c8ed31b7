package models

import (
	"strings"
	"time"
)

// Role is the part a chat identity plays in a conversation.
type Role string

const (
	RoleUnset    Role = ""
	RoleSearcher Role = "SEARCHER"
	RoleAgent    Role = "AGENT"
	RoleLandlord Role = "LANDLORD"
	RoleSeller   Role = "SELLER"
)

// IsPublisher reports whether the role publishes listings.
func (r Role) IsPublisher() bool {
	switch r {
	case RoleAgent, RoleLandlord, RoleSeller:
		return true
	}
	return false
}

// ParseRole maps a stored or user-supplied role name to a Role.
func ParseRole(s string) Role {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SEARCHER", "TENANT", "BUYER":
		return RoleSearcher
	case "AGENT":
		return RoleAgent
	case "LANDLORD":
		return RoleLandlord
	case "SELLER":
		return RoleSeller
	}
	return RoleUnset
}

// Account is a durable user record that one or more chat sessions link to.
type Account struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Email         string     `db:"email" json:"email"`
	Phone         string     `db:"phone" json:"phone"`
	ChatIdentity  string     `db:"chat_identity" json:"chat_identity"`
	Role          Role       `db:"role" json:"role"`
	PlanExpiresAt *time.Time `db:"plan_expires_at" json:"plan_expires_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Slot is a proposed viewing interval.
type Slot struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

// Valid reports whether the slot has a positive duration.
func (s Slot) Valid() bool {
	return !s.Start.IsZero() && s.Start.Before(s.End)
}

// MediaKind classifies a media reference.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// MediaRef points at a stored media file: a transport file id or a mirrored URL.
type MediaRef struct {
	Reference string    `json:"reference"`
	Kind      MediaKind `json:"kind"`
}

// DraftListing is a candidate listing held in a session until the publisher confirms it.
type DraftListing struct {
	City         string     `json:"city" validate:"required"`
	Address      string     `json:"address,omitempty"`
	Price        float64    `json:"price,omitempty" validate:"gte=0"`
	Rooms        float64    `json:"rooms,omitempty" validate:"gte=0"`
	Description  string     `json:"description,omitempty"`
	ContactPhone string     `json:"contact_phone,omitempty"`
	Availability []Slot     `json:"availability,omitempty" validate:"dive"`
	Media        []MediaRef `json:"media,omitempty"`
}

// Listing is a published property.
type Listing struct {
	ID           string    `db:"id" json:"id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	City         string    `db:"city" json:"city"`
	Address      string    `db:"address" json:"address"`
	Price        float64   `db:"price" json:"price"`
	Rooms        float64   `db:"rooms" json:"rooms"`
	Description  string    `db:"description" json:"description"`
	ContactPhone string    `db:"contact_phone" json:"contact_phone"`
	CalendarID   string    `db:"calendar_id" json:"calendar_id"`
	Images       []string  `db:"images" json:"images"`
	Videos       []string  `db:"videos" json:"videos"`
	Availability []Slot    `db:"availability" json:"availability"`
	Embedding    []float32 `db:"embedding" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ShortID is the first segment of the listing id, used in deep links.
func (l *Listing) ShortID() string {
	return ShortID(l.ID)
}

// Location joins city and address for display.
func (l *Listing) Location() string {
	if l.Address == "" {
		return l.City
	}
	return l.City + ", " + l.Address
}

// ShortID returns the prefix of id up to the first dash.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// LeadStatus tracks an inquiry thread through its lifecycle.
type LeadStatus string

const (
	LeadNew              LeadStatus = "NEW"
	LeadContacted        LeadStatus = "CONTACTED"
	LeadViewingScheduled LeadStatus = "VIEWING_SCHEDULED"
	LeadViewingCompleted LeadStatus = "VIEWING_COMPLETED"
	LeadClosed           LeadStatus = "CLOSED"
	LeadRejected         LeadStatus = "REJECTED"
)

// SenderRole identifies who wrote a lead message.
type SenderRole string

const (
	SenderSearcher SenderRole = "SEARCHER"
	SenderOwner    SenderRole = "OWNER"
	SenderBot      SenderRole = "BOT"
)

// Lead is one searcher's inquiry thread about one listing.
type Lead struct {
	ID               string        `db:"id" json:"id"`
	ListingID        string        `db:"listing_id" json:"listing_id"`
	SearcherIdentity string        `db:"searcher_identity" json:"searcher_identity"`
	SearcherName     string        `db:"searcher_name" json:"searcher_name"`
	Status           LeadStatus    `db:"status" json:"status"`
	Messages         []LeadMessage `json:"messages,omitempty"`
	LastMessageAt    *time.Time    `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

// LeadMessage is one entry in a lead history.
type LeadMessage struct {
	ID         string     `db:"id" json:"id"`
	LeadID     string     `db:"lead_id" json:"lead_id"`
	SenderRole SenderRole `db:"sender_role" json:"sender_role"`
	Content    string     `db:"content" json:"content"`
	Timestamp  time.Time  `db:"timestamp" json:"timestamp"`
}

// MeetingStatus is the lifecycle of a viewing.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingCompleted MeetingStatus = "COMPLETED"
	MeetingCancelled MeetingStatus = "CANCELLED"
)

// Meeting is a confirmed viewing. Start and end never change after creation.
type Meeting struct {
	ID        string        `db:"id" json:"id"`
	LeadID    string        `db:"lead_id" json:"lead_id"`
	StartTime time.Time     `db:"start_time" json:"start_time"`
	EndTime   time.Time     `db:"end_time" json:"end_time"`
	Location  string        `db:"location" json:"location"`
	Status    MeetingStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// NotificationStatus is the delivery state of a queued notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// NotificationKind labels why a notification was queued.
type NotificationKind string

const (
	KindDirectMessage  NotificationKind = "DIRECT_MESSAGE"
	KindViewingRequest NotificationKind = "VIEWING_REQUEST"
	KindViewingUpdate  NotificationKind = "VIEWING_CONFIRMED"
	KindLeadActivity   NotificationKind = "LEAD_ACTIVITY"
)

// Notification is an outbox record delivered by the background dispatcher.
type Notification struct {
	ID        string             `db:"id" json:"id"`
	UserID    string             `db:"user_id" json:"user_id"`
	Kind      NotificationKind   `db:"kind" json:"kind"`
	Title     string             `db:"title" json:"title"`
	Message   string             `db:"message" json:"message"`
	Payload   map[string]string  `db:"payload" json:"payload,omitempty"`
	Status    NotificationStatus `db:"status" json:"status"`
	Attempts  int                `db:"attempts" json:"attempts"`
	LastError string             `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// SplitMedia separates buffered media into image and video references in
// arrival order. Documents are not listing media and are skipped.
func SplitMedia(media []MediaRef) (images, videos []string) {
	images, videos = []string{}, []string{}
	for _, m := range media {
		switch m.Kind {
		case MediaImage:
			images = append(images, m.Reference)
		case MediaVideo:
			videos = append(videos, m.Reference)
		}
	}
	return images, videos
}
