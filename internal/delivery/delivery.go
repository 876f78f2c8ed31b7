// Package delivery sends out-of-chat side effects: email and calendar invites.
package delivery

import (
	"context"
	"time"
)

// Mailer sends a plain-text email.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Event is a calendar entry with invited attendees.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// Calendar creates events and returns the provider's event id.
type Calendar interface {
	CreateEvent(ctx context.Context, ev Event) (string, error)
}
