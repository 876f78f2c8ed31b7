package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Rentora/internal/config"
)

// GoogleCalendar inserts viewing events into one calendar using a service account.
type GoogleCalendar struct {
	svc        *calendar.Service
	calendarID string
	timezone   string
}

var _ Calendar = (*GoogleCalendar)(nil)

func NewGoogleCalendar(ctx context.Context, cfg *config.Config) (*GoogleCalendar, error) {
	if cfg.GoogleCredentialsFile == "" {
		return nil, errors.New("GOOGLE_CREDENTIALS_FILE is not set")
	}
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(cfg.GoogleCredentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &GoogleCalendar{svc: svc, calendarID: cfg.CalendarID, timezone: cfg.CalendarTimezone}, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, ev Event) (string, error) {
	attendees := make([]*calendar.EventAttendee, 0, len(ev.Attendees))
	for _, email := range ev.Attendees {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}
	event := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: g.timezone},
		End:         &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: g.timezone},
		Attendees:   attendees,
	}
	created, err := g.svc.Events.Insert(g.calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}
