// Package leads keeps the per-lead conversation history and tells owners when
// a lead starts or wakes up.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
)

// Entry is one exchange to append to a lead history.
type Entry struct {
	ListingID        string               `json:"listing_id"`
	SearcherIdentity string               `json:"searcher_identity"`
	SearcherName     string               `json:"searcher_name"`
	Messages         []models.LeadMessage `json:"messages"`
}

// Journal accepts entries for asynchronous recording.
type Journal interface {
	Record(ctx context.Context, e Entry)
}

// Recorder applies entries to the lead store.
type Recorder struct {
	leads         core.LeadGateway
	listings      core.ListingGateway
	notify        notification.Enqueuer
	renotifyAfter time.Duration
	log           *slog.Logger
}

func NewRecorder(leads core.LeadGateway, listings core.ListingGateway, notify notification.Enqueuer, renotifyAfter time.Duration, logger *slog.Logger) *Recorder {
	if renotifyAfter <= 0 {
		renotifyAfter = 3 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		leads: leads, listings: listings, notify: notify, renotifyAfter: renotifyAfter,
		log: logger.With("component", "lead-journal"),
	}
}

// Apply appends the entry's messages and notifies the owner when the lead is
// new or has been silent for longer than the re-notify window.
func (r *Recorder) Apply(ctx context.Context, e Entry) error {
	if e.ListingID == "" || e.SearcherIdentity == "" || len(e.Messages) == 0 {
		return errors.New("incomplete journal entry")
	}
	lead, created, err := r.leads.GetOrCreateLead(ctx, e.ListingID, e.SearcherIdentity, e.SearcherName)
	if err != nil {
		return fmt.Errorf("get or create lead: %w", err)
	}
	previous := lead.LastMessageAt

	for _, msg := range e.Messages {
		if err := r.leads.AppendLeadMessage(ctx, lead.ID, msg); err != nil {
			return fmt.Errorf("append lead message: %w", err)
		}
	}

	first := e.Messages[0].Timestamp
	wakeUp := previous == nil || first.Sub(*previous) > r.renotifyAfter
	if !created && !wakeUp {
		return nil
	}
	return r.notifyOwner(ctx, lead, e, created)
}

func (r *Recorder) notifyOwner(ctx context.Context, lead *models.Lead, e Entry, created bool) error {
	if r.notify == nil {
		return nil
	}
	listing, err := r.listings.GetByID(ctx, e.ListingID)
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}
	if listing == nil || listing.OwnerID == "" {
		return nil
	}

	title := "🔔 פנייה חוזרת על הנכס"
	if created {
		title = "🔔 ליד חדש על הנכס"
	}
	var question string
	for _, m := range e.Messages {
		if m.SenderRole == models.SenderSearcher {
			question = m.Content
			break
		}
	}
	name := e.SearcherName
	if name == "" {
		name = "מתעניין"
	}
	msg := fmt.Sprintf("%s שואל/ת על הנכס ב-%s (מזהה %s):\n%s", name, listing.Location(), listing.ShortID(), question)

	_, err = r.notify.Enqueue(ctx, notification.Request{
		UserID:  listing.OwnerID,
		Kind:    models.KindLeadActivity,
		Title:   title,
		Message: msg,
		Payload: map[string]string{
			notification.PayloadListingID: listing.ID,
			notification.PayloadLeadID:    lead.ID,
		},
	})
	if err != nil {
		return err
	}
	r.log.Info("owner notified about lead", "lead_id", lead.ID, "new_lead", created)
	return nil
}

// Direct records entries inline. Useful where ordering with the reply matters
// more than latency, and in tests.
type Direct struct {
	rec *Recorder
}

func NewDirect(rec *Recorder) *Direct { return &Direct{rec: rec} }

func (d *Direct) Record(ctx context.Context, e Entry) {
	if err := d.rec.Apply(ctx, e); err != nil {
		d.rec.log.Warn("lead journal entry dropped", "listing_id", e.ListingID, "err", err)
	}
}
