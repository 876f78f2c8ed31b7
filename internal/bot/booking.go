package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Rentora/internal/delivery"
	"github.com/markdave123-py/Rentora/internal/leads"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
)

// Booking negotiates a viewing: the searcher picks a slot, the owner confirms
// it, and the meeting is recorded and announced to both sides.
type Booking struct {
	cfg      Config
	d        Deps
	f        displayFormat
	searcher *SearcherFlow
	log      *slog.Logger
}

// request handles a book_slot_ tap from a searcher.
func (b *Booking) request(ctx context.Context, sess *models.Session, token string) Response {
	start, ok := ParseBookSlot(token)
	if !ok {
		return reply("❌ המועד שבחרת אינו תקין. בחר מועד מהרשימה.")
	}
	l, err := b.searcher.activeListing(ctx, sess)
	if err != nil {
		b.log.Error("active listing load failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply(genericError)
	}
	if l == nil {
		return reply(noListingSelected)
	}
	if !b.offered(l, start) {
		b.log.Info("booking token matches no open slot", "listing_id", l.ID, "start", start)
		picker := b.searcher.slots(l)
		picker.Text = "⌛ המועד הזה כבר לא זמין.\n" + picker.Text
		return picker
	}

	lead, _, err := b.d.Leads.GetOrCreateLead(ctx, l.ID, sess.ChatIdentity, sess.DisplayName)
	if err != nil {
		b.log.Error("get or create lead failed", "listing_id", l.ID, "err", err)
		return reply("❌ לא הצלחתי לרשום את הבקשה. נסה לבחור את המועד שוב.")
	}
	day, hour := b.f.day(start), b.f.hour(start)
	ack := reply(fmt.Sprintf("✅ בקשתך לסיור ביום %s בשעה %s נשלחה למפרסם לאישור!", day, hour))
	if err := b.d.Sender.Send(ctx, sess.ChatIdentity, ack); err != nil {
		b.log.Warn("booking ack failed", "chat_identity", sess.ChatIdentity, "err", err)
	}

	ownerChat, owner, err := b.d.Accounts.ResolveOwnerChat(ctx, l)
	if err != nil {
		b.log.Warn("owner resolution failed", "listing_id", l.ID, "err", err)
	}

	prompt := fmt.Sprintf("🔔 בקשה לסיור חדש!\n\nדירה: %s\nלקוח: %s (%s)\nמועד מבוקש: %s בשעה %s\n\nלחץ על הכפתור למטה כדי לאשר לו.",
		l.Location(), sess.DisplayName, sess.ChatIdentity, day, hour)
	confirm := Button{Text: "✅ אשר הגעה", Data: ConfirmToken(lead.ID, start)}

	if ownerChat == "" {
		b.log.Info("owner has no chat identity", "listing_id", l.ID, "lead_id", lead.ID)
		b.queueOwnerRequest(ctx, owner, l, lead, prompt, confirm)
		name, phone := "בעל הנכס", l.ContactPhone
		if owner != nil && owner.Name != "" {
			name = owner.Name
		}
		if phone == "" {
			phone = "לא צוין"
		}
		return Response{
			Text:    fmt.Sprintf("שים לב: המפרסם (%s) עדיין לא חיבר את הבוט שלו. בקשתך נרשמה במערכת, אך מומלץ ליצור איתו קשר גם טלפונית: %s", name, phone),
			Listing: l,
		}
	}

	err = b.d.Sender.Send(ctx, ownerChat, Response{Text: prompt, Buttons: [][]Button{row(confirm)}})
	if err != nil {
		b.log.Warn("owner prompt failed, queuing notification", "lead_id", lead.ID, "err", err)
		b.queueOwnerRequest(ctx, owner, l, lead, prompt, confirm)
		return Response{Text: "בקשתך נרשמה במערכת ונעביר אותה למפרסם בהקדם.", Listing: l}
	}
	if lead.Status == models.LeadNew {
		if err := b.d.Leads.UpdateLeadStatus(ctx, lead.ID, models.LeadContacted); err != nil {
			b.log.Warn("lead status update failed", "lead_id", lead.ID, "err", err)
		}
	}
	b.log.Info("viewing requested", "lead_id", lead.ID, "listing_id", l.ID, "start", start)
	return b.searcher.menu(l)
}

// offered reports whether start is the start of a slot the listing still
// offers.
func (b *Booking) offered(l *models.Listing, start time.Time) bool {
	now := b.d.Now()
	for _, s := range l.Availability {
		if s.Valid() && s.Start.Equal(start) && !s.End.Before(now) {
			return true
		}
	}
	return false
}

// queueOwnerRequest leaves a retryable copy of the viewing request in the
// owner's notification queue.
func (b *Booking) queueOwnerRequest(ctx context.Context, owner *models.Account, l *models.Listing, lead *models.Lead, prompt string, confirm Button) {
	if owner == nil {
		return
	}
	_, err := b.d.Notify.Enqueue(ctx, notification.Request{
		UserID:  owner.ID,
		Kind:    models.KindViewingRequest,
		Title:   "🔔 בקשה לסיור חדש!",
		Message: prompt,
		Payload: map[string]string{
			notification.PayloadButtonText: confirm.Text,
			notification.PayloadButtonData: confirm.Data,
			notification.PayloadListingID:  l.ID,
			notification.PayloadLeadID:     lead.ID,
		},
	})
	if err != nil {
		b.log.Error("viewing request enqueue failed", "lead_id", lead.ID, "err", err)
	}
}

// confirm handles the owner's confirm_v_ tap. A repeated tap for the same lead
// and start finds the existing meeting and changes nothing.
func (b *Booking) confirm(ctx context.Context, sess *models.Session, token string) Response {
	leadID, start, ok := ParseConfirm(token)
	if !ok {
		return reply("❌ הבקשה אינה תקינה.")
	}
	lead, err := b.d.Leads.GetLead(ctx, leadID)
	if err != nil {
		b.log.Error("lead load failed", "lead_id", leadID, "err", err)
		return reply(genericError)
	}
	if lead == nil {
		return reply("שגיאה: הליד או הדירה לא נמצאו.")
	}
	l, err := b.d.Listings.GetByID(ctx, lead.ListingID)
	if err != nil {
		b.log.Error("listing load failed", "listing_id", lead.ListingID, "err", err)
		return reply(genericError)
	}
	if l == nil {
		return reply("שגיאה: הליד או הדירה לא נמצאו.")
	}

	ownerChat, owner, err := b.d.Accounts.ResolveOwnerChat(ctx, l)
	if err != nil {
		b.log.Warn("owner resolution failed", "listing_id", l.ID, "err", err)
	}
	if ownerChat == "" || ownerChat != sess.ChatIdentity {
		b.log.Warn("confirmation from non-owner", "chat_identity", sess.ChatIdentity, "lead_id", lead.ID)
		return reply("⛔ רק המפרסם של הנכס יכול לאשר את הסיור.")
	}

	existing, err := b.d.Meetings.FindMeeting(ctx, lead.ID, start)
	if err != nil {
		b.log.Error("meeting lookup failed", "lead_id", lead.ID, "err", err)
		return reply("❌ לא הצלחתי לשמור את הפגישה. נסה ללחוץ שוב.")
	}
	if existing != nil {
		return reply("הסיור הזה כבר אושר. ✅")
	}
	m := &models.Meeting{
		ID:        b.d.NewID(),
		LeadID:    lead.ID,
		StartTime: start,
		EndTime:   start.Add(b.cfg.MeetingDuration),
		Location:  l.Location(),
		Status:    models.MeetingScheduled,
	}
	created, err := b.d.Meetings.CreateMeeting(ctx, m)
	if err != nil {
		b.log.Error("create meeting failed", "lead_id", lead.ID, "err", err)
		return reply("❌ לא הצלחתי לשמור את הפגישה. נסה ללחוץ שוב.")
	}
	if !created {
		return reply("הסיור הזה כבר אושר. ✅")
	}
	if err := b.d.Leads.UpdateLeadStatus(ctx, lead.ID, models.LeadViewingScheduled); err != nil {
		b.log.Error("lead status update failed", "lead_id", lead.ID, "err", err)
	}
	b.log.Info("viewing confirmed", "meeting_id", m.ID, "lead_id", lead.ID, "start", start)

	searcherAcct, err := b.d.Accounts.FindByChat(ctx, lead.SearcherIdentity)
	if err != nil {
		b.log.Warn("searcher account lookup failed", "chat_identity", lead.SearcherIdentity, "err", err)
	}
	inviteErr := b.invite(ctx, l, m, owner, searcherAcct)

	hour := b.f.hour(start)
	calendarNote := "(אם הגדרת מייל באפליקציה)"
	if searcherAcct != nil && searcherAcct.Email != "" {
		calendarNote = "(במייל: " + searcherAcct.Email + ")"
	}
	final := fmt.Sprintf("🎉 המפרסם אישר את הגעתך!\nנפגש בכתובת הנכס (%s) בשעה %s.\nזימון נשלח ליומן שלך %s.", l.Location(), hour, calendarNote)
	if err := b.d.Sender.Send(ctx, lead.SearcherIdentity, reply(final)); err != nil {
		b.log.Warn("searcher confirmation failed, queuing notification", "lead_id", lead.ID, "err", err)
		if searcherAcct != nil {
			if _, err := b.d.Notify.Enqueue(ctx, notification.Request{
				UserID:  searcherAcct.ID,
				Kind:    models.KindViewingUpdate,
				Title:   "🎉 הסיור אושר",
				Message: final,
				Payload: map[string]string{notification.PayloadListingID: l.ID, notification.PayloadLeadID: lead.ID},
			}); err != nil {
				b.log.Error("viewing update enqueue failed", "lead_id", lead.ID, "err", err)
			}
		}
	}

	b.d.Journal.Record(ctx, leads.Entry{
		ListingID:        l.ID,
		SearcherIdentity: lead.SearcherIdentity,
		SearcherName:     lead.SearcherName,
		Messages: []models.LeadMessage{{
			SenderRole: models.SenderOwner,
			Content:    fmt.Sprintf("אישר סיור ב-%s בשעה %s", b.f.day(start), hour),
			Timestamp:  b.d.Now(),
		}},
	})

	text := "אישרת את הסיור! הפגישה נוספה ליומן שלכם. ✅"
	if inviteErr != nil {
		text += "\n⚠️ שליחת הזימון במייל או ביומן נכשלה, כדאי לעדכן את הלקוח ישירות."
	}
	return reply(text)
}

// invite sends the calendar event and email to every participant with a known
// address. Failures are reported but never undo the meeting.
func (b *Booking) invite(ctx context.Context, l *models.Listing, m *models.Meeting, owner, searcher *models.Account) error {
	var emails []string
	for _, a := range []*models.Account{owner, searcher} {
		if a != nil && a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	if len(emails) == 0 || (b.d.Calendar == nil && b.d.Mailer == nil) {
		return nil
	}

	ictx, cancel := context.WithTimeout(ctx, b.cfg.EmailTimeout)
	defer cancel()

	summary := "סיור בנכס: " + l.Location()
	body := fmt.Sprintf("נקבע סיור בנכס %s\nמועד: %s בשעה %s-%s", l.Location(), b.f.day(m.StartTime), b.f.hour(m.StartTime), b.f.hour(m.EndTime))

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	if b.d.Calendar != nil {
		g.Go(func() error {
			_, err := b.d.Calendar.CreateEvent(ictx, delivery.Event{
				Summary: summary, Description: body, Location: m.Location,
				Start: m.StartTime, End: m.EndTime, Attendees: emails,
			})
			if err != nil {
				collect(fmt.Errorf("calendar: %w", err))
			}
			return nil
		})
	}
	if b.d.Mailer != nil {
		g.Go(func() error {
			if err := b.d.Mailer.Send(ictx, emails, summary, body); err != nil {
				collect(fmt.Errorf("email: %w", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		b.log.Warn("meeting invite failed", "meeting_id", m.ID, "err", err)
	}
	return err
}
