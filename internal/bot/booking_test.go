package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
)

const bookedListing = "beefcafe-0000-4000-8000-000000000001"

func bookingHarness(t *testing.T, ownerChat string) (*harness, time.Time) {
	t.Helper()
	h := newHarness(t)
	h.addAccount(models.Account{
		ID: "owner-1", Name: "Moshe", Email: "moshe@example.com", Phone: "0501234567",
		ChatIdentity: ownerChat, Role: models.RoleLandlord,
	})
	start := testfixturesTomorrow(h)
	h.addListing(models.Listing{
		ID: bookedListing, OwnerID: "owner-1", City: "חיפה", Address: "הרצל 1",
		Availability: []models.Slot{{Start: start, End: start.Add(time.Hour)}},
	})
	return h, start
}

func confirmButton(t *testing.T, rs []Response) string {
	t.Helper()
	for _, r := range rs {
		for _, row := range r.Buttons {
			for _, b := range row {
				if strings.HasPrefix(b.Data, confirmPrefix) {
					return b.Data
				}
			}
		}
	}
	t.Fatalf("no confirm button in %+v", rs)
	return ""
}

func TestViewingRequestAndConfirmation(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "tg:owner")
	searcher := "tg:700"
	h.text(searcher, "/start beefcafe")

	slots := h.tap(searcher, "get_slots")
	token := BookSlotToken(start)
	if !hasButton(slots[0], token) {
		t.Fatalf("slot button %q missing: %+v", token, slots[0].Buttons)
	}

	rs := h.tap(searcher, token)
	if len(rs) != 2 {
		t.Fatalf("want ack and menu, got %+v", rs)
	}
	mustContain(t, rs[0], "נשלחה למפרסם לאישור")
	if rs[1].Action != ActionShowMenu {
		t.Fatalf("second response should be the menu: %+v", rs[1])
	}

	ownerMsgs := h.sender.all("tg:owner")
	mustContain(t, first(t, ownerMsgs), "בקשה לסיור חדש")
	confirm := confirmButton(t, ownerMsgs)
	leadID, at, ok := ParseConfirm(confirm)
	if !ok || !at.Equal(start) {
		t.Fatalf("confirm token %q", confirm)
	}
	lead, _ := h.store.GetLead(context.Background(), leadID)
	if lead.Status != models.LeadContacted || lead.SearcherIdentity != searcher {
		t.Fatalf("lead after request: %+v", lead)
	}

	h.sender.reset(searcher)
	reply := first(t, h.tap("tg:owner", confirm))
	mustContain(t, reply, "אישרת את הסיור")
	mustContain(t, reply, "⚠️")

	meetings := h.store.Meetings()
	if len(meetings) != 1 {
		t.Fatalf("meetings = %d", len(meetings))
	}
	m := meetings[0]
	if m.LeadID != leadID || !m.StartTime.Equal(start) || !m.EndTime.Equal(start.Add(30*time.Minute)) || m.Status != models.MeetingScheduled {
		t.Fatalf("meeting = %+v", m)
	}
	lead, _ = h.store.GetLead(context.Background(), leadID)
	if lead.Status != models.LeadViewingScheduled {
		t.Fatalf("lead status = %s", lead.Status)
	}
	mustContain(t, first(t, h.sender.all(searcher)), "המפרסם אישר את הגעתך")

	if h.mailer.calls != 1 || len(h.calendar.events) != 1 {
		t.Fatalf("invites: mailer=%d calendar=%d", h.mailer.calls, len(h.calendar.events))
	}
	if got := h.calendar.events[0].Attendees; len(got) != 1 || got[0] != "moshe@example.com" {
		t.Fatalf("attendees = %v", got)
	}

	mustContain(t, first(t, h.tap("tg:owner", confirm)), "כבר אושר")
	if len(h.store.Meetings()) != 1 {
		t.Fatal("second confirmation created another meeting")
	}
}

func TestOnlyOwnerMayConfirm(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "tg:owner")
	h.text("tg:701", "/start beefcafe")
	h.tap("tg:701", BookSlotToken(start))
	confirm := confirmButton(t, h.sender.all("tg:owner"))

	mustContain(t, first(t, h.tap("tg:701", confirm)), "רק המפרסם")
	mustContain(t, first(t, h.tap("tg:702", confirm)), "רק המפרסם")
	if len(h.store.Meetings()) != 0 {
		t.Fatal("non-owner confirmation created a meeting")
	}
}

func TestViewingRequestQueuedWhenOwnerHasNoChat(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "")
	s := "tg:703"
	h.text(s, "/start beefcafe")

	rs := h.tap(s, BookSlotToken(start))
	mustContain(t, rs[0], "נשלחה למפרסם")
	mustContain(t, rs[1], "עדיין לא חיבר את הבוט")
	mustContain(t, rs[1], "Moshe")

	pending, _ := h.store.ListNotificationsByStatus(context.Background(), models.NotificationPending, 10)
	var req *models.Notification
	for i := range pending {
		if pending[i].Kind == models.KindViewingRequest {
			req = &pending[i]
		}
	}
	if req == nil || req.UserID != "owner-1" {
		t.Fatalf("viewing request not queued: %+v", pending)
	}
	if !strings.HasPrefix(req.Payload[notification.PayloadButtonData], confirmPrefix) {
		t.Fatalf("queued request lost its confirm button: %+v", req.Payload)
	}
}

func TestViewingRequestQueuedWhenOwnerUnreachable(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "tg:owner")
	h.sender.failFor("tg:owner", context.DeadlineExceeded)
	s := "tg:704"
	h.text(s, "/start beefcafe")

	rs := h.tap(s, BookSlotToken(start))
	mustContain(t, rs[1], "בקשתך נרשמה במערכת")
	pending, _ := h.store.ListNotificationsByStatus(context.Background(), models.NotificationPending, 10)
	if len(pending) != 1 || pending[0].Kind != models.KindViewingRequest {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestOwnerChatResolvedByPhone(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "")
	// The owner talked to the bot before linking; only the phone ties the two together.
	h.addAccount(models.Account{ID: "anon-owner", Phone: "0501234567", ChatIdentity: "wa:972501234567"})
	s := "tg:705"
	h.text(s, "/start beefcafe")
	h.tap(s, BookSlotToken(start))

	mustContain(t, first(t, h.sender.all("wa:972501234567")), "בקשה לסיור חדש")
	owner, _ := h.store.GetAccount(context.Background(), "owner-1")
	if owner.ChatIdentity != "wa:972501234567" {
		t.Fatalf("owner chat not cached: %+v", owner)
	}
}

func TestOwnerReachedOnWhatsAppByLocalPhone(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "")
	ownerChat := "wa:972501234567"
	h.text(ownerChat, "שלום")
	acct, _ := h.store.FindAccountByChat(context.Background(), ownerChat)
	if acct == nil || acct.Phone != "972501234567" {
		t.Fatalf("whatsapp account not keyed by phone: %+v", acct)
	}

	s := "tg:708"
	h.text(s, "/start beefcafe")
	h.sender.reset(ownerChat)
	h.tap(s, BookSlotToken(start))

	mustContain(t, first(t, h.sender.all(ownerChat)), "בקשה לסיור חדש")
	owner, _ := h.store.GetAccount(context.Background(), "owner-1")
	if owner.ChatIdentity != ownerChat {
		t.Fatalf("owner chat not cached: %+v", owner)
	}
}

func TestBookingWithoutActiveListing(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "tg:owner")
	h.tap("tg:706", "set_role_searcher")
	mustContain(t, first(t, h.tap("tg:706", BookSlotToken(start))), "לא בחרת דירה")
	mustContain(t, first(t, h.tap("tg:706", "book_slot_tomorrow")), "אינו תקין")
}

func TestBookingTokenForSlotNoLongerOffered(t *testing.T) {
	t.Parallel()
	h, start := bookingHarness(t, "tg:owner")
	searcher := "tg:707"
	h.text(searcher, "/start beefcafe")
	h.sender.reset("tg:owner")

	for _, token := range []string{
		BookSlotToken(start.Add(7 * time.Hour)),
		BookSlotToken(start.Add(-48 * time.Hour)),
	} {
		rs := h.tap(searcher, token)
		mustContain(t, first(t, rs), "כבר לא זמין")
		if !hasButton(rs[0], BookSlotToken(start)) {
			t.Fatalf("open slots not offered again: %+v", rs[0].Buttons)
		}
	}
	if got := h.sender.all("tg:owner"); len(got) != 0 {
		t.Fatalf("owner prompted for an unknown slot: %+v", got)
	}
	if leads := h.store.Leads(); len(leads) != 0 {
		t.Fatalf("lead created for an unknown slot: %+v", leads)
	}
}
