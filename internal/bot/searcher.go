package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/Rentora/internal/leads"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
)

const noListingSelected = "לא בחרת דירה. שלח שוב את לינק הדירה או המזהה שלה."

// SearcherFlow lets a searcher open a listing, browse it, ask about it and
// leave the owner a message.
type SearcherFlow struct {
	cfg Config
	d   Deps
	f   displayFormat
	log *slog.Logger
}

// lookup opens a listing by short id or full id.
func (s *SearcherFlow) lookup(ctx context.Context, sess *models.Session, id string) Response {
	l, err := s.d.Listings.FindByShortID(ctx, id)
	if err == nil && l == nil {
		l, err = s.d.Listings.GetByID(ctx, id)
	}
	if err != nil {
		s.log.Error("listing lookup failed", "id", id, "err", err)
		return reply(genericError)
	}
	if l == nil {
		return reply("❌ הנכס לא נמצא.")
	}
	sess.Transition(models.TalkingAboutListingData{ListingID: l.ID})
	return s.menu(l)
}

func (s *SearcherFlow) menu(l *models.Listing) Response {
	publicURL := s.cfg.FrontendURL + "/p/" + l.ID
	local := s.cfg.FrontendURL == "" || strings.Contains(s.cfg.FrontendURL, "localhost")

	var buttons [][]Button
	text := fmt.Sprintf("🏠 נכס ב-%s\n%s\n\nמה תרצה לעשות?", l.Location(), l.Description)
	if local {
		if s.cfg.FrontendURL != "" {
			text = fmt.Sprintf("🏠 נכס ב-%s\n%s\n\n🔗 לינק לפרופיל: %s\n\nמה תרצה לעשות?", l.Location(), l.Description, publicURL)
		}
	} else {
		buttons = append(buttons, row(Button{Text: "📊 פרופיל מלא ותמונות (Web)", URL: publicURL}))
	}
	buttons = append(buttons,
		row(Button{Text: "📸 תמונות בבוט", Data: "get_media"}),
		row(Button{Text: "📅 תיאום סיור", Data: "get_slots"}),
		row(Button{Text: "❓ שאל שאלה", Data: "ask_question"}),
		row(Button{Text: "✉️ הודעה למפרסם", Data: "contact_owner"}),
	)
	return Response{Text: text, Buttons: buttons, Action: ActionShowMenu, Listing: l}
}

// slots lists the upcoming viewing slots, one button each.
func (s *SearcherFlow) slots(l *models.Listing) Response {
	now := s.d.Now()
	var buttons [][]Button
	for _, slot := range l.Availability {
		if !slot.Valid() || slot.End.Before(now) {
			continue
		}
		buttons = append(buttons, row(Button{Text: s.f.slot(slot), Data: BookSlotToken(slot.Start)}))
	}
	if len(buttons) == 0 {
		return Response{
			Text:    "המפרסם עדיין לא הגדיר שעות לתיאום. תרצה להשאיר לו הודעה?",
			Buttons: [][]Button{row(Button{Text: "✉️ השאר הודעה", Data: "contact_owner"})},
		}
	}
	buttons = append(buttons, row(Button{Text: "🔙 חזרה לתפריט", Data: "show_main_menu"}))
	return Response{Text: "בחר מועד לתיאום סיור:", Buttons: buttons}
}

func (s *SearcherFlow) activeListing(ctx context.Context, sess *models.Session) (*models.Listing, error) {
	id := sess.ActiveListingID()
	if id == "" {
		return nil, nil
	}
	return s.d.Listings.GetByID(ctx, id)
}

// handleCallback serves the listing menu buttons. ok is false for data the
// searcher flow does not own.
func (s *SearcherFlow) handleCallback(ctx context.Context, sess *models.Session, data string) (Response, bool) {
	switch data {
	case "get_slots", "get_media", "ask_question", "contact_owner", "show_main_menu":
	default:
		return Response{}, false
	}
	l, err := s.activeListing(ctx, sess)
	if err != nil {
		s.log.Error("active listing load failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply(genericError), true
	}
	if l == nil {
		return reply(noListingSelected), true
	}

	switch data {
	case "get_slots":
		return s.slots(l), true
	case "get_media":
		media := listingMedia(l)
		if len(media) == 0 {
			return Response{Text: "עדיין אין תמונות לנכס הזה.", Listing: l}, true
		}
		return Response{Text: "שולח תמונות...", Action: ActionSendImages, Media: media, Listing: l}, true
	case "ask_question":
		sess.Transition(models.TalkingAboutListingData{ListingID: l.ID})
		return reply("🏠 אני מקשיב! מה תרצה לדעת על הדירה? (למשל: 'יש חניה?')"), true
	case "contact_owner":
		sess.Transition(models.AwaitingDirectMessageData{ListingID: l.ID})
		return reply("✍️ כתוב את ההודעה שתרצה להעביר למפרסם:"), true
	default:
		sess.Transition(models.TalkingAboutListingData{ListingID: l.ID})
		return s.menu(l), true
	}
}

func (s *SearcherFlow) handleText(ctx context.Context, sess *models.Session, text string) Response {
	switch d := sess.Data.(type) {
	case models.AwaitingDirectMessageData:
		return s.forwardToOwner(ctx, sess, d.ListingID, text)
	case models.TalkingAboutListingData:
		return s.answer(ctx, sess, d.ListingID, text)
	}
	if isLong(text) {
		return s.search(ctx, sess, text)
	}
	return reply("שלום " + sess.DisplayName + ", שלח מזהה נכס כדי להתחיל.")
}

// answer asks the oracle about the active listing. The oracle's hint decides
// the follow-up.
func (s *SearcherFlow) answer(ctx context.Context, sess *models.Session, listingID, question string) Response {
	l, err := s.d.Listings.GetByID(ctx, listingID)
	if err != nil {
		s.log.Error("listing load failed", "listing_id", listingID, "err", err)
		return reply(genericError)
	}
	if l == nil {
		sess.Transition(models.IdleData{})
		return reply("❌ הנכס לא נמצא.")
	}

	nctx, cancel := context.WithTimeout(ctx, s.cfg.NLUTimeout)
	ans, err := s.d.Oracle.AnswerQuestion(nctx, question, l)
	cancel()
	if err != nil {
		s.log.Warn("answer failed", "listing_id", l.ID, "err", err)
		resp := Response{
			Text:    "מצטער, לא הצלחתי לענות כרגע. תרצה שאעביר את השאלה למפרסם?",
			Buttons: [][]Button{row(Button{Text: "✉️ העבר למפרסם", Data: "contact_owner"})},
		}
		s.journal(ctx, sess, l.ID, question, resp.Text)
		return resp
	}

	text := strings.TrimSpace(ans.Text)
	if text == "" {
		text = "לא בטוח שהבנתי. נסה לנסח את השאלה אחרת, או השאר הודעה למפרסם."
	}
	resp := Response{Text: text, Action: actionForHint(ans.Hint), Listing: l}
	if resp.Action == ActionSendImages {
		resp.Media = listingMedia(l)
	}
	s.journal(ctx, sess, l.ID, question, text)
	return resp
}

func (s *SearcherFlow) journal(ctx context.Context, sess *models.Session, listingID, question, answer string) {
	now := s.d.Now()
	s.d.Journal.Record(ctx, leads.Entry{
		ListingID:        listingID,
		SearcherIdentity: sess.ChatIdentity,
		SearcherName:     sess.DisplayName,
		Messages: []models.LeadMessage{
			{SenderRole: models.SenderSearcher, Content: question, Timestamp: now},
			{SenderRole: models.SenderBot, Content: answer, Timestamp: now},
		},
	})
}

// forwardToOwner queues the searcher's message for the owner. The session
// stays in AwaitingDirectMessage when queuing fails.
func (s *SearcherFlow) forwardToOwner(ctx context.Context, sess *models.Session, listingID, text string) Response {
	l, err := s.d.Listings.GetByID(ctx, listingID)
	if err != nil {
		s.log.Error("listing load failed", "listing_id", listingID, "err", err)
		return reply(genericError)
	}
	if l == nil || l.OwnerID == "" {
		sess.Transition(models.IdleData{})
		return reply("❌ הנכס לא נמצא.")
	}
	if strings.TrimSpace(text) == "" {
		return reply("✍️ כתוב את ההודעה שתרצה להעביר למפרסם:")
	}

	_, err = s.d.Notify.Enqueue(ctx, notification.Request{
		UserID:  l.OwnerID,
		Kind:    models.KindDirectMessage,
		Title:   "✉️ הודעה חדשה מ-" + sess.DisplayName,
		Message: fmt.Sprintf("דירה: %s\n\n%s", l.Location(), text),
		Payload: map[string]string{notification.PayloadListingID: l.ID},
	})
	if err != nil {
		s.log.Error("direct message enqueue failed", "listing_id", l.ID, "err", err)
		return reply("❌ לא הצלחתי להעביר את ההודעה. נסה לשלוח אותה שוב.")
	}
	s.d.Journal.Record(ctx, leads.Entry{
		ListingID:        l.ID,
		SearcherIdentity: sess.ChatIdentity,
		SearcherName:     sess.DisplayName,
		Messages:         []models.LeadMessage{{SenderRole: models.SenderSearcher, Content: text, Timestamp: s.d.Now()}},
	})
	sess.Transition(models.TalkingAboutListingData{ListingID: l.ID})
	return Response{Text: "✅ ההודעה הועברה למפרסם. הוא יחזור אליך בהקדם.", Listing: l}
}

// search returns the listings closest to a free-text wish.
func (s *SearcherFlow) search(ctx context.Context, sess *models.Session, text string) Response {
	nctx, cancel := context.WithTimeout(ctx, s.cfg.NLUTimeout)
	vec, err := s.d.Oracle.Embed(nctx, text)
	cancel()
	if err != nil || len(vec) == 0 {
		s.log.Warn("search embedding failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply("מצטער, החיפוש לא זמין כרגע. שלח מזהה נכס כדי להתחיל.")
	}
	found, err := s.d.Listings.SearchSimilar(ctx, vec, s.cfg.SearchResults)
	if err != nil {
		s.log.Error("similarity search failed", "err", err)
		return reply(genericError)
	}
	if len(found) == 0 {
		return reply("לא מצאתי דירות מתאימות כרגע. נסה לתאר אחרת או שלח מזהה נכס.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "מצאתי %d דירות שעשויות להתאים:", len(found))
	buttons := make([][]Button, 0, len(found))
	for _, l := range found {
		fmt.Fprintf(&b, "\n• %s | %s חדרים | ₪%s", l.Location(), number(l.Rooms), number(l.Price))
		short := l.ShortID()
		buttons = append(buttons, row(Button{Text: "🏠 " + l.City + " (" + short + ")", Data: "listing " + short}))
	}
	return Response{Text: b.String(), Buttons: buttons}
}
