package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/markdave123-py/Rentora/internal/models"
)

// PublisherFlow turns a publisher's description into a confirmed listing and
// keeps the availability and media of published listings up to date.
type PublisherFlow struct {
	cfg      Config
	d        Deps
	searcher *SearcherFlow
	log      *slog.Logger
}

func (p *PublisherFlow) handleText(ctx context.Context, sess *models.Session, text string) Response {
	switch d := sess.Data.(type) {
	case models.ConfirmingListingData:
		return p.confirming(ctx, sess, d, text)
	case models.TalkingAboutListingData, models.AwaitingDirectMessageData:
		// A publisher previewing a listing talks to it like a searcher.
		return p.searcher.handleText(ctx, sess, text)
	}

	if last := sess.LastPublishedID(); last != "" && sess.Role != models.RoleSeller && MentionsAvailability(text) {
		return p.updateAvailability(ctx, sess, last, text)
	}
	if isLong(text) {
		return p.describe(ctx, sess, text)
	}
	return p.prompt(sess)
}

func (p *PublisherFlow) prompt(sess *models.Session) Response {
	if _, ok := sess.Data.(models.IdleData); !ok {
		sess.Transition(models.DescribingListingData{LastPublishedID: sess.LastPublishedID()})
	}
	return reply("היי " + sess.DisplayName + "! שלח לי תיאור נכס חדש לפרסום או עדכן פרטים על נכס קיים.")
}

func (p *PublisherFlow) updateAvailability(ctx context.Context, sess *models.Session, listingID, text string) Response {
	slots, err := p.extractSlots(ctx, text)
	if err != nil {
		p.log.Warn("availability extraction failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply("מצטער, לא הצלחתי לעבד את השעות כרגע. נסה שוב בעוד רגע.")
	}
	if len(slots) == 0 {
		return reply("לא זיהיתי מועדים בהודעה. נסה למשל: \"פנוי מחר בין 17:00 ל-19:00\".")
	}
	l, err := p.d.Listings.GetByID(ctx, listingID)
	if err != nil || l == nil {
		p.log.Warn("last published listing unavailable", "listing_id", listingID, "err", err)
		return reply("❌ הנכס לא נמצא.")
	}
	l.Availability = slots
	if err := p.d.Listings.Update(ctx, l); err != nil {
		p.log.Error("availability update failed", "listing_id", listingID, "err", err)
		return reply("❌ לא הצלחתי לשמור את השעות. נסה שוב.")
	}
	p.log.Info("availability updated", "listing_id", listingID, "slots", len(slots))
	return reply("מעולה! הגדרתי את מועדי הביקור. שוכרים יכולים לתאם כעת. 📅")
}

func (p *PublisherFlow) extractSlots(ctx context.Context, text string) ([]models.Slot, error) {
	nctx, cancel := context.WithTimeout(ctx, p.cfg.NLUTimeout)
	defer cancel()
	slots, err := p.d.Oracle.ExtractAvailability(nctx, text)
	if err != nil {
		return nil, err
	}
	var valid []models.Slot
	for _, s := range slots {
		if s.Valid() {
			valid = append(valid, s)
		}
	}
	return valid, nil
}

// describe extracts a draft from free text. Text without a recognizable city
// is not a listing and gets the generic prompt.
func (p *PublisherFlow) describe(ctx context.Context, sess *models.Session, text string) Response {
	nctx, cancel := context.WithTimeout(ctx, p.cfg.NLUTimeout)
	defer cancel()
	draft, err := p.d.Oracle.ExtractListingDetails(nctx, text)
	if err != nil {
		p.log.Warn("listing extraction failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply("מצטער, לא הצלחתי לעבד את התיאור כרגע. נסה לשלוח אותו שוב בעוד רגע.")
	}
	if draft == nil || strings.TrimSpace(draft.City) == "" {
		return p.prompt(sess)
	}
	if prev, ok := sess.Data.(models.ConfirmingListingData); ok {
		draft.Media = append(prev.Draft.Media, draft.Media...)
	}
	sess.Transition(models.ConfirmingListingData{Draft: *draft, LastPublishedID: sess.LastPublishedID()})

	kind := "דירה להשכרה"
	if sess.Role == models.RoleSeller {
		kind = "דירה למכירה"
	}
	return reply(fmt.Sprintf("זיהיתי %s ב-%s:\n💰 מחיר: %s\n🏠 חדרים: %s\n\n📸 שלח תמונות עכשיו, ובסיום כתוב \"כן\" לאישור.",
		kind, draft.City, number(draft.Price), number(draft.Rooms)))
}

func number(v float64) string {
	if v <= 0 {
		return "לא צוין"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (p *PublisherFlow) confirming(ctx context.Context, sess *models.Session, d models.ConfirmingListingData, text string) Response {
	if MentionsAvailability(text) {
		slots, err := p.extractSlots(ctx, text)
		if err != nil {
			p.log.Warn("availability extraction failed", "chat_identity", sess.ChatIdentity, "err", err)
		}
		if len(slots) > 0 {
			d.Draft.Availability = slots
			sess.Transition(d)
			return reply("רשמתי את השעות! 📅\nהאם תרצה לאשר את הפרסום? (כתוב 'כן')")
		}
	}
	if IsNegative(text) {
		p.dropDraft(ctx, sess)
		sess.Transition(models.IdleData{LastPublishedID: d.LastPublishedID})
		return reply("הפרסום בוטל.")
	}
	if IsAffirmative(text) {
		return p.finalize(ctx, sess, d)
	}
	return reply("האם לאשר את הפרסום? (כן/לא)")
}

// dropDraft deletes the stored media of an unpublished draft. The session
// state is left for the caller to change.
func (p *PublisherFlow) dropDraft(ctx context.Context, sess *models.Session) {
	d, ok := sess.Data.(models.ConfirmingListingData)
	if !ok || len(d.Draft.Media) == 0 || p.d.Media == nil {
		return
	}
	if err := p.d.Media.Discard(ctx, d.Draft.Media); err != nil {
		p.log.Warn("draft media cleanup failed", "chat_identity", sess.ChatIdentity, "err", err)
	}
}

// finalize persists the draft. On failure the session stays in
// ConfirmingListing so the publisher can confirm again.
func (p *PublisherFlow) finalize(ctx context.Context, sess *models.Session, d models.ConfirmingListingData) Response {
	owner, err := p.d.Accounts.Ensure(ctx, sess.ChatIdentity, sess.DisplayName)
	if err != nil {
		p.log.Error("resolve publisher account failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply("❌ לא הצלחתי לשמור את הנכס. כתוב \"כן\" כדי לנסות שוב.")
	}
	sess.LinkedAccountID = owner.ID

	draft := d.Draft
	images, videos := models.SplitMedia(draft.Media)
	l := &models.Listing{
		ID:           p.d.NewID(),
		OwnerID:      owner.ID,
		City:         draft.City,
		Address:      draft.Address,
		Price:        draft.Price,
		Rooms:        draft.Rooms,
		Description:  draft.Description,
		ContactPhone: draft.ContactPhone,
		Images:       images,
		Videos:       videos,
		Availability: draft.Availability,
	}
	if l.ContactPhone == "" {
		l.ContactPhone = owner.Phone
	}

	nctx, cancel := context.WithTimeout(ctx, p.cfg.NLUTimeout)
	vec, err := p.d.Oracle.Embed(nctx, searchText(l))
	cancel()
	if err != nil {
		p.log.Warn("listing embedding failed, publishing without it", "chat_identity", sess.ChatIdentity, "err", err)
	}
	l.Embedding = vec

	if err := p.d.Listings.Create(ctx, l); err != nil {
		p.log.Error("create listing failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply("❌ לא הצלחתי לשמור את הנכס. כתוב \"כן\" כדי לנסות שוב.")
	}
	sess.Transition(models.IdleData{LastPublishedID: l.ID})
	p.log.Info("listing published", "listing_id", l.ID, "owner_id", owner.ID, "media", len(images)+len(videos))

	short := l.ShortID()
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 הנכס פורסם בהצלחה!\nמזהה: %s\nלינק לשיתוף: https://t.me/%s?start=%s", short, p.cfg.BotUsername, short)
	if p.cfg.WhatsAppNumber != "" {
		fmt.Fprintf(&b, "\nשיתוף בוואטסאפ: https://wa.me/%s?text=%s", p.cfg.WhatsAppNumber, url.QueryEscape(short))
	}
	return Response{Text: b.String(), Action: ActionPublished}
}

// searchText is the text embedded for semantic search.
func searchText(l *models.Listing) string {
	parts := []string{l.City}
	if l.Address != "" {
		parts = append(parts, l.Address)
	}
	if l.Rooms > 0 {
		parts = append(parts, number(l.Rooms)+" חדרים")
	}
	if l.Description != "" {
		parts = append(parts, l.Description)
	}
	return strings.Join(parts, " ")
}

func (p *PublisherFlow) handleMedia(ctx context.Context, sess *models.Session, ref models.MediaRef) Response {
	switch d := sess.Data.(type) {
	case models.ConfirmingListingData:
		d.Draft.Media = append(d.Draft.Media, ref)
		sess.Transition(d)
		return reply("הקובץ נוסף! שלח עוד או כתוב \"כן\" לסיום.")
	case models.IdleData:
		if d.LastPublishedID == "" {
			break
		}
		if err := p.d.Listings.AppendMedia(ctx, d.LastPublishedID, []models.MediaRef{ref}); err != nil {
			p.log.Warn("append media failed", "listing_id", d.LastPublishedID, "err", err)
			return reply("❌ לא הצלחתי להוסיף את הקובץ לנכס. נסה שוב.")
		}
		return reply("הקובץ נוסף לנכס שפרסמת! 📸")
	}
	return reply("כדי לשלוח מדיה, התחל קודם תיאור נכס.")
}

// handleDocument reads a brochure and treats its text as a description.
func (p *PublisherFlow) handleDocument(ctx context.Context, sess *models.Session, doc Document) Response {
	if !p.d.Brochures.Supports(doc.ContentType, doc.FileName) {
		return reply("אפשר לשלוח מסמך PDF או Word עם תיאור הנכס, או פשוט לכתוב אותו כאן.")
	}
	text, archived, err := p.d.Brochures.Read(ctx, doc.Data, doc.ContentType, doc.FileName)
	if err != nil {
		p.log.Warn("brochure read failed", "chat_identity", sess.ChatIdentity, "file", doc.FileName, "err", err)
		return reply("מצטער, לא הצלחתי לקרוא את המסמך. נסה לשלוח את התיאור כטקסט.")
	}
	if archived != nil {
		p.log.Info("brochure archived", "chat_identity", sess.ChatIdentity, "reference", archived.Reference)
	}
	if !isLong(text) {
		return reply("המסמך קצר מדי. שלח תיאור מלא של הנכס (לפחות 40 תווים).")
	}
	return p.describe(ctx, sess, text)
}
