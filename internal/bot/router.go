package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Rentora/internal/auth"
	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/core/nlu"
	"github.com/markdave123-py/Rentora/internal/delivery"
	"github.com/markdave123-py/Rentora/internal/leads"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
	"github.com/markdave123-py/Rentora/internal/services"
)

const genericError = "משהו השתבש, נסה שוב בעוד רגע."

// Config holds the knobs of the conversation flows.
type Config struct {
	BotUsername     string
	FrontendURL     string
	WhatsAppNumber  string
	Location        *time.Location
	MeetingDuration time.Duration
	NLUTimeout      time.Duration
	EmailTimeout    time.Duration
	SearchResults   int
}

func (c *Config) defaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MeetingDuration <= 0 {
		c.MeetingDuration = 30 * time.Minute
	}
	if c.NLUTimeout <= 0 {
		c.NLUTimeout = 20 * time.Second
	}
	if c.EmailTimeout <= 0 {
		c.EmailTimeout = 15 * time.Second
	}
	if c.SearchResults <= 0 {
		c.SearchResults = 3
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
}

// Deps are the collaborators of the flows. Mailer, Calendar, Brochures,
// Login and Journal are optional.
type Deps struct {
	Sessions  core.SessionStore
	Listings  core.ListingGateway
	Leads     core.LeadGateway
	Meetings  core.MeetingStore
	Accounts  *services.AccountService
	Oracle    nlu.Oracle
	Notify    notification.Enqueuer
	Journal   leads.Journal
	Mailer    delivery.Mailer
	Calendar  delivery.Calendar
	Brochures *services.BrochureService
	Media     MediaStore
	Login     *auth.LoginLinks
	Sender    Sender
	Now       func() time.Time
	NewID     func() string
	Logger    *slog.Logger
}

// MediaStore deletes stored media copies that will never be published.
type MediaStore interface {
	Discard(ctx context.Context, refs []models.MediaRef) error
}

// Router loads the session of each event and dispatches it to a flow.
type Router struct {
	cfg       Config
	sessions  core.SessionStore
	accounts  *services.AccountService
	login     *auth.LoginLinks
	now       func() time.Time
	log       *slog.Logger
	publisher *PublisherFlow
	searcher  *SearcherFlow
	booking   *Booking
}

func NewRouter(cfg Config, d Deps) *Router {
	cfg.defaults()
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Journal == nil {
		d.Journal = discardJournal{}
	}
	logger := d.Logger.With("component", "bot")
	f := displayFormat{loc: cfg.Location}

	searcher := &SearcherFlow{cfg: cfg, d: d, f: f, log: logger.With("flow", "searcher")}
	return &Router{
		cfg:       cfg,
		sessions:  d.Sessions,
		accounts:  d.Accounts,
		login:     d.Login,
		now:       d.Now,
		log:       logger,
		searcher:  searcher,
		publisher: &PublisherFlow{cfg: cfg, d: d, searcher: searcher, log: logger.With("flow", "publisher")},
		booking:   &Booking{cfg: cfg, d: d, f: f, searcher: searcher, log: logger.With("flow", "booking")},
	}
}

type discardJournal struct{}

func (discardJournal) Record(context.Context, leads.Entry) {}

// Handle routes ev and returns the responses for its chat identity in order:
// the flow's reply followed by the slot picker or listing menu it implies.
func (r *Router) Handle(ctx context.Context, ev Event) []Response {
	resp := r.Route(ctx, ev)
	out := []Response{resp}
	if resp.Listing == nil {
		return out
	}
	switch resp.Action {
	case ActionBookTour:
		out = append(out, r.searcher.slots(resp.Listing))
	case ActionShowMenu:
	default:
		out = append(out, r.searcher.menu(resp.Listing))
	}
	return out
}

// Route loads or creates the session, runs the matching flow and persists the
// resulting session.
func (r *Router) Route(ctx context.Context, ev Event) Response {
	sess, err := r.loadSession(ctx, ev)
	if err != nil {
		r.log.Error("load session failed", "chat_identity", ev.ChatIdentity, "err", err)
		return reply(genericError)
	}
	resp := r.dispatch(ctx, sess, ev)
	sess.UpdatedAt = r.now()
	if err := r.sessions.SaveSession(ctx, sess); err != nil {
		r.log.Error("save session failed", "chat_identity", ev.ChatIdentity, "state", sess.State(), "err", err)
	}
	return resp
}

func (r *Router) loadSession(ctx context.Context, ev Event) (*models.Session, error) {
	if ev.ChatIdentity == "" {
		return nil, errors.New("event without chat identity")
	}
	sess, err := r.sessions.GetSession(ctx, ev.ChatIdentity)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = models.NewSession(ev.ChatIdentity, ev.DisplayName, r.now())
	}
	if ev.DisplayName != "" {
		sess.DisplayName = ev.DisplayName
	}
	if sess.LinkedAccountID == "" {
		acct, err := r.accounts.Ensure(ctx, ev.ChatIdentity, sess.DisplayName)
		if err != nil {
			r.log.Warn("ensure account failed", "chat_identity", ev.ChatIdentity, "err", err)
			return sess, nil
		}
		sess.LinkedAccountID = acct.ID
		if sess.Role == models.RoleUnset {
			sess.Role = acct.Role
		}
	}
	return sess, nil
}

func (r *Router) dispatch(ctx context.Context, sess *models.Session, ev Event) Response {
	text := strings.TrimSpace(ev.Text)

	if kind, target := linkTarget(text); kind != linkNone {
		return r.link(ctx, sess, kind, target)
	}
	if isRestart(text) && ev.Callback == "" {
		r.publisher.dropDraft(ctx, sess)
		sess.Transition(models.StartData{})
		return r.welcome(sess)
	}
	if resp, gated := r.gate(ctx, sess); gated {
		return resp
	}

	if ev.Callback != "" {
		if resp, ok := r.callback(ctx, sess, ev.Callback); ok {
			return resp
		}
		text = strings.TrimSpace(ev.Callback)
	}

	if ev.Media != nil || ev.Document != nil {
		if !sess.Role.IsPublisher() {
			return reply("מצטער, רק מפרסמים יכולים לשלוח מדיה למערכת.")
		}
		if ev.Document != nil {
			return r.publisher.handleDocument(ctx, sess, *ev.Document)
		}
		return r.publisher.handleMedia(ctx, sess, *ev.Media)
	}

	if sess.Role == models.RoleUnset && onboarding(sess.State()) {
		if id, ok := lookupTarget(text); ok {
			return r.searcher.lookup(ctx, sess, id)
		}
		if sess.State() == models.StateAwaitingRoleChoice {
			switch text {
			case "1":
				return r.chooseRole(ctx, sess, models.RoleSearcher)
			case "2":
				return r.publisherChoice(sess)
			}
		}
		return r.welcome(sess)
	}

	if id, ok := lookupTarget(text); ok {
		return r.searcher.lookup(ctx, sess, id)
	}
	if sess.Role.IsPublisher() {
		return r.publisher.handleText(ctx, sess, text)
	}
	return r.searcher.handleText(ctx, sess, text)
}

// onboarding reports whether a session without a role still has to pick one.
// Searchers who arrived through a deep link keep talking without choosing.
func onboarding(s models.State) bool {
	return s == models.StateStart || s == models.StateAwaitingRoleChoice
}

func (r *Router) callback(ctx context.Context, sess *models.Session, data string) (Response, bool) {
	switch {
	case data == "set_role_searcher":
		return r.chooseRole(ctx, sess, models.RoleSearcher), true
	case data == "set_role_publisher":
		return r.publisherChoice(sess), true
	case data == "role_landlord":
		return r.chooseRole(ctx, sess, models.RoleLandlord), true
	case data == "role_seller":
		return r.chooseRole(ctx, sess, models.RoleSeller), true
	case data == "role_agent":
		return r.chooseRole(ctx, sess, models.RoleAgent), true
	case strings.HasPrefix(data, bookSlotPrefix):
		return r.booking.request(ctx, sess, data), true
	case strings.HasPrefix(data, confirmPrefix):
		return r.booking.confirm(ctx, sess, data), true
	}
	return r.searcher.handleCallback(ctx, sess, data)
}

func (r *Router) link(ctx context.Context, sess *models.Session, kind linkKind, target string) Response {
	var (
		acct *models.Account
		err  error
	)
	if kind == linkAccount {
		acct, err = r.accounts.LinkByID(ctx, target, sess.ChatIdentity)
	} else {
		acct, err = r.accounts.LinkByEmail(ctx, target, sess.ChatIdentity)
	}
	if err != nil {
		r.log.Error("link account failed", "chat_identity", sess.ChatIdentity, "err", err)
		return reply(genericError)
	}
	if acct == nil {
		if kind == linkEmail {
			return reply("❌ לא מצאתי משתמש עם המייל הזה במערכת.")
		}
		return reply("❌ הקישור אינו תקף. נסה שוב מהאפליקציה.")
	}

	sess.LinkedAccountID = acct.ID
	if acct.Role != models.RoleUnset {
		sess.Role = acct.Role
	}
	if sess.State() == models.StateStart || sess.State() == models.StateAwaitingRoleChoice {
		sess.Transition(models.IdleData{})
	}
	if kind == linkEmail {
		return reply("✅ החשבון של " + target + " קושר לצ'אט שלך בהצלחה!")
	}
	name := acct.Name
	if name == "" {
		name = sess.DisplayName
	}
	return reply("🎉 החשבון שלך קושר בהצלחה! ברוך הבא " + name + ".\nעכשיו תוכל לקבל עדכונים ולידים ישירות לכאן.")
}

// gate stops publishers whose plan has expired and hands them a login link.
func (r *Router) gate(ctx context.Context, sess *models.Session) (Response, bool) {
	if !sess.Role.IsPublisher() || sess.LinkedAccountID == "" {
		return Response{}, false
	}
	acct, err := r.accounts.Get(ctx, sess.LinkedAccountID)
	if err != nil {
		r.log.Warn("gate lookup failed", "account_id", sess.LinkedAccountID, "err", err)
		return Response{}, false
	}
	if acct == nil || acct.PlanExpiresAt == nil || acct.PlanExpiresAt.After(r.now()) {
		return Response{}, false
	}

	resp := Response{
		Text:   "היי! ניהול הנכסים שלך מתבצע כעת דרך האפליקציה שלנו.\nהמנוי שלך הסתיים, היכנס כדי לחדש אותו.",
		Action: ActionRequireAuth,
	}
	if r.login != nil {
		link, err := r.login.FastLoginURL(acct.ID, string(acct.Role), acct.Phone)
		if err != nil {
			r.log.Warn("fast login link failed", "account_id", acct.ID, "err", err)
		} else {
			resp.Buttons = [][]Button{row(Button{Text: "🔑 כניסה מהירה לאפליקציה", URL: link})}
		}
	}
	return resp, true
}

func (r *Router) welcome(sess *models.Session) Response {
	if sess.Role == models.RoleUnset {
		sess.Transition(models.AwaitingRoleChoiceData{})
	}
	return Response{
		Text: "ברוך הבא " + sess.DisplayName + "! איך אוכל לעזור היום?\n(אפשר גם לכתוב 1 לחיפוש או 2 לפרסום)",
		Buttons: [][]Button{
			row(Button{Text: "🔍 אני מחפש דירה", Data: "set_role_searcher"}),
			row(Button{Text: "🏠 אני מפרסם (משכיר/מוכר)", Data: "set_role_publisher"}),
		},
	}
}

func (r *Router) publisherChoice(sess *models.Session) Response {
	sess.Transition(models.AwaitingRoleChoiceData{})
	return Response{
		Text: "נשמח לעזור לך לפרסם! מי אתה?",
		Buttons: [][]Button{
			row(Button{Text: "🔑 משכיר", Data: "role_landlord"}),
			row(Button{Text: "🏷️ מוכר", Data: "role_seller"}),
			row(Button{Text: "💼 מתווך", Data: "role_agent"}),
		},
	}
}

func (r *Router) chooseRole(ctx context.Context, sess *models.Session, role models.Role) Response {
	sess.Role = role
	if sess.LinkedAccountID != "" {
		if err := r.accounts.SetRole(ctx, sess.LinkedAccountID, role); err != nil {
			r.log.Warn("persist role failed", "account_id", sess.LinkedAccountID, "err", err)
		}
	}
	if role.IsPublisher() {
		sess.Transition(models.DescribingListingData{LastPublishedID: sess.LastPublishedID()})
		return reply("מעולה! כדי להתחיל בפרסום, שלח לי תיאור של הנכס (לפחות 40 תווים).")
	}
	sess.Transition(models.IdleData{})
	return reply("מעולה! הגדרתי אותך כמחפש דירה. שלח לי מזהה דירה או תיאור של מה שאתה מחפש.")
}
