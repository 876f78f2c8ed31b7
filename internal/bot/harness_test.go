package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/markdave123-py/Rentora/internal/auth"
	"github.com/markdave123-py/Rentora/internal/core/memstore"
	"github.com/markdave123-py/Rentora/internal/core/nlu"
	"github.com/markdave123-py/Rentora/internal/delivery"
	"github.com/markdave123-py/Rentora/internal/leads"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
	"github.com/markdave123-py/Rentora/internal/services"
	"github.com/markdave123-py/Rentora/internal/session"
	"github.com/markdave123-py/Rentora/internal/testfixtures"
)

type fakeOracle struct {
	mu         sync.Mutex
	draft      *models.DraftListing
	slots      []models.Slot
	answer     nlu.Answer
	answerErr  error
	vec        []float32
	delay      time.Duration
	panicOnAsk bool
	extracts   int
}

func (o *fakeOracle) ExtractListingDetails(context.Context, string) (*models.DraftListing, error) {
	o.mu.Lock()
	o.extracts++
	delay, draft := o.delay, o.draft
	o.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if draft == nil {
		return nil, nil
	}
	c := *draft
	return &c, nil
}

func (o *fakeOracle) ExtractAvailability(context.Context, string) ([]models.Slot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Slot(nil), o.slots...), nil
}

func (o *fakeOracle) AnswerQuestion(context.Context, string, *models.Listing) (nlu.Answer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panicOnAsk {
		panic("oracle exploded")
	}
	return o.answer, o.answerErr
}

func (o *fakeOracle) Embed(context.Context, string) ([]float32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vec == nil {
		return []float32{1, 0, 0}, nil
	}
	return o.vec, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]Response
	fail map[string]error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][]Response{}, fail: map[string]error{}}
}

func (s *recordingSender) Send(_ context.Context, chat string, r Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[chat]; err != nil {
		return err
	}
	s.sent[chat] = append(s.sent[chat], r)
	return nil
}

func (s *recordingSender) failFor(chat string, err error) {
	s.mu.Lock()
	s.fail[chat] = err
	s.mu.Unlock()
}

func (s *recordingSender) all(chat string) []Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Response(nil), s.sent[chat]...)
}

func (s *recordingSender) reset(chat string) {
	s.mu.Lock()
	delete(s.sent, chat)
	s.mu.Unlock()
}

type failingMailer struct {
	mu    sync.Mutex
	calls int
}

func (m *failingMailer) Send(context.Context, []string, string, string) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return errors.New("smtp: connection refused")
}

type recordingCalendar struct {
	mu     sync.Mutex
	events []delivery.Event
}

func (c *recordingCalendar) CreateEvent(_ context.Context, ev delivery.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return "evt-1", nil
}

type harness struct {
	t        *testing.T
	clock    *testfixtures.Clock
	store    *memstore.Store
	oracle   *fakeOracle
	sender   *recordingSender
	mailer   *failingMailer
	calendar *recordingCalendar
	media    *recordingMedia
	engine   *Engine
}

type recordingMedia struct {
	mu        sync.Mutex
	discarded []models.MediaRef
}

func (m *recordingMedia) Discard(_ context.Context, refs []models.MediaRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded = append(m.discarded, refs...)
	return nil
}

func (m *recordingMedia) all() []models.MediaRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MediaRef(nil), m.discarded...)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator(0x1000)
	store := memstore.New(memstore.WithClock(clock.Now), memstore.WithIDs(ids.NextFunc()))
	queue := notification.NewQueue(store, ids.NextFunc(), logger)
	h := &harness{
		t:        t,
		clock:    clock,
		store:    store,
		oracle:   &fakeOracle{},
		sender:   newRecordingSender(),
		mailer:   &failingMailer{},
		calendar: &recordingCalendar{},
		media:    &recordingMedia{},
	}
	router := NewRouter(Config{
		BotUsername:    "rentora_bot",
		FrontendURL:    "http://localhost:4200",
		WhatsAppNumber: "972500000000",
	}, Deps{
		Sessions: store,
		Listings: store,
		Leads:    store,
		Meetings: store,
		Accounts: services.NewAccountService(store, ids.NextFunc(), "972", logger),
		Oracle:   h.oracle,
		Notify:   queue,
		Journal:  leads.NewDirect(leads.NewRecorder(store, store, queue, 3*time.Hour, logger)),
		Mailer:   h.mailer,
		Calendar: h.calendar,
		Media:    h.media,
		Login:    auth.NewLoginLinks(auth.NewIssuer("test-secret", clock.Now), "https://app.example.com"),
		Sender:   h.sender,
		Now:      clock.Now,
		NewID:    ids.NextFunc(),
		Logger:   logger,
	})
	h.engine = NewEngine(router, session.NewSerializer(logger), h.sender, logger)
	return h
}

// processNow runs ev in its turn on the serializer and waits for its result.
func (e *Engine) processNow(ctx context.Context, ev Event) error {
	done := make(chan error, 1)
	e.serial.Submit(ev.ChatIdentity, func() { done <- e.process(ctx, ev) })
	return <-done
}

// do processes one event and returns the responses it produced for chat.
func (h *harness) do(ev Event) []Response {
	h.t.Helper()
	h.sender.reset(ev.ChatIdentity)
	if ev.DisplayName == "" {
		ev.DisplayName = "Dana"
	}
	if err := h.engine.processNow(context.Background(), ev); err != nil {
		h.t.Fatalf("process %+v: %v", ev, err)
	}
	return h.sender.all(ev.ChatIdentity)
}

func (h *harness) text(chat, text string) []Response {
	return h.do(Event{ChatIdentity: chat, Text: text})
}

func (h *harness) tap(chat, data string) []Response {
	return h.do(Event{ChatIdentity: chat, Callback: data})
}

func (h *harness) session(chat string) *models.Session {
	h.t.Helper()
	s, err := h.store.GetSession(context.Background(), chat)
	if err != nil || s == nil {
		h.t.Fatalf("session %s: %v %v", chat, s, err)
	}
	return s
}

func (h *harness) addAccount(a models.Account) {
	h.t.Helper()
	if err := h.store.CreateAccount(context.Background(), &a); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) addListing(l models.Listing) *models.Listing {
	h.t.Helper()
	if err := h.store.Create(context.Background(), &l); err != nil {
		h.t.Fatal(err)
	}
	return &l
}

func first(t *testing.T, rs []Response) Response {
	t.Helper()
	if len(rs) == 0 {
		t.Fatal("no responses")
	}
	return rs[0]
}

func mustContain(t *testing.T, r Response, sub string) {
	t.Helper()
	if !strings.Contains(r.Text, sub) {
		t.Fatalf("response %q does not contain %q", r.Text, sub)
	}
}

func hasButton(r Response, data string) bool {
	for _, row := range r.Buttons {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}
