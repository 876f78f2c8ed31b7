package leads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/markdave123-py/Rentora/internal/core/memstore"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
	"github.com/markdave123-py/Rentora/internal/testfixtures"
)

type recordingQueue struct {
	mu   sync.Mutex
	reqs []notification.Request
}

func (q *recordingQueue) Enqueue(_ context.Context, req notification.Request) (*models.Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return &models.Notification{ID: "n", UserID: req.UserID}, nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reqs)
}

func newRecorder(t *testing.T) (*Recorder, *memstore.Store, *recordingQueue, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	store := memstore.New(memstore.WithClock(clock.NowFunc()), memstore.WithIDs(testfixtures.NewIDGenerator(0x500).NextFunc()))
	if err := store.Create(context.Background(), &models.Listing{ID: "abc12345-1", OwnerID: "owner", City: "Haifa"}); err != nil {
		t.Fatal(err)
	}
	q := &recordingQueue{}
	return NewRecorder(store, store, q, 3*time.Hour, nil), store, q, clock
}

func exchange(at time.Time, question, answer string) Entry {
	return Entry{
		ListingID:        "abc12345-1",
		SearcherIdentity: "tg:7",
		SearcherName:     "Dana",
		Messages: []models.LeadMessage{
			{SenderRole: models.SenderSearcher, Content: question, Timestamp: at},
			{SenderRole: models.SenderBot, Content: answer, Timestamp: at},
		},
	}
}

func TestRecorderNotifiesOnNewAndDormantLeads(t *testing.T) {
	t.Parallel()
	rec, store, q, clock := newRecorder(t)
	ctx := context.Background()

	if err := rec.Apply(ctx, exchange(clock.Now(), "יש חניה?", "כן, יש חניה")); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if q.count() != 1 || q.reqs[0].UserID != "owner" || q.reqs[0].Kind != models.KindLeadActivity {
		t.Fatalf("new lead should notify owner once: %+v", q.reqs)
	}

	clock.Advance(time.Hour)
	_ = rec.Apply(ctx, exchange(clock.Now(), "מעלית?", "לא"))
	if q.count() != 1 {
		t.Fatalf("active lead re-notified: %d", q.count())
	}

	clock.Advance(4 * time.Hour)
	_ = rec.Apply(ctx, exchange(clock.Now(), "עדיין פנוי?", "כן"))
	if q.count() != 2 {
		t.Fatalf("dormant lead not re-notified: %d", q.count())
	}

	lead, _, _ := store.GetOrCreateLead(ctx, "abc12345-1", "tg:7", "Dana")
	full, _ := store.GetLead(ctx, lead.ID)
	if len(full.Messages) != 6 {
		t.Fatalf("history has %d messages, want 6", len(full.Messages))
	}
}

func TestRecorderRejectsIncompleteEntries(t *testing.T) {
	t.Parallel()
	rec, _, _, _ := newRecorder(t)
	if err := rec.Apply(context.Background(), Entry{ListingID: "abc12345-1"}); err == nil {
		t.Fatal("expected error for entry without searcher")
	}
}

func TestWorkerAppliesInOrder(t *testing.T) {
	t.Parallel()
	rec, store, _, clock := newRecorder(t)
	ctx := context.Background()
	w := NewWorker(rec)
	w.Start(ctx)

	for i := 0; i < 5; i++ {
		w.Record(ctx, exchange(clock.Advance(time.Minute), string(rune('a'+i)), "ok"))
	}
	w.Stop()

	lead, _, _ := store.GetOrCreateLead(ctx, "abc12345-1", "tg:7", "Dana")
	full, _ := store.GetLead(ctx, lead.ID)
	if len(full.Messages) != 10 {
		t.Fatalf("got %d messages", len(full.Messages))
	}
	if full.Messages[0].Content != "a" || full.Messages[8].Content != "e" {
		t.Fatalf("unexpected order: %+v", full.Messages)
	}
}

func TestHandlerDecodesEntries(t *testing.T) {
	t.Parallel()
	rec, _, q, _ := newRecorder(t)
	h := Handler(rec)

	if _, err := h(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("malformed body accepted")
	}
	body := []byte(`{"listing_id":"abc12345-1","searcher_identity":"wa:972500000000","searcher_name":"Avi",
		"messages":[{"sender_role":"SEARCHER","content":"שלום","timestamp":"2025-03-10T08:00:00Z"}]}`)
	if _, err := h(context.Background(), body); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if q.count() != 1 {
		t.Fatalf("expected owner notification, got %d", q.count())
	}
}

func TestWorkerDropsWhenQueueStaysFull(t *testing.T) {
	t.Parallel()
	rec, store, _, clock := newRecorder(t)
	w := NewWorker(rec)
	w.maxWait = 10 * time.Millisecond
	ctx := context.WithoutCancel(context.Background())

	for i := 0; i < cap(w.jobs); i++ {
		w.Record(ctx, exchange(clock.Now(), "q", "a"))
	}
	done := make(chan struct{})
	go func() {
		w.Record(ctx, exchange(clock.Now(), "overflow", "a"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	w.Start(ctx)
	w.Stop()
	lead, _, _ := store.GetOrCreateLead(ctx, "abc12345-1", "tg:7", "Dana")
	full, _ := store.GetLead(ctx, lead.ID)
	if len(full.Messages) != 2*cap(w.jobs) {
		t.Fatalf("got %d messages, want %d", len(full.Messages), 2*cap(w.jobs))
	}
}
