package nlu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/markdave123-py/Rentora/internal/models"
)

type llmStub struct {
	reply  string
	err    error
	system string
	user   string
}

func (l *llmStub) Generate(ctx context.Context, systemPrompt, userPrompt string, jsonOutput bool) (string, error) {
	l.system, l.user = systemPrompt, userPrompt
	return l.reply, l.err
}

type embedStub struct {
	vecs [][]float32
	err  error
}

func (e *embedStub) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.vecs, e.err
}

func newOracle(reply string) (*GeminiOracle, *llmStub) {
	stub := &llmStub{reply: reply}
	now := func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
	return NewGeminiOracle(stub, &embedStub{vecs: [][]float32{{0.1, 0.2}}}, nil, now, nil), stub
}

func TestExtractListingDetails(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		reply    string
		wantNil  bool
		wantCity string
		price    float64
	}{
		{name: "plain json", reply: `{"city":"Tel Aviv","price":6500,"rooms":3}`, wantCity: "Tel Aviv", price: 6500},
		{name: "fenced with string price", reply: "```json\n{\"city\":\"חיפה\",\"price\":\"5,200 ₪\",\"rooms\":\"3.5\"}\n```", wantCity: "חיפה", price: 5200},
		{name: "no city", reply: `{"city":""}`, wantNil: true},
		{name: "garbage", reply: "I cannot help with that", wantNil: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o, _ := newOracle(tc.reply)
			draft, err := o.ExtractListingDetails(context.Background(), "דירת 3 חדרים מרווחת בחיפה, 5200 לחודש, כניסה מיידית")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantNil {
				if draft != nil {
					t.Fatalf("expected nil draft, got %+v", draft)
				}
				return
			}
			if draft == nil || draft.City != tc.wantCity || draft.Price != tc.price {
				t.Fatalf("unexpected draft %+v", draft)
			}
			if draft.Description == "" {
				t.Fatal("description should fall back to the message")
			}
		})
	}
}

func TestExtractListingDetailsPropagatesTransportError(t *testing.T) {
	t.Parallel()
	o, stub := newOracle("")
	stub.err = errors.New("quota")
	if _, err := o.ExtractListingDetails(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractAvailabilityDropsInvalidSlots(t *testing.T) {
	t.Parallel()
	o, stub := newOracle(`[
		{"start":"2025-05-02T10:00:00+03:00","end":"2025-05-02T11:00:00+03:00"},
		{"start":"2025-05-02T12:00:00Z","end":"2025-05-02T11:00:00Z"},
		{"start":"tomorrow","end":"later"}
	]`)

	slots, err := o.ExtractAvailability(context.Background(), "פנוי מחר בעשר")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("got %d slots, want 1: %+v", len(slots), slots)
	}
	want := time.Date(2025, 5, 2, 7, 0, 0, 0, time.UTC)
	if !slots[0].Start.Equal(want) {
		t.Fatalf("start = %v, want %v", slots[0].Start, want)
	}
	if stub.system == "" {
		t.Fatal("availability prompt not sent")
	}
}

func TestAnswerQuestion(t *testing.T) {
	t.Parallel()
	o, stub := newOracle(`{"answer":"Yes, there is parking.","action":"book_tour"}`)
	listing := &models.Listing{ID: "abcd1234-x", City: "Haifa", Description: "parking included"}

	ans, err := o.AnswerQuestion(context.Background(), "יש חניה?", listing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "Yes, there is parking." || ans.Hint != HintBookTour {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if stub.user == "" {
		t.Fatal("listing context missing from prompt")
	}

	o, _ = newOracle("not json")
	ans, err = o.AnswerQuestion(context.Background(), "?", listing)
	if err != nil || ans.Text != "" || ans.Hint != HintNone {
		t.Fatalf("malformed output should give empty answer, got %+v %v", ans, err)
	}
}

func TestParseHint(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Hint{"SEND_IMAGES": HintSendImages, " book_tour ": HintBookTour, "SHOUT": HintNone, "": HintNone} {
		if got := ParseHint(in); got != want {
			t.Errorf("ParseHint(%q) = %s, want %s", in, got, want)
		}
	}
}
