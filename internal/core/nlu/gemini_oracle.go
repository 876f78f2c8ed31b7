package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

const listingPrompt = `You extract apartment listing details from a message written by a property owner or agent.
Messages are usually Hebrew. Reply with one JSON object and nothing else:
{"city": string, "address": string, "price": number, "rooms": number, "description": string, "contact_phone": string}
Use "" or 0 for anything the message does not state. "description" is a short neutral summary in the message language.
If the message is not a property description, reply with {"city": ""}.`

const availabilityPrompt = `You extract viewing availability from a message written by a property owner.
The current time is %s and the owner's time zone is %s.
Reply with a JSON array of {"start": RFC3339 timestamp, "end": RFC3339 timestamp} objects in the order they are mentioned,
resolving relative days ("tomorrow", "מחר", "יום שלישי") against the current time. Reply with [] if no times are given.`

const answerPrompt = `You are a rental assistant answering a prospective tenant's question about one apartment.
Answer only from the listing data below, briefly, in the language of the question. If the data does not contain the answer,
say you will check with the owner.
Reply with one JSON object: {"answer": string, "action": "SEND_IMAGES" | "BOOK_TOUR" | "NONE"}.
Use SEND_IMAGES when the user asks to see pictures or videos, BOOK_TOUR when the user wants to visit or schedule a viewing.`

// GeminiOracle implements Oracle on top of a generic LLM and embedder.
type GeminiOracle struct {
	llm      core.LLMProvider
	embedder core.EmbeddingProvider
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewGeminiOracle builds the oracle. loc resolves relative times in availability
// messages; nil means UTC.
func NewGeminiOracle(llm core.LLMProvider, embedder core.EmbeddingProvider, loc *time.Location, now func() time.Time, logger *slog.Logger) *GeminiOracle {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiOracle{
		llm:      llm,
		embedder: embedder,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		loc:      loc,
		now:      now,
		logger:   logger.With("component", "nlu"),
	}
}

type listingReply struct {
	City         string     `json:"city"`
	Address      string     `json:"address"`
	Price        flexNumber `json:"price"`
	Rooms        flexNumber `json:"rooms"`
	Description  string     `json:"description"`
	ContactPhone string     `json:"contact_phone"`
}

func (o *GeminiOracle) ExtractListingDetails(ctx context.Context, text string) (*models.DraftListing, error) {
	out, err := o.llm.Generate(ctx, listingPrompt, text, true)
	if err != nil {
		return nil, err
	}

	var r listingReply
	if err := json.Unmarshal([]byte(jsonBody(out, '{', '}')), &r); err != nil {
		o.logger.Warn("unparseable listing extraction", "error", err)
		return nil, nil
	}

	draft := &models.DraftListing{
		City:         strings.TrimSpace(r.City),
		Address:      strings.TrimSpace(r.Address),
		Price:        float64(r.Price),
		Rooms:        float64(r.Rooms),
		Description:  strings.TrimSpace(r.Description),
		ContactPhone: strings.TrimSpace(r.ContactPhone),
	}
	if draft.Description == "" {
		draft.Description = strings.TrimSpace(text)
	}
	if err := o.validate.Struct(draft); err != nil {
		return nil, nil
	}
	return draft, nil
}

type slotReply struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (o *GeminiOracle) ExtractAvailability(ctx context.Context, text string) ([]models.Slot, error) {
	prompt := fmt.Sprintf(availabilityPrompt, o.now().In(o.loc).Format(time.RFC3339), o.loc.String())
	out, err := o.llm.Generate(ctx, prompt, text, true)
	if err != nil {
		return nil, err
	}

	var raw []slotReply
	if err := json.Unmarshal([]byte(jsonBody(out, '[', ']')), &raw); err != nil {
		o.logger.Warn("unparseable availability extraction", "error", err)
		return nil, nil
	}

	slots := make([]models.Slot, 0, len(raw))
	for _, r := range raw {
		start, err1 := time.Parse(time.RFC3339, strings.TrimSpace(r.Start))
		end, err2 := time.Parse(time.RFC3339, strings.TrimSpace(r.End))
		if err1 != nil || err2 != nil {
			continue
		}
		s := models.Slot{Start: start.UTC(), End: end.UTC()}
		if err := o.validate.Struct(s); err != nil {
			continue
		}
		slots = append(slots, s)
	}
	return slots, nil
}

type answerReply struct {
	Answer string `json:"answer"`
	Action string `json:"action"`
}

func (o *GeminiOracle) AnswerQuestion(ctx context.Context, question string, listing *models.Listing) (Answer, error) {
	out, err := o.llm.Generate(ctx, answerPrompt, listingContext(listing)+"\n\nQuestion: "+question, true)
	if err != nil {
		return Answer{}, err
	}

	var r answerReply
	if err := json.Unmarshal([]byte(jsonBody(out, '{', '}')), &r); err != nil {
		o.logger.Warn("unparseable answer", "error", err)
		return Answer{Hint: HintNone}, nil
	}
	return Answer{Text: strings.TrimSpace(r.Answer), Hint: ParseHint(r.Action)}, nil
}

func (o *GeminiOracle) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

func listingContext(l *models.Listing) string {
	if l == nil {
		return "Listing: unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Listing %s\nCity: %s\n", l.ShortID(), l.City)
	if l.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", l.Address)
	}
	if l.Price > 0 {
		fmt.Fprintf(&b, "Price: %s\n", strconv.FormatFloat(l.Price, 'f', -1, 64))
	}
	if l.Rooms > 0 {
		fmt.Fprintf(&b, "Rooms: %s\n", strconv.FormatFloat(l.Rooms, 'f', -1, 64))
	}
	fmt.Fprintf(&b, "Photos: %d, videos: %d, viewing slots: %d\n", len(l.Images), len(l.Videos), len(l.Availability))
	fmt.Fprintf(&b, "Description: %s", l.Description)
	return b.String()
}

// jsonBody cuts model output down to the outermost JSON value delimited by
// open and close, dropping code fences and prose around it.
func jsonBody(s string, open, close byte) string {
	i := strings.IndexByte(s, open)
	j := strings.LastIndexByte(s, close)
	if i < 0 || j < i {
		return s
	}
	return s[i : j+1]
}

// flexNumber accepts 5200, "5200", "5,200 ₪" and "3.5".
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexNumber(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*f = 0
		return nil
	}
	var digits strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexNumber(n)
	return nil
}

var _ Oracle = (*GeminiOracle)(nil)
