// Package nlu turns free chat text into structured listing data, viewing slots
// and answers about a listing.
package nlu

import (
	"context"
	"strings"

	"github.com/markdave123-py/Rentora/internal/models"
)

// Hint is the follow-up action the oracle suggests alongside an answer.
type Hint string

const (
	HintNone       Hint = "NONE"
	HintSendImages Hint = "SEND_IMAGES"
	HintBookTour   Hint = "BOOK_TOUR"
)

// ParseHint maps model output onto a known hint; anything unknown is HintNone.
func ParseHint(s string) Hint {
	switch Hint(strings.ToUpper(strings.TrimSpace(s))) {
	case HintSendImages:
		return HintSendImages
	case HintBookTour:
		return HintBookTour
	}
	return HintNone
}

// Answer is a reply to a searcher question.
type Answer struct {
	Text string
	Hint Hint
}

// Oracle is the natural-language collaborator used by the flows. Unparseable
// model output yields empty results (nil draft, no slots, empty answer), never
// an error; errors mean the oracle itself could not be reached.
type Oracle interface {
	ExtractListingDetails(ctx context.Context, text string) (*models.DraftListing, error)
	ExtractAvailability(ctx context.Context, text string) ([]models.Slot, error)
	AnswerQuestion(ctx context.Context, question string, listing *models.Listing) (Answer, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}
