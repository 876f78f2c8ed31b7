// Package bot is the conversation and booking orchestrator: it keeps one
// session per chat identity, routes inbound events to the publisher or
// searcher flow and runs the viewing negotiation between searcher and owner.
package bot

import (
	"context"

	"github.com/markdave123-py/Rentora/internal/core/nlu"
	"github.com/markdave123-py/Rentora/internal/models"
)

// Action tells a transport how to render a response beyond its text.
type Action int

const (
	ActionNone Action = iota
	// ActionShowMenu marks a listing menu; no further menu is appended.
	ActionShowMenu
	// ActionSendImages asks the transport to send Response.Media.
	ActionSendImages
	// ActionBookTour is followed by the listing's slot picker.
	ActionBookTour
	// ActionRequireAuth carries a login button instead of normal routing.
	ActionRequireAuth
	// ActionPublished reports a newly published listing.
	ActionPublished
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionShowMenu:
		return "SHOW_MENU"
	case ActionSendImages:
		return "SEND_IMAGES"
	case ActionBookTour:
		return "BOOK_TOUR"
	case ActionRequireAuth:
		return "REQUIRE_AUTH"
	case ActionPublished:
		return "PUBLISHED"
	}
	return "UNKNOWN"
}

func actionForHint(h nlu.Hint) Action {
	switch h {
	case nlu.HintSendImages:
		return ActionSendImages
	case nlu.HintBookTour:
		return ActionBookTour
	}
	return ActionNone
}

// Button is a callback button (Data) or a link button (URL).
type Button struct {
	Text string
	Data string
	URL  string
}

// Response is everything a transport needs to render one bot message.
type Response struct {
	Text    string
	Buttons [][]Button
	Action  Action
	// Listing is the listing the reply is about; a menu for it follows unless
	// the response already is one.
	Listing *models.Listing
	Media   []models.MediaRef
}

// Sender delivers a response to a chat identity over its transport.
type Sender interface {
	Send(ctx context.Context, chatIdentity string, r Response) error
}

// Document is an uploaded file attached to an inbound event.
type Document struct {
	Data        []byte
	ContentType string
	FileName    string
}

// Event is one inbound message or button press from a chat identity.
type Event struct {
	ChatIdentity string
	DisplayName  string
	Text         string
	Callback     string
	Media        *models.MediaRef
	Document     *Document
}

func reply(text string) Response {
	return Response{Text: text}
}

func row(buttons ...Button) []Button {
	return buttons
}

// listingMedia returns the stored media of l, images first.
func listingMedia(l *models.Listing) []models.MediaRef {
	out := make([]models.MediaRef, 0, len(l.Images)+len(l.Videos))
	for _, ref := range l.Images {
		out = append(out, models.MediaRef{Reference: ref, Kind: models.MediaImage})
	}
	for _, ref := range l.Videos {
		out = append(out, models.MediaRef{Reference: ref, Kind: models.MediaVideo})
	}
	return out
}
