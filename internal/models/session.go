package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the dialogue position of a chat session.
type State string

const (
	StateStart                 State = "START"
	StateAwaitingRoleChoice    State = "AWAITING_ROLE_CHOICE"
	StateDescribingListing     State = "DESCRIBING_LISTING"
	StateConfirmingListing     State = "CONFIRMING_LISTING"
	StateTalkingAboutListing   State = "TALKING_ABOUT_LISTING"
	StateAwaitingDirectMessage State = "AWAITING_DIRECT_MESSAGE"
	StateIdle                  State = "IDLE"
)

// SessionData is the state-specific payload of a session. Each state carries
// only the fields it needs; the concrete type determines the state.
type SessionData interface {
	State() State
}

type StartData struct{}

type AwaitingRoleChoiceData struct{}

// DescribingListingData waits for a publisher's free-text description.
type DescribingListingData struct {
	LastPublishedID string `json:"last_published_id,omitempty"`
}

// ConfirmingListingData holds the extracted draft until the publisher says yes or no.
type ConfirmingListingData struct {
	Draft           DraftListing `json:"draft"`
	LastPublishedID string       `json:"last_published_id,omitempty"`
}

type TalkingAboutListingData struct {
	ListingID string `json:"listing_id"`
}

// AwaitingDirectMessageData waits for the text a searcher wants forwarded to the owner.
type AwaitingDirectMessageData struct {
	ListingID string `json:"listing_id"`
}

type IdleData struct {
	LastPublishedID string `json:"last_published_id,omitempty"`
}

func (StartData) State() State                 { return StateStart }
func (AwaitingRoleChoiceData) State() State    { return StateAwaitingRoleChoice }
func (DescribingListingData) State() State     { return StateDescribingListing }
func (ConfirmingListingData) State() State     { return StateConfirmingListing }
func (TalkingAboutListingData) State() State   { return StateTalkingAboutListing }
func (AwaitingDirectMessageData) State() State { return StateAwaitingDirectMessage }
func (IdleData) State() State                  { return StateIdle }

// Session is the per-chat-identity dialogue record.
type Session struct {
	ChatIdentity    string      `json:"chat_identity"`
	DisplayName     string      `json:"display_name"`
	Role            Role        `json:"role"`
	Data            SessionData `json:"-"`
	LinkedAccountID string      `json:"linked_account_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewSession returns a session in the Start state.
func NewSession(chatIdentity, displayName string, now time.Time) *Session {
	return &Session{
		ChatIdentity: chatIdentity,
		DisplayName:  displayName,
		Data:         StartData{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// State returns the current state, treating missing data as Start.
func (s *Session) State() State {
	if s.Data == nil {
		return StateStart
	}
	return s.Data.State()
}

// Transition replaces the state payload.
func (s *Session) Transition(d SessionData) {
	if d == nil {
		d = StartData{}
	}
	s.Data = d
}

// ActiveListingID returns the listing the session is currently about, if any.
func (s *Session) ActiveListingID() string {
	switch d := s.Data.(type) {
	case TalkingAboutListingData:
		return d.ListingID
	case AwaitingDirectMessageData:
		return d.ListingID
	}
	return ""
}

// LastPublishedID returns the most recent listing published from this session, if any.
func (s *Session) LastPublishedID() string {
	switch d := s.Data.(type) {
	case IdleData:
		return d.LastPublishedID
	case DescribingListingData:
		return d.LastPublishedID
	case ConfirmingListingData:
		return d.LastPublishedID
	}
	return ""
}

// Clone returns a deep copy safe to mutate.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if d, ok := s.Data.(ConfirmingListingData); ok {
		d.Draft.Availability = append([]Slot(nil), d.Draft.Availability...)
		d.Draft.Media = append([]MediaRef(nil), d.Draft.Media...)
		c.Data = d
	}
	return &c
}

// EncodeSessionData serializes the payload for storage next to its state.
func EncodeSessionData(d SessionData) (State, []byte, error) {
	if d == nil {
		d = StartData{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s data: %w", d.State(), err)
	}
	return d.State(), raw, nil
}

// DecodeSessionData rebuilds the payload stored for state.
func DecodeSessionData(state State, raw []byte) (SessionData, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		d   SessionData
		err error
	)
	switch state {
	case StateStart, "":
		return StartData{}, nil
	case StateAwaitingRoleChoice:
		return AwaitingRoleChoiceData{}, nil
	case StateDescribingListing:
		var v DescribingListingData
		err = json.Unmarshal(raw, &v)
		d = v
	case StateConfirmingListing:
		var v ConfirmingListingData
		err = json.Unmarshal(raw, &v)
		d = v
	case StateTalkingAboutListing:
		var v TalkingAboutListingData
		err = json.Unmarshal(raw, &v)
		d = v
	case StateAwaitingDirectMessage:
		var v AwaitingDirectMessageData
		err = json.Unmarshal(raw, &v)
		d = v
	case StateIdle:
		var v IdleData
		err = json.Unmarshal(raw, &v)
		d = v
	default:
		return nil, fmt.Errorf("unknown session state %q", state)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s data: %w", state, err)
	}
	return d, nil
}
