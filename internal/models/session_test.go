package models

import (
	"testing"
	"time"
)

func TestSessionDataSurvivesStorage(t *testing.T) {
	start := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	in := ConfirmingListingData{
		Draft: DraftListing{
			City:         "Haifa",
			Price:        5200,
			Rooms:        3,
			Availability: []Slot{{Start: start, End: start.Add(time.Hour)}},
			Media:        []MediaRef{{Reference: "file-1", Kind: MediaImage}},
		},
		LastPublishedID: "abc",
	}

	state, raw, err := EncodeSessionData(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if state != StateConfirmingListing {
		t.Fatalf("state = %s", state)
	}

	out, err := DecodeSessionData(state, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := out.(ConfirmingListingData)
	if !ok {
		t.Fatalf("decoded %T", out)
	}
	if got.Draft.City != "Haifa" || got.LastPublishedID != "abc" || len(got.Draft.Media) != 1 {
		t.Fatalf("unexpected draft: %+v", got)
	}
	if !got.Draft.Availability[0].Start.Equal(start) {
		t.Fatalf("slot start = %v", got.Draft.Availability[0].Start)
	}
}

func TestDecodeSessionDataRejectsUnknownState(t *testing.T) {
	if _, err := DecodeSessionData("BOGUS", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionAccessors(t *testing.T) {
	s := NewSession("tg:1", "Dana", time.Now())
	if s.State() != StateStart {
		t.Fatalf("new session state = %s", s.State())
	}

	s.Transition(TalkingAboutListingData{ListingID: "l-1"})
	if s.ActiveListingID() != "l-1" || s.LastPublishedID() != "" {
		t.Fatalf("talking accessors wrong: %q %q", s.ActiveListingID(), s.LastPublishedID())
	}

	s.Transition(IdleData{LastPublishedID: "l-2"})
	if s.ActiveListingID() != "" || s.LastPublishedID() != "l-2" {
		t.Fatalf("idle accessors wrong: %q %q", s.ActiveListingID(), s.LastPublishedID())
	}
}

func TestCloneDetachesDraft(t *testing.T) {
	s := NewSession("tg:1", "", time.Now())
	s.Transition(ConfirmingListingData{Draft: DraftListing{City: "Eilat", Media: []MediaRef{{Reference: "a"}}}})

	c := s.Clone()
	d := c.Data.(ConfirmingListingData)
	d.Draft.Media[0].Reference = "changed"

	if s.Data.(ConfirmingListingData).Draft.Media[0].Reference != "a" {
		t.Fatal("clone shares media buffer")
	}
}

func TestRoleHelpers(t *testing.T) {
	cases := []struct {
		in        string
		want      Role
		publisher bool
	}{
		{"tenant", RoleSearcher, false},
		{"AGENT", RoleAgent, true},
		{"landlord", RoleLandlord, true},
		{"seller", RoleSeller, true},
		{"", RoleUnset, false},
	}
	for _, tc := range cases {
		got := ParseRole(tc.in)
		if got != tc.want || got.IsPublisher() != tc.publisher {
			t.Errorf("ParseRole(%q) = %q publisher=%v", tc.in, got, got.IsPublisher())
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("3f2a9c1e-0000-4000-8000-000000000000"); got != "3f2a9c1e" {
		t.Fatalf("ShortID = %q", got)
	}
	if got := ShortID("plain"); got != "plain" {
		t.Fatalf("ShortID = %q", got)
	}
}
