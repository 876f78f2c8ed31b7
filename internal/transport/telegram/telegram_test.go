package telegram

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/markdave123-py/Rentora/internal/bot"
	"github.com/markdave123-py/Rentora/internal/models"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

type recordingSink struct {
	events []bot.Event
}

func (s *recordingSink) Handle(_ context.Context, ev bot.Event) {
	s.events = append(s.events, ev)
}

func newTestAdapter() (*Adapter, *fakeAPI, *recordingSink) {
	api, sink := &fakeAPI{}, &recordingSink{}
	return newAdapter(api, sink, nil, slog.New(slog.DiscardHandler)), api, sink
}

func TestTextAndCallbackEvents(t *testing.T) {
	t.Parallel()
	a, api, sink := newTestAdapter()
	ctx := context.Background()

	a.dispatch(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 42},
		From: &tgbotapi.User{FirstName: "Dana", LastName: "Levi"},
		Text: "/start abc12345",
	}})
	a.dispatch(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{UserName: "dana"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		Data:    "get_slots",
	}})

	if len(sink.events) != 2 {
		t.Fatalf("events = %+v", sink.events)
	}
	if ev := sink.events[0]; ev.ChatIdentity != "tg:42" || ev.DisplayName != "Dana Levi" || ev.Text != "/start abc12345" {
		t.Fatalf("text event = %+v", ev)
	}
	if ev := sink.events[1]; ev.Callback != "get_slots" || ev.DisplayName != "dana" {
		t.Fatalf("callback event = %+v", ev)
	}
	if len(api.requests) != 1 {
		t.Fatalf("callback was not answered: %d requests", len(api.requests))
	}
}

func TestPhotoKeepsLargestFileID(t *testing.T) {
	t.Parallel()
	a, _, sink := newTestAdapter()
	a.dispatch(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 7},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}})
	if len(sink.events) != 1 {
		t.Fatal("photo event dropped")
	}
	m := sink.events[0].Media
	if m == nil || m.Reference != "large" || m.Kind != models.MediaImage {
		t.Fatalf("media = %+v", m)
	}
}

func TestEmptyUpdatesAreIgnored(t *testing.T) {
	t.Parallel()
	a, _, sink := newTestAdapter()
	a.dispatch(context.Background(), tgbotapi.Update{})
	a.dispatch(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}})
	if len(sink.events) != 0 {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestSendRendersKeyboardAndMedia(t *testing.T) {
	t.Parallel()
	a, api, _ := newTestAdapter()
	err := a.Send(context.Background(), "42", bot.Response{
		Text: "menu",
		Buttons: [][]bot.Button{
			{{Text: "web", URL: "https://example.com/p/1"}},
			{{Text: "slots", Data: "get_slots"}, {Text: "media", Data: "get_media"}},
		},
		Media: []models.MediaRef{
			{Reference: "file-1", Kind: models.MediaImage},
			{Reference: "https://bucket.example/v.mp4", Kind: models.MediaVideo},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(api.sent))
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok || msg.ChatID != 42 || msg.Text != "menu" {
		t.Fatalf("first message = %#v", api.sent[0])
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 || len(kb.InlineKeyboard[1]) != 2 {
		t.Fatalf("keyboard = %#v", msg.ReplyMarkup)
	}
	if kb.InlineKeyboard[0][0].URL == nil || *kb.InlineKeyboard[1][0].CallbackData != "get_slots" {
		t.Fatalf("buttons = %#v", kb.InlineKeyboard)
	}
	photo, ok := api.sent[1].(tgbotapi.PhotoConfig)
	if !ok || photo.File != tgbotapi.FileID("file-1") {
		t.Fatalf("photo = %#v", api.sent[1])
	}
	video, ok := api.sent[2].(tgbotapi.VideoConfig)
	if !ok || video.File != tgbotapi.FileURL("https://bucket.example/v.mp4") {
		t.Fatalf("video = %#v", api.sent[2])
	}
}

func TestSendRejectsBadRecipient(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestAdapter()
	if err := a.Send(context.Background(), "not-a-number", bot.Response{Text: "x"}); err == nil {
		t.Fatal("expected an error")
	}
}
