// Package telegram adapts the Telegram Bot API to the bot engine.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/markdave123-py/Rentora/internal/bot"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/transport"
)

const Prefix = "tg"

// api is the part of *tgbotapi.BotAPI the adapter uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Adapter struct {
	api   api
	bot   *tgbotapi.BotAPI
	sink  transport.Sink
	media *transport.Media
	log   *slog.Logger
}

var _ transport.Adapter = (*Adapter)(nil)

// New connects to the Bot API with token.
func New(token string, sink transport.Sink, media *transport.Media, logger *slog.Logger) (*Adapter, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a := newAdapter(b, sink, media, logger)
	a.bot = b
	a.log.Info("telegram bot authorized", "username", b.Self.UserName)
	return a, nil
}

func newAdapter(client api, sink transport.Sink, media *transport.Media, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{api: client, sink: sink, media: media, log: logger.With("component", "telegram")}
}

func (a *Adapter) Prefix() string { return Prefix }

// Username is the bot's handle, used in share links.
func (a *Adapter) Username() string {
	if a.bot == nil {
		return ""
	}
	return a.bot.Self.UserName
}

// Poll long-polls for updates until ctx is done.
func (a *Adapter) Poll(ctx context.Context) {
	if _, err := a.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		a.log.Warn("delete webhook failed", "err", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := a.bot.GetUpdatesChan(u)
	a.log.Info("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			a.log.Info("telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			a.dispatch(ctx, update)
		}
	}
}

// SetWebhook registers url with Telegram.
func (a *Adapter) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	if _, err := a.api.Request(wh); err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	a.log.Info("telegram webhook registered", "url", url)
	return nil
}

// Webhook handles update deliveries. The update is queued and acknowledged
// immediately; replies go out through Send.
func (a *Adapter) Webhook(w http.ResponseWriter, r *http.Request) {
	update, err := a.bot.HandleUpdate(r)
	if err != nil {
		a.log.Warn("bad telegram update", "err", err)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	a.dispatch(r.Context(), *update)
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) dispatch(ctx context.Context, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil {
		if _, err := a.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			a.log.Debug("callback answer failed", "err", err)
		}
	}
	ev, ok := a.toEvent(ctx, update)
	if !ok {
		return
	}
	a.sink.Handle(ctx, ev)
}

func (a *Adapter) toEvent(ctx context.Context, update tgbotapi.Update) (bot.Event, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil {
			return bot.Event{}, false
		}
		return bot.Event{
			ChatIdentity: chatIdentity(cq.Message.Chat.ID),
			DisplayName:  displayName(cq.From),
			Callback:     cq.Data,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{
		ChatIdentity: chatIdentity(msg.Chat.ID),
		DisplayName:  displayName(msg.From),
		Text:         msg.Text,
	}
	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		ev.Media = a.keep(ctx, largest.FileID, "image/jpeg", models.MediaImage)
	case msg.Video != nil:
		ev.Media = a.keep(ctx, msg.Video.FileID, msg.Video.MimeType, models.MediaVideo)
	case msg.Document != nil:
		doc, err := a.document(ctx, msg.Document)
		if err != nil {
			a.log.Warn("document download failed", "chat_identity", ev.ChatIdentity, "err", err)
			ev.Text = msg.Caption
			break
		}
		ev.Document = doc
	case msg.Text == "":
		return bot.Event{}, false
	}
	return ev, true
}

// keep turns a Telegram file into a media reference, mirroring it when configured.
func (a *Adapter) keep(ctx context.Context, fileID, contentType string, kind models.MediaKind) *models.MediaRef {
	ref := models.MediaRef{Reference: fileID, Kind: kind}
	if !a.media.Mirroring() {
		return &ref
	}
	data, ct, err := a.download(ctx, fileID)
	if err != nil {
		a.log.Warn("media download failed, keeping file id", "err", err)
		return &ref
	}
	if contentType == "" {
		contentType = ct
	}
	ref = a.media.Keep(ctx, data, contentType, kind, fileID)
	return &ref
}

func (a *Adapter) document(ctx context.Context, d *tgbotapi.Document) (*bot.Document, error) {
	if d.FileSize > transport.MaxDownload {
		return nil, fmt.Errorf("document %q is too large", d.FileName)
	}
	data, ct, err := a.download(ctx, d.FileID)
	if err != nil {
		return nil, err
	}
	if d.MimeType != "" {
		ct = d.MimeType
	}
	return &bot.Document{Data: data, ContentType: ct, FileName: d.FileName}, nil
}

func (a *Adapter) download(ctx context.Context, fileID string) ([]byte, string, error) {
	if a.media == nil {
		return nil, "", fmt.Errorf("media downloads are not configured")
	}
	url, err := a.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("file url: %w", err)
	}
	return a.media.Download(ctx, url, nil)
}

// Send renders r as a text message with an inline keyboard, followed by its media.
func (a *Adapter) Send(_ context.Context, recipient string, r bot.Response) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q", recipient)
	}
	if strings.TrimSpace(r.Text) != "" || len(r.Buttons) > 0 {
		msg := tgbotapi.NewMessage(chatID, r.Text)
		if kb, ok := keyboard(r.Buttons); ok {
			msg.ReplyMarkup = kb
		}
		if _, err := a.api.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	for _, m := range r.Media {
		if _, err := a.api.Send(mediaMessage(chatID, m)); err != nil {
			return fmt.Errorf("telegram media: %w", err)
		}
	}
	return nil
}

func keyboard(rows [][]bot.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			case b.Data != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		if len(buttons) > 0 {
			out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(out) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...), true
}

func mediaMessage(chatID int64, m models.MediaRef) tgbotapi.Chattable {
	var file tgbotapi.RequestFileData = tgbotapi.FileID(m.Reference)
	if strings.HasPrefix(m.Reference, "http://") || strings.HasPrefix(m.Reference, "https://") {
		file = tgbotapi.FileURL(m.Reference)
	}
	switch m.Kind {
	case models.MediaVideo:
		return tgbotapi.NewVideo(chatID, file)
	case models.MediaDocument:
		return tgbotapi.NewDocument(chatID, file)
	}
	return tgbotapi.NewPhoto(chatID, file)
}

func chatIdentity(chatID int64) string {
	return transport.Identity(Prefix, strconv.FormatInt(chatID, 10))
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
