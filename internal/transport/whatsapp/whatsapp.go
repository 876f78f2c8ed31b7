// Package whatsapp adapts the WhatsApp Cloud API to the bot engine.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/Rentora/internal/bot"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/transport"
)

const Prefix = "wa"

// Cloud API limits on interactive messages.
const (
	maxReplyButtons = 3
	maxListRows     = 10
	buttonTitleMax  = 20
	rowTitleMax     = 24
	bodyMax         = 1024
)

type Config struct {
	Token         string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	CountryCode   string
}

type Adapter struct {
	cfg    Config
	client *resty.Client
	sink   transport.Sink
	media  *transport.Media
	log    *slog.Logger
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, sink transport.Sink, media *transport.Media, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "972"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")
	return &Adapter{cfg: cfg, client: client, sink: sink, media: media, log: logger.With("component", "whatsapp")}
}

func (a *Adapter) Prefix() string { return Prefix }

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts the text with its buttons, then each media item.
func (a *Adapter) Send(ctx context.Context, recipient string, r bot.Response) error {
	to := transport.NormalizePhone(recipient, a.cfg.CountryCode)
	if to == "" {
		return fmt.Errorf("whatsapp: bad recipient %q", recipient)
	}
	if strings.TrimSpace(r.Text) != "" || len(r.Buttons) > 0 {
		if err := a.post(ctx, textPayload(to, r)); err != nil {
			return err
		}
	}
	for _, m := range r.Media {
		if err := a.post(ctx, mediaPayload(to, m)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, payload map[string]any) error {
	var apiErr apiError
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetError(&apiErr).
		Post("/" + a.cfg.PhoneNumberID + "/messages")
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}
	return nil
}

// textPayload renders callback buttons as reply buttons when there are at most
// three and as a list otherwise. Link buttons become lines of the body.
func textPayload(to string, r bot.Response) map[string]any {
	callbacks, links := transport.Flatten(r.Buttons)
	body := r.Text
	for _, l := range links {
		body += "\n🔗 " + l.Text + ": " + l.URL
	}
	if len(callbacks) == 0 {
		return map[string]any{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "text",
			"text":              map[string]any{"body": body, "preview_url": len(links) > 0},
		}
	}

	var action map[string]any
	if len(callbacks) <= maxReplyButtons {
		buttons := make([]map[string]any, 0, len(callbacks))
		for _, b := range callbacks {
			buttons = append(buttons, map[string]any{
				"type":  "reply",
				"reply": map[string]any{"id": b.Data, "title": truncate(b.Text, buttonTitleMax)},
			})
		}
		action = map[string]any{"buttons": buttons}
	} else {
		if len(callbacks) > maxListRows {
			callbacks = callbacks[:maxListRows]
		}
		rows := make([]map[string]any, 0, len(callbacks))
		for _, b := range callbacks {
			rows = append(rows, map[string]any{"id": b.Data, "title": truncate(b.Text, rowTitleMax)})
		}
		action = map[string]any{
			"button":   "בחר אפשרות",
			"sections": []map[string]any{{"title": "אפשרויות", "rows": rows}},
		}
	}
	kind := "button"
	if _, list := action["sections"]; list {
		kind = "list"
	}
	if strings.TrimSpace(body) == "" {
		body = "בחר אפשרות:"
	}
	return map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   kind,
			"body":   map[string]any{"text": truncate(body, bodyMax)},
			"action": action,
		},
	}
}

func mediaPayload(to string, m models.MediaRef) map[string]any {
	kind := "image"
	switch m.Kind {
	case models.MediaVideo:
		kind = "video"
	case models.MediaDocument:
		kind = "document"
	}
	media := map[string]any{"id": m.Reference}
	if strings.HasPrefix(m.Reference, "http://") || strings.HasPrefix(m.Reference, "https://") {
		media = map[string]any{"link": m.Reference}
	}
	return map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              kind,
		kind:                media,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// Verify answers the webhook subscription handshake.
func (a *Adapter) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || a.cfg.VerifyToken == "" || q.Get("hub.verify_token") != a.cfg.VerifyToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []inbound `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inbound struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID string `json:"id"`
		} `json:"button_reply"`
		ListReply struct {
			ID string `json:"id"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Image    *mediaObject `json:"image"`
	Video    *mediaObject `json:"video"`
	Document *mediaObject `json:"document"`
}

type mediaObject struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename"`
	Caption  string `json:"caption"`
}

// Webhook accepts message notifications. Status callbacks and unknown message
// types are acknowledged and dropped.
func (a *Adapter) Webhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		a.log.Warn("bad whatsapp webhook body", "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			names := make(map[string]string, len(c.Value.Contacts))
			for _, ct := range c.Value.Contacts {
				names[ct.WaID] = ct.Profile.Name
			}
			for _, m := range c.Value.Messages {
				ev, ok := a.toEvent(r.Context(), m, names[m.From])
				if !ok {
					a.log.Debug("whatsapp message ignored", "type", m.Type)
					continue
				}
				a.sink.Handle(r.Context(), ev)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) toEvent(ctx context.Context, m inbound, name string) (bot.Event, bool) {
	from := transport.NormalizePhone(m.From, a.cfg.CountryCode)
	if from == "" {
		return bot.Event{}, false
	}
	ev := bot.Event{ChatIdentity: transport.Identity(Prefix, from), DisplayName: name}
	switch m.Type {
	case "text":
		ev.Text = m.Text.Body
	case "interactive":
		ev.Callback = m.Interactive.ButtonReply.ID
		if ev.Callback == "" {
			ev.Callback = m.Interactive.ListReply.ID
		}
		if ev.Callback == "" {
			return bot.Event{}, false
		}
	case "button":
		ev.Callback = m.Button.Payload
		if ev.Callback == "" {
			ev.Text = m.Button.Text
		}
	case "image":
		if m.Image == nil {
			return bot.Event{}, false
		}
		ev.Media = a.keep(ctx, m.Image, models.MediaImage)
	case "video":
		if m.Video == nil {
			return bot.Event{}, false
		}
		ev.Media = a.keep(ctx, m.Video, models.MediaVideo)
	case "document":
		if m.Document == nil {
			return bot.Event{}, false
		}
		data, ct, err := a.fetch(ctx, m.Document.ID)
		if err != nil {
			a.log.Warn("document download failed", "chat_identity", ev.ChatIdentity, "err", err)
			ev.Text = m.Document.Caption
			return ev, ev.Text != ""
		}
		if m.Document.MimeType != "" {
			ct = m.Document.MimeType
		}
		ev.Document = &bot.Document{Data: data, ContentType: ct, FileName: m.Document.Filename}
	default:
		return bot.Event{}, false
	}
	return ev, true
}

func (a *Adapter) keep(ctx context.Context, obj *mediaObject, kind models.MediaKind) *models.MediaRef {
	ref := models.MediaRef{Reference: obj.ID, Kind: kind}
	if !a.media.Mirroring() {
		return &ref
	}
	data, ct, err := a.fetch(ctx, obj.ID)
	if err != nil {
		a.log.Warn("media download failed, keeping media id", "err", err)
		return &ref
	}
	if obj.MimeType != "" {
		ct = obj.MimeType
	}
	ref = a.media.Keep(ctx, data, ct, kind, obj.ID)
	return &ref
}

// fetch resolves a media id to its URL and downloads it with the API token.
func (a *Adapter) fetch(ctx context.Context, mediaID string) ([]byte, string, error) {
	if a.media == nil {
		return nil, "", errors.New("media downloads are not configured")
	}
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	resp, err := a.client.R().SetContext(ctx).SetResult(&meta).Get("/" + mediaID)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup: %w", err)
	}
	if resp.IsError() || meta.URL == "" {
		return nil, "", fmt.Errorf("media lookup: status %d", resp.StatusCode())
	}
	data, ct, err := a.media.Download(ctx, meta.URL, map[string]string{"Authorization": "Bearer " + a.cfg.Token})
	if err != nil {
		return nil, "", err
	}
	if meta.MimeType != "" {
		ct = meta.MimeType
	}
	return data, ct, nil
}
