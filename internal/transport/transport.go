// Package transport connects chat platforms to the bot engine. Each platform
// adapter owns one chat identity prefix; Mux routes outbound messages to the
// adapter that owns the identity.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/Rentora/internal/bot"
	"github.com/markdave123-py/Rentora/internal/models"
	"github.com/markdave123-py/Rentora/internal/notification"
)

// ErrUnknownTransport is returned for chat identities no adapter owns.
var ErrUnknownTransport = errors.New("no transport for chat identity")

// Adapter sends rendered responses to a platform-native recipient id.
type Adapter interface {
	Prefix() string
	Send(ctx context.Context, recipient string, r bot.Response) error
}

// Sink receives inbound events. *bot.Engine satisfies it.
type Sink interface {
	Handle(ctx context.Context, ev bot.Event)
}

// Identity builds the chat identity of a platform user.
func Identity(prefix, recipient string) string {
	return prefix + ":" + recipient
}

// SplitIdentity is the inverse of Identity.
func SplitIdentity(chatIdentity string) (prefix, recipient string, ok bool) {
	prefix, recipient, ok = strings.Cut(chatIdentity, ":")
	if !ok || prefix == "" || recipient == "" {
		return "", "", false
	}
	return prefix, recipient, true
}

// Mux dispatches by chat identity prefix.
type Mux struct {
	adapters map[string]Adapter
}

var (
	_ bot.Sender              = (*Mux)(nil)
	_ notification.ChatSender = (*Mux)(nil)
)

func NewMux(adapters ...Adapter) *Mux {
	m := &Mux{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		m.Register(a)
	}
	return m
}

// Register adds or replaces the adapter for a.Prefix(). Nil adapters are ignored.
func (m *Mux) Register(a Adapter) {
	if a == nil {
		return
	}
	m.adapters[a.Prefix()] = a
}

func (m *Mux) Send(ctx context.Context, chatIdentity string, r bot.Response) error {
	prefix, recipient, ok := SplitIdentity(chatIdentity)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransport, chatIdentity)
	}
	a, ok := m.adapters[prefix]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTransport, chatIdentity)
	}
	return a.Send(ctx, recipient, r)
}

// SendNotification renders a queued notification as a chat message. A
// notification that carries a button keeps it, so an owner can still confirm
// a viewing from a retried delivery.
func (m *Mux) SendNotification(ctx context.Context, chatIdentity string, n models.Notification) error {
	return m.Send(ctx, chatIdentity, NotificationResponse(n))
}

func NotificationResponse(n models.Notification) bot.Response {
	r := bot.Response{Text: notification.Format(n)}
	text, data := n.Payload[notification.PayloadButtonText], n.Payload[notification.PayloadButtonData]
	if text != "" && data != "" {
		r.Buttons = [][]bot.Button{{{Text: text, Data: data}}}
	}
	return r
}

// NormalizePhone puts phone in international form for countryCode.
func NormalizePhone(phone, countryCode string) string {
	return models.NormalizePhone(phone, countryCode)
}

// Flatten splits response buttons into callback buttons, in order, and link
// buttons, for platforms that render them differently.
func Flatten(buttons [][]bot.Button) (callbacks, links []bot.Button) {
	for _, row := range buttons {
		for _, b := range row {
			switch {
			case b.URL != "":
				links = append(links, b)
			case b.Data != "":
				callbacks = append(callbacks, b)
			}
		}
	}
	return callbacks, links
}
