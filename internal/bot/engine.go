package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/markdave123-py/Rentora/internal/session"
)

// Engine is the transport-facing entry point. Events from one chat identity
// are handled strictly in arrival order, one at a time; different identities
// proceed concurrently.
type Engine struct {
	router *Router
	serial *session.Serializer
	sender Sender
	log    *slog.Logger
}

func NewEngine(router *Router, serial *session.Serializer, sender Sender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if serial == nil {
		serial = session.NewSerializer(logger)
	}
	return &Engine{router: router, serial: serial, sender: sender, log: logger.With("component", "engine")}
}

// Handle queues ev behind earlier events of the same chat identity and
// returns immediately. Replies are sent through the Sender.
func (e *Engine) Handle(ctx context.Context, ev Event) {
	if ev.ChatIdentity == "" {
		e.log.Warn("dropping event without chat identity")
		return
	}
	ctx = context.WithoutCancel(ctx)
	e.serial.Submit(ev.ChatIdentity, func() {
		if err := e.process(ctx, ev); err != nil {
			e.log.Warn("event handled with errors", "chat_identity", ev.ChatIdentity, "err", err)
		}
	})
}

// Wait blocks until every queued event has been handled.
func (e *Engine) Wait() {
	e.serial.Wait()
}

func (e *Engine) process(ctx context.Context, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("handler panicked", "chat_identity", ev.ChatIdentity, "panic", rec, "stack", string(debug.Stack()))
			if sendErr := e.sender.Send(ctx, ev.ChatIdentity, reply(genericError)); sendErr != nil {
				e.log.Warn("send failed", "chat_identity", ev.ChatIdentity, "err", sendErr)
			}
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	var errs []error
	for _, resp := range e.router.Handle(ctx, ev) {
		if err := e.sender.Send(ctx, ev.ChatIdentity, resp); err != nil {
			e.log.Warn("send failed", "chat_identity", ev.ChatIdentity, "action", resp.Action.String(), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
