package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/core/locker"
	"github.com/markdave123-py/Rentora/internal/delivery"
	"github.com/markdave123-py/Rentora/internal/models"
)

// ErrNoChannel is recorded when the target account has nowhere to deliver to.
var ErrNoChannel = errors.New("user has no delivery channel")

// ChatSender delivers a notification to a chat identity.
type ChatSender interface {
	SendNotification(ctx context.Context, chatIdentity string, n models.Notification) error
}

// DispatcherConfig tunes the polling loop.
type DispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Stats summarizes one dispatcher run.
type Stats struct {
	Selected int
	Sent     int
	Retrying int
	Failed   int
	Skipped  bool
}

// Dispatcher polls the outbox and fans each notification out to every
// channel the recipient has.
type Dispatcher struct {
	store    core.NotificationStore
	accounts core.AccountDirectory
	chat     ChatSender
	mailer   delivery.Mailer
	lock     locker.Locker
	cfg      DispatcherConfig
	log      *slog.Logger

	running atomic.Bool
}

func NewDispatcher(store core.NotificationStore, accounts core.AccountDirectory, chat ChatSender, mailer delivery.Mailer, lock locker.Locker, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store: store, accounts: accounts, chat: chat, mailer: mailer, lock: lock, cfg: cfg,
		log: logger.With("component", "notification-dispatcher"),
	}
}

// Run ticks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	d.log.Info("dispatcher started", "interval", d.cfg.Interval, "batch", d.cfg.BatchSize, "max_attempts", d.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error("dispatch run failed", "err", err)
			}
		}
	}
}

// RunOnce processes one batch. A run that overlaps another, locally or on
// another instance holding the shared lock, is skipped.
func (d *Dispatcher) RunOnce(ctx context.Context) (Stats, error) {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Debug("previous run still in flight, skipping")
		return Stats{Skipped: true}, nil
	}
	defer d.running.Store(false)

	if d.lock != nil {
		release, err := d.lock.TryLock(ctx, "notification-dispatch", 2*d.cfg.Interval)
		if errors.Is(err, locker.ErrNotAcquired) {
			return Stats{Skipped: true}, nil
		}
		if err != nil {
			return Stats{}, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		defer release()
	}

	batch, err := d.store.ListDeliverable(ctx, d.cfg.MaxAttempts, d.cfg.BatchSize)
	if err != nil {
		return Stats{}, fmt.Errorf("list deliverable: %w", err)
	}

	stats := Stats{Selected: len(batch)}
	for _, n := range batch {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		status, err := d.deliverOne(ctx, n)
		if err != nil {
			d.log.Error("could not record delivery outcome", "notification_id", n.ID, "err", err)
			continue
		}
		switch status {
		case models.NotificationSent:
			stats.Sent++
		case models.NotificationFailed:
			stats.Failed++
		default:
			stats.Retrying++
		}
	}
	if stats.Selected > 0 {
		d.log.Info("dispatch run finished", "selected", stats.Selected, "sent", stats.Sent, "retrying", stats.Retrying, "failed", stats.Failed)
	}
	return stats, nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, n models.Notification) (models.NotificationStatus, error) {
	sendErr := d.fanOut(ctx, n)
	if sendErr == nil {
		if err := d.store.MarkNotificationSent(ctx, n.ID); err != nil {
			return "", err
		}
		return models.NotificationSent, nil
	}

	status, err := d.store.RecordNotificationFailure(ctx, n.ID, sendErr.Error(), d.cfg.MaxAttempts)
	if err != nil {
		return "", err
	}
	log := d.log.With("notification_id", n.ID, "user_id", n.UserID, "attempt", n.Attempts+1)
	if status == models.NotificationFailed {
		log.Warn("notification exhausted its retries", "err", sendErr)
	} else {
		log.Info("notification delivery failed, will retry", "err", sendErr)
	}
	return status, nil
}

// fanOut delivers to every resolvable channel in parallel and joins the failures.
func (d *Dispatcher) fanOut(ctx context.Context, n models.Notification) error {
	acct, err := d.accounts.GetAccount(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if acct == nil {
		return ErrNoChannel
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
		used int
	)
	record := func(channel string, err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
			mu.Unlock()
		}
	}
	if acct.ChatIdentity != "" && d.chat != nil {
		used++
		g.Go(func() error {
			record("chat", d.chat.SendNotification(ctx, acct.ChatIdentity, n))
			return nil
		})
	}
	if acct.Email != "" && d.mailer != nil {
		used++
		g.Go(func() error {
			record("email", d.mailer.Send(ctx, []string{acct.Email}, n.Title, n.Message))
			return nil
		})
	}
	if used == 0 {
		return ErrNoChannel
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Format renders a notification as a chat message body.
func Format(n models.Notification) string {
	title := strings.TrimSpace(n.Title)
	msg := strings.TrimSpace(n.Message)
	switch {
	case title == "":
		return msg
	case msg == "":
		return title
	}
	return title + "\n\n" + msg
}
