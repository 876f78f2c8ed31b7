package leads

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Worker records entries on a single background goroutine fed by a bounded
// queue, so entries for a lead are applied in submission order.
type Worker struct {
	rec     *Recorder
	jobs    chan Entry
	maxWait time.Duration
	wg      sync.WaitGroup
	once    sync.Once
	log     *slog.Logger
}

// NewWorker constructs the worker with a bounded job queue (64).
func NewWorker(rec *Recorder) *Worker {
	return &Worker{rec: rec, jobs: make(chan Entry, 64), maxWait: 2 * time.Second, log: rec.log}
}

// Start runs the worker until Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for e := range w.jobs {
			if err := w.rec.Apply(context.WithoutCancel(ctx), e); err != nil {
				w.log.Warn("lead journal entry failed", "listing_id", e.ListingID, "err", err)
			}
		}
	}()
}

// Record queues e. When the queue is full it waits up to maxWait, or until
// ctx ends, and then drops the entry so the chat handler is never stalled.
func (w *Worker) Record(ctx context.Context, e Entry) {
	select {
	case w.jobs <- e:
		return
	default:
	}
	timer := time.NewTimer(w.maxWait)
	defer timer.Stop()
	select {
	case w.jobs <- e:
	case <-timer.C:
		w.log.Warn("lead journal queue full, entry dropped", "listing_id", e.ListingID)
	case <-ctx.Done():
		w.log.Warn("lead journal queue full, entry dropped", "listing_id", e.ListingID, "err", ctx.Err())
	}
}

// Stop drains queued entries and waits for the worker to exit.
func (w *Worker) Stop() {
	w.once.Do(func() { close(w.jobs) })
	w.wg.Wait()
}
