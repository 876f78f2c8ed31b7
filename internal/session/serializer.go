// Package session orders work per chat identity.
package session

import (
	"log/slog"
	"sync"
)

// Serializer runs tasks for the same key strictly one after another in
// submission order, while tasks for different keys run concurrently.
type Serializer struct {
	mu     sync.Mutex
	queues map[string]*queue
	wg     sync.WaitGroup
	log    *slog.Logger
}

type queue struct {
	tasks []func()
}

func NewSerializer(logger *slog.Logger) *Serializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serializer{queues: map[string]*queue{}, log: logger.With("component", "serializer")}
}

// Submit enqueues fn for key and returns immediately. Order is fixed at the
// moment Submit returns.
func (s *Serializer) Submit(key string, fn func()) {
	s.mu.Lock()
	q, running := s.queues[key]
	if !running {
		q = &queue{}
		s.queues[key] = q
	}
	q.tasks = append(q.tasks, fn)
	if !running {
		s.wg.Add(1)
		go s.drain(key, q)
	}
	s.mu.Unlock()
}

// Wait blocks until every queue has drained.
func (s *Serializer) Wait() {
	s.wg.Wait()
}

// Pending reports how many keys currently have queued or running work.
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

func (s *Serializer) drain(key string, q *queue) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(q.tasks) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		s.mu.Unlock()

		s.run(key, task)
	}
}

func (s *Serializer) run(key string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", "key", key, "panic", r)
		}
	}()
	task()
}
