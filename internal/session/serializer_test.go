package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerializerPreservesOrderPerKey(t *testing.T) {
	t.Parallel()

	s := NewSerializer(nil)
	var (
		mu  sync.Mutex
		got = map[string][]int{}
	)
	for i := 0; i < 50; i++ {
		for _, key := range []string{"tg:1", "tg:2", "wa:3"} {
			i, key := i, key
			s.Submit(key, func() {
				if i%7 == 0 {
					time.Sleep(time.Millisecond)
				}
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			})
		}
	}
	s.Wait()

	for key, seq := range got {
		if len(seq) != 50 {
			t.Fatalf("%s: ran %d tasks, want 50", key, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("%s: position %d ran task %d", key, i, v)
			}
		}
	}
	if s.Pending() != 0 {
		t.Fatalf("queues not cleaned up: %d", s.Pending())
	}
}

func TestSerializerNeverOverlapsSameKey(t *testing.T) {
	t.Parallel()

	s := NewSerializer(nil)
	var active, maxActive int32
	for i := 0; i < 20; i++ {
		s.Submit("same", func() {
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(200 * time.Microsecond)
			atomic.AddInt32(&active, -1)
		})
	}
	s.Wait()
	if maxActive != 1 {
		t.Fatalf("observed %d concurrent tasks for one key", maxActive)
	}
}

func TestSerializerSurvivesPanic(t *testing.T) {
	t.Parallel()

	s := NewSerializer(nil)
	s.Submit("k", func() { panic("boom") })

	ran := make(chan struct{})
	s.Submit("k", func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task after a panic never ran")
	}
	s.Wait()
	if n := s.Pending(); n != 0 {
		t.Fatalf("pending = %d after drain", n)
	}
}
