package locker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalTryLock(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return now }
	ctx := context.Background()

	release, err := l.TryLock(ctx, "dispatch", time.Minute)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := l.TryLock(ctx, "dispatch", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second lock: want ErrNotAcquired, got %v", err)
	}
	if _, err := l.TryLock(ctx, "other", time.Minute); err != nil {
		t.Fatalf("independent key: %v", err)
	}

	release()
	release()
	again, err := l.TryLock(ctx, "dispatch", time.Minute)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestLocalLockExpires(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return now }

	stale, _ := l.TryLock(context.Background(), "k", time.Second)
	now = now.Add(2 * time.Second)
	fresh, err := l.TryLock(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("expired lock should be reacquirable: %v", err)
	}
	stale()
	if _, err := l.TryLock(context.Background(), "k", time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Fatal("stale release must not drop the fresh holder")
	}
	fresh()
}
