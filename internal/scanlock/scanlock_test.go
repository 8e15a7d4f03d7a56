package scanlock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalAcquireRelease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "scan:s1:2024-01-10", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Acquire(ctx, "scan:s1:2024-01-10", time.Minute); !errors.Is(err, ErrBusy) {
		t.Fatalf("second acquire = %v, want ErrBusy", err)
	}
	if _, err := l.Acquire(ctx, "scan:s2:2024-01-10", time.Minute); err != nil {
		t.Fatalf("other key should be free: %v", err)
	}
	release()
	if _, err := l.Acquire(ctx, "scan:s1:2024-01-10", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLocalExpiry(t *testing.T) {
	l := NewLocal()
	now := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Second)
	if _, err := l.Acquire(context.Background(), "k", time.Second); err != nil {
		t.Fatalf("expired lock should be reacquirable: %v", err)
	}
	// releasing the expired holder must not drop the new holder's lock
	stale()
	if _, err := l.Acquire(context.Background(), "k", time.Second); !errors.Is(err, ErrBusy) {
		t.Fatalf("stale release freed the new lock: %v", err)
	}
}
