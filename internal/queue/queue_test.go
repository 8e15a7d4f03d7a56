package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Job{Kind: KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}
	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case job := <-jobs:
		if job.SubjectID != "s1" || job.Kind != KindRegenerateQR || job.EnqueuedAt.IsZero() {
			t.Fatalf("job = %+v", job)
		}
	case <-time.After(time.Second):
		t.Fatal("no job delivered")
	}

	cancel()
	select {
	case _, ok := <-jobs:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestPublishRejectsBadJobs(t *testing.T) {
	q := NewInMemory(1)
	if err := q.Publish(context.Background(), Job{Kind: "face.enroll", SubjectID: "s1"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if err := q.Publish(context.Background(), Job{Kind: KindRegenerateQR}); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Job{Kind: KindRegenerateQR, SubjectID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, Job{Kind: KindRegenerateQR, SubjectID: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestDecode(t *testing.T) {
	job, err := decode(`{"kind":"qr.regenerate","subject_id":"s9","enqueued_at":"2024-01-10T01:00:00Z"}`)
	if err != nil || job.SubjectID != "s9" {
		t.Fatalf("decode = %+v, %v", job, err)
	}
	if _, err := decode("qr.regenerate|s9"); err == nil {
		t.Fatal("expected error for legacy pipe format")
	}
}
