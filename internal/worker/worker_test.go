package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/config"
	"internattend/internal/qrtoken"
	"internattend/internal/queue"
)

type directory map[string]attendance.Student

func (d directory) Student(_ context.Context, id string) (attendance.Student, error) {
	st, ok := d[id]
	if !ok {
		return attendance.Student{}, attendance.ErrStudentNotFound
	}
	return st, nil
}

func newRegenerator(t *testing.T, dir directory) (*Regenerator, string) {
	t.Helper()
	codec, err := qrtoken.NewCodec("worker-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	path := t.TempDir()
	store, err := qrtoken.NewDirStore(path)
	if err != nil {
		t.Fatal(err)
	}
	return &Regenerator{Students: dir, Codec: codec, Artifacts: store, Size: 96, Log: zap.NewNop()}, path
}

func pngs(t *testing.T, dir string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRegenerateWritesArtifact(t *testing.T) {
	dir := directory{"s1": {ID: "s1", Code: "2110511001", Active: true}}
	r, path := newRegenerator(t, dir)
	ctx := context.Background()

	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}
	files := pngs(t, path)
	want := "2110511001-" + r.Codec.Issue("s1", "2110511001").Signature + ".png"
	if len(files) != 1 || filepath.Base(files[0]) != want {
		t.Fatalf("artifacts = %v, want %s", files, want)
	}

	// a rotated secret yields a new signature and supersedes the old image
	r.Codec, _ = qrtoken.NewCodec("rotated-worker-secret")
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if files := pngs(t, path); len(files) != 1 || filepath.Base(files[0]) == want {
		t.Fatalf("artifacts after rotation = %v", files)
	}
}

func TestRegenerateRetiresInactive(t *testing.T) {
	dir := directory{"s1": {ID: "s1", Code: "2110511001", Active: true}}
	r, path := newRegenerator(t, dir)
	ctx := context.Background()
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}

	dir["s1"] = attendance.Student{ID: "s1", Code: "2110511001", Active: false}
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if files := pngs(t, path); len(files) != 0 {
		t.Fatalf("artifacts = %v, want none", files)
	}
}

func TestRegenerateRetiresPreviousCode(t *testing.T) {
	dir := directory{"s1": {ID: "s1", Code: "OLD001", Active: true}}
	r, path := newRegenerator(t, dir)
	ctx := context.Background()
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}

	dir["s1"] = attendance.Student{ID: "s1", Code: "NEW001", Active: true}
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1", PreviousCode: "OLD001"}); err != nil {
		t.Fatal(err)
	}
	files := pngs(t, path)
	want := "NEW001-" + r.Codec.Issue("s1", "NEW001").Signature + ".png"
	if len(files) != 1 || filepath.Base(files[0]) != want {
		t.Fatalf("artifacts = %v, want only %s", files, want)
	}
}

func TestRegenerateRetiresPreviousCodeWhenInactive(t *testing.T) {
	dir := directory{"s1": {ID: "s1", Code: "OLD001", Active: true}}
	r, path := newRegenerator(t, dir)
	ctx := context.Background()
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}

	dir["s1"] = attendance.Student{ID: "s1", Code: "NEW001", Active: false}
	if err := r.Handle(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1", PreviousCode: "OLD001"}); err != nil {
		t.Fatal(err)
	}
	if files := pngs(t, path); len(files) != 0 {
		t.Fatalf("artifacts = %v, want none", files)
	}
}

func TestRegenerateUnknownStudentIsDropped(t *testing.T) {
	r, _ := newRegenerator(t, directory{})
	if err := r.Handle(context.Background(), queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "ghost"}); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := r.Handle(context.Background(), queue.Job{Kind: "face.enroll", SubjectID: "ghost"}); err == nil {
		t.Fatal("unsupported kind should fail")
	}
}

func TestConsumeDrainsChannel(t *testing.T) {
	jobs := make(chan queue.Job, 3)
	jobs <- queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "a"}
	jobs <- queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "b"}
	jobs <- queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "c"}
	close(jobs)

	var seen []string
	n := Consume(context.Background(), jobs, func(_ context.Context, j queue.Job) error {
		seen = append(seen, j.SubjectID)
		if j.SubjectID == "b" {
			return errors.New("render failed")
		}
		return nil
	}, zap.NewNop())
	if n != 3 || len(seen) != 3 {
		t.Fatalf("processed %d, seen %v", n, seen)
	}
}

func TestInMemoryQueueFeedsRegenerator(t *testing.T) {
	path := t.TempDir()
	artifacts, err := NewArtifactStore(config.App{QRArtifactDir: path}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	codec, err := qrtoken.NewCodec("worker-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	r := &Regenerator{
		Students:  directory{"s1": {ID: "s1", Code: "2110511001", Active: true}},
		Codec:     codec,
		Artifacts: artifacts,
		Size:      96,
		Log:       zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewInMemory(4)
	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan int)
	go func() { done <- Consume(ctx, jobs, r.Handle, zap.NewNop()) }()

	if err := q.Publish(ctx, queue.Job{Kind: queue.KindRegenerateQR, SubjectID: "s1"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(pngs(t, path)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no artifact written by the consumer")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if n := <-done; n != 1 {
		t.Fatalf("processed %d jobs, want 1", n)
	}
}

type fakeMaterializer struct {
	today time.Time
	got   time.Time
	err   error
}

func (f *fakeMaterializer) Today() time.Time { return f.today }

func (f *fakeMaterializer) MaterializeAbsences(_ context.Context, date time.Time) (int, error) {
	f.got = date
	return 4, f.err
}

func TestAbsenceJobUsesServiceToday(t *testing.T) {
	m := &fakeMaterializer{today: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}
	AbsenceJob(m, time.Second, zap.NewNop())()
	if !m.got.Equal(m.today) {
		t.Fatalf("materialized %v, want %v", m.got, m.today)
	}
	m.err = attendance.ErrNoActiveSchedule
	AbsenceJob(m, time.Second, zap.NewNop())()
}

func TestNewCronParsesDefaultSpec(t *testing.T) {
	c := NewCron(time.UTC, zap.NewNop())
	if _, err := c.AddFunc("55 23 * * 1-5", func() {}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddFunc("not a spec", func() {}); err == nil {
		t.Fatal("expected parse error")
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("entries = %d", len(c.Entries()))
	}
}
