package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	_ Store     = (*MemoryStore)(nil)
	_ Directory = (*MemoryStore)(nil)
)

// MemoryStore keeps the ledger in process. Transactions run one at a time on a
// copy of the state that replaces the original only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type dayKey struct {
	studentID string
	date      time.Time
}

type memState struct {
	students  map[string]Student
	schedules []Schedule
	records   map[string]Record
	byDay     map[dayKey]string
	leaves    map[string]LeaveRequest
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			students: make(map[string]Student),
			records:  make(map[string]Record),
			byDay:    make(map[dayKey]string),
			leaves:   make(map[string]LeaveRequest),
		},
		now: time.Now,
	}
}

// PutStudent adds or replaces a directory entry.
func (m *MemoryStore) PutStudent(st Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.students[st.ID] = st
}

// UpsertStudent implements Directory.
func (m *MemoryStore) UpsertStudent(ctx context.Context, st Student) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.state.students[st.ID]
	m.state.students[st.ID] = st
	return old.Code, nil
}

// WithTx implements Store.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		students:  make(map[string]Student, len(s.students)),
		schedules: make([]Schedule, len(s.schedules)),
		records:   make(map[string]Record, len(s.records)),
		byDay:     make(map[dayKey]string, len(s.byDay)),
		leaves:    make(map[string]LeaveRequest, len(s.leaves)),
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	copy(c.schedules, s.schedules)
	for k, v := range s.records {
		c.records[k] = cloneRecord(v)
	}
	for k, v := range s.byDay {
		c.byDay[k] = v
	}
	for k, v := range s.leaves {
		c.leaves[k] = cloneLeave(v)
	}
	return c
}

func cloneRecord(r Record) Record {
	if r.CheckInAt != nil {
		r.CheckInAt = ptr(*r.CheckInAt)
	}
	if r.CheckOutAt != nil {
		r.CheckOutAt = ptr(*r.CheckOutAt)
	}
	if r.CheckInStatus != nil {
		r.CheckInStatus = ptr(*r.CheckInStatus)
	}
	if r.ScanLatitude != nil {
		r.ScanLatitude = ptr(*r.ScanLatitude)
	}
	if r.ScanLongitude != nil {
		r.ScanLongitude = ptr(*r.ScanLongitude)
	}
	return r
}

func cloneLeave(l LeaveRequest) LeaveRequest {
	if l.DecidedAt != nil {
		l.DecidedAt = ptr(*l.DecidedAt)
	}
	return l
}

type memTx struct {
	s   *memState
	now func() time.Time
}

func (t *memTx) Student(_ context.Context, id string) (Student, error) {
	st, ok := t.s.students[id]
	if !ok {
		return Student{}, ErrStudentNotFound
	}
	return st, nil
}

func (t *memTx) LockStudent(ctx context.Context, id string) (Student, error) {
	return t.Student(ctx, id)
}

func (t *memTx) ActiveStudents(context.Context) ([]Student, error) {
	var out []Student
	for _, st := range t.s.students {
		if st.Active {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ActiveSchedule(context.Context) (Schedule, error) {
	for _, sc := range t.s.schedules {
		if sc.Active {
			return sc, nil
		}
	}
	return Schedule{}, ErrNoActiveSchedule
}

func (t *memTx) Schedule(_ context.Context, id string) (Schedule, error) {
	for _, sc := range t.s.schedules {
		if sc.ID == id {
			return sc, nil
		}
	}
	return Schedule{}, ErrNoActiveSchedule
}

func (t *memTx) AppendSchedule(_ context.Context, sched Schedule) (Schedule, error) {
	for i := range t.s.schedules {
		t.s.schedules[i].Active = false
	}
	sched.ID = uuid.NewString()
	sched.Version = int64(len(t.s.schedules) + 1)
	sched.Active = true
	sched.CreatedAt = t.now().UTC()
	t.s.schedules = append(t.s.schedules, sched)
	return sched, nil
}

func (t *memTx) ListSchedules(context.Context) ([]Schedule, error) {
	out := make([]Schedule, 0, len(t.s.schedules))
	for i := len(t.s.schedules) - 1; i >= 0; i-- {
		out = append(out, t.s.schedules[i])
	}
	return out, nil
}

func (t *memTx) RecordForDay(_ context.Context, studentID string, date time.Time) (Record, error) {
	id, ok := t.s.byDay[dayKey{studentID, DateOf(date)}]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(t.s.records[id]), nil
}

func (t *memTx) InsertRecord(_ context.Context, rec Record) (Record, error) {
	key := dayKey{rec.StudentID, DateOf(rec.Date)}
	if _, ok := t.s.byDay[key]; ok {
		return Record{}, ErrDuplicateScan
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := t.now().UTC()
	rec.Date = key.date
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec = cloneRecord(rec)
	t.s.records[rec.ID] = rec
	t.s.byDay[key] = rec.ID
	return cloneRecord(rec), nil
}

func (t *memTx) update(id string, fn func(*Record)) (Record, error) {
	rec, ok := t.s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	fn(&rec)
	rec.UpdatedAt = t.now().UTC()
	t.s.records[id] = rec
	return cloneRecord(rec), nil
}

func (t *memTx) ApplyCheckIn(_ context.Context, id string, in CheckIn) (Record, error) {
	return t.update(id, func(r *Record) {
		r.CheckInAt = ptr(in.At)
		r.CheckInStatus = ptr(in.Status)
		r.Presence = Present
		r.ScanLatitude = ptr(in.Point.Latitude)
		r.ScanLongitude = ptr(in.Point.Longitude)
		r.WithinRadius = in.WithinRadius
		r.DeviceInfo = in.DeviceInfo
		if in.ScheduleID != "" {
			r.ScheduleID = in.ScheduleID
		}
	})
}

func (t *memTx) SetCheckOut(_ context.Context, id string, at time.Time) (Record, error) {
	return t.update(id, func(r *Record) { r.CheckOutAt = ptr(at) })
}

func (t *memTx) UpsertLeaveDay(ctx context.Context, studentID, scheduleID string, date time.Time) (bool, error) {
	if id, ok := t.s.byDay[dayKey{studentID, DateOf(date)}]; ok {
		_, err := t.update(id, func(r *Record) { r.Presence = OnLeave })
		return false, err
	}
	_, err := t.InsertRecord(ctx, Record{
		StudentID:    studentID,
		ScheduleID:   scheduleID,
		Date:         date,
		Presence:     OnLeave,
		WithinRadius: true,
	})
	return err == nil, err
}

func (t *memTx) InsertAbsentIfMissing(ctx context.Context, studentID, scheduleID string, date time.Time) (bool, error) {
	if _, ok := t.s.byDay[dayKey{studentID, DateOf(date)}]; ok {
		return false, nil
	}
	_, err := t.InsertRecord(ctx, Record{
		StudentID:  studentID,
		ScheduleID: scheduleID,
		Date:       date,
		Presence:   Absent,
	})
	return err == nil, err
}

func (t *memTx) ListRecords(_ context.Context, f RecordFilter) ([]Record, error) {
	var out []Record
	for _, r := range t.s.records {
		if f.StudentID != "" && r.StudentID != f.StudentID {
			continue
		}
		if !f.From.IsZero() && r.Date.Before(DateOf(f.From)) {
			continue
		}
		if !f.To.IsZero() && r.Date.After(DateOf(f.To)) {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StudentID < out[j].StudentID
	})
	return page(out, f.Limit, f.Offset), nil
}

func (t *memTx) InsertLeaveRequest(_ context.Context, req LeaveRequest) (LeaveRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = t.now().UTC()
	t.s.leaves[req.ID] = cloneLeave(req)
	return req, nil
}

func (t *memTx) LeaveRequest(_ context.Context, id string) (LeaveRequest, error) {
	req, ok := t.s.leaves[id]
	if !ok {
		return LeaveRequest{}, ErrLeaveNotFound
	}
	return cloneLeave(req), nil
}

func (t *memTx) OverlappingLeave(_ context.Context, studentID string, span Span) ([]LeaveRequest, error) {
	var out []LeaveRequest
	for _, l := range t.s.leaves {
		if l.StudentID != studentID || l.Status == LeaveRejected {
			continue
		}
		if l.Span().Overlaps(span) {
			out = append(out, cloneLeave(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (t *memTx) UpdateLeaveDecision(_ context.Context, id string, status LeaveStatus, reason, decidedBy string, at time.Time) error {
	req, ok := t.s.leaves[id]
	if !ok {
		return ErrLeaveNotFound
	}
	req.Status = status
	req.ResponseReason = reason
	req.DecidedBy = decidedBy
	req.DecidedAt = ptr(at)
	t.s.leaves[id] = req
	return nil
}

func (t *memTx) ListLeaveRequests(_ context.Context, f LeaveFilter) ([]LeaveRequest, error) {
	var out []LeaveRequest
	for _, l := range t.s.leaves {
		if f.StudentID != "" && l.StudentID != f.StudentID {
			continue
		}
		if f.SupervisorID != "" && l.SupervisorID != f.SupervisorID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, cloneLeave(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
