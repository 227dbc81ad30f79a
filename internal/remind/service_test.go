package remind

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

var base = time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local)

type inlineExec struct{}

func (inlineExec) Enqueue(t engine.Task) error {
	err := t.Run(context.Background())
	if t.Done != nil {
		t.Done(err)
	}
	return nil
}

type fakeOut struct {
	mu       sync.Mutex
	got      []notifier.Delivery
	err      error
	failures int // fail this many deliveries before using err
	sent     chan struct{}
}

func newFakeOut() *fakeOut { return &fakeOut{sent: make(chan struct{}, 16)} }

func (f *fakeOut) Deliver(_ context.Context, d notifier.Delivery) error {
	f.mu.Lock()
	f.got = append(f.got, d)
	err := f.err
	if f.failures > 0 {
		f.failures--
		err = errors.New("transient send failure")
	}
	f.mu.Unlock()
	f.sent <- struct{}{}
	return err
}

type fixture struct {
	backend *storage.Memory
	store   *storage.Store
	sched   *scheduler.Service
	out     *fakeOut
	svc     *Service
}

// newFixture builds a service whose scheduler clock runs ahead by schedLead,
// so Instants closer than that fire as soon as they are armed.
func newFixture(t *testing.T, backend *storage.Memory, schedLead time.Duration) *fixture {
	t.Helper()
	if backend == nil {
		backend = storage.NewMemory()
	}
	f := &fixture{backend: backend, out: newFakeOut()}
	f.store = storage.New(backend, logx.Nop())
	f.sched = scheduler.New(scheduler.Config{}, inlineExec{}, logx.Nop(),
		scheduler.WithClock(func() time.Time { return base.Add(schedLead) }))
	seq := 0
	f.svc = New(Config{SendJitter: DefaultSendJitter}, f.store, f.sched, f.out, logx.Nop(), nil,
		WithClock(func() time.Time { return base }),
		WithJitter(func(min, max time.Duration) time.Duration { return max }),
		WithIDs(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	return f
}

func instantReq(at time.Time) CreateRequest {
	return CreateRequest{OwnerID: 1, Scope: reminder.Group(42), Body: reminder.Text("开会"), Schedule: reminder.Instant(at)}
}

func TestCreateRejectsPastTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	for _, at := range []time.Time{base, base.Add(-time.Minute)} {
		if _, err := f.svc.Create(context.Background(), instantReq(at)); !errors.Is(err, ErrPastTime) {
			t.Fatalf("Create(%v) err = %v, want ErrPastTime", at, err)
		}
	}
	if f.store.Len() != 0 || f.sched.Len() != 0 || f.backend.Writes() != 0 {
		t.Fatalf("state touched: records=%d handles=%d writes=%d", f.store.Len(), f.sched.Len(), f.backend.Writes())
	}
}

func TestCreateAddsJitterAndDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	rec, err := f.svc.Create(context.Background(), instantReq(base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "id-1" || !rec.CreatedAt.Equal(base) {
		t.Fatalf("record = %+v", rec)
	}
	if want := base.Add(time.Hour + DefaultSendJitter); !rec.Schedule.At.Equal(want) {
		t.Fatalf("At = %v, want %v", rec.Schedule.At, want)
	}
	if len(rec.Recipients) != 1 || rec.Recipients[0].UserID != 1 {
		t.Fatalf("recipients = %+v", rec.Recipients)
	}
	if !f.sched.Has("id-1") || f.store.Len() != 1 {
		t.Fatal("record not stored and scheduled together")
	}

	// Recurrences get no jitter.
	daily := reminder.Repeating(reminder.Recurrence{Hour: reminder.IntPtr(8), Minute: reminder.IntPtr(0)})
	rec, err = f.svc.Create(context.Background(), CreateRequest{OwnerID: 1, Schedule: daily, Body: reminder.Text("早安")})
	if err != nil {
		t.Fatalf("Create recurrence: %v", err)
	}
	if !rec.Schedule.Recurrence.Equal(daily.Recurrence) || !f.sched.Has(rec.ID) {
		t.Fatalf("recurrence = %+v", rec)
	}
}

func TestCreatePersistFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	f.backend.SetFailWrites(errors.New("disk full"))
	if _, err := f.svc.Create(context.Background(), instantReq(base.Add(time.Hour))); !errors.Is(err, storage.ErrPersist) {
		t.Fatalf("err = %v, want ErrPersist", err)
	}
	if f.store.Len() != 0 || f.sched.Len() != 0 {
		t.Fatalf("records=%d handles=%d", f.store.Len(), f.sched.Len())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFireDeliversAndCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 2*time.Hour)
	f.sched.Start(context.Background())
	defer f.sched.Stop(context.Background())

	rec, err := f.svc.Create(context.Background(), instantReq(base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-f.out.sent
	waitFor(t, "completion", func() bool { return f.store.Len() == 0 })

	f.out.mu.Lock()
	d := f.out.got[0]
	f.out.mu.Unlock()
	if d.Chat != 42 || d.Body.PlainText() != "开会" || !strings.HasPrefix(d.Key, rec.ID+"@") {
		t.Fatalf("delivery = %+v", d)
	}
	if f.sched.Has(rec.ID) {
		t.Fatal("one-shot handle still live")
	}
}

func TestFailedDeliveryIsRearmed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 2*time.Hour)
	f.out.failures = 2
	f.sched.Start(context.Background())
	defer f.sched.Stop(context.Background())

	rec, err := f.svc.Create(context.Background(), instantReq(base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 3; i++ {
		<-f.out.sent
	}
	waitFor(t, "completion", func() bool { return f.store.Len() == 0 })
	if f.sched.Has(rec.ID) {
		t.Fatal("handle left after successful redelivery")
	}
	f.out.mu.Lock()
	n := len(f.out.got)
	f.out.mu.Unlock()
	if n != 3 {
		t.Fatalf("deliveries = %d, want 3", n)
	}
}

func TestRedeliveryGivesUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 2*time.Hour)
	f.out.err = errors.New("chat unreachable")
	f.svc.Apply(Config{MaxRedeliveries: 2})
	f.sched.Start(context.Background())
	defer f.sched.Stop(context.Background())

	rec, err := f.svc.Create(context.Background(), instantReq(base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, "drop", func() bool { return f.store.Len() == 0 })
	if f.svc.Live(rec.ID) {
		t.Fatal("dropped record still has a live trigger")
	}
	f.out.mu.Lock()
	n := len(f.out.got)
	f.out.mu.Unlock()
	if n != 3 {
		t.Fatalf("deliveries = %d, want 1 + 2 redeliveries", n)
	}
}

func TestFailedDeliveryStaysListedAndDeletable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 2*time.Hour)
	f.out.err = errors.New("chat unreachable")
	f.svc.Apply(Config{RedeliveryDelay: 3 * time.Hour})
	f.sched.Start(context.Background())
	defer f.sched.Stop(context.Background())

	rec, err := f.svc.Create(context.Background(), instantReq(base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-f.out.sent
	waitFor(t, "re-arm", func() bool { return f.svc.Live(rec.ID) })
	if _, ok := f.store.Get(rec.ID); !ok {
		t.Fatal("undelivered record was dropped")
	}
	if err := f.svc.Remove(context.Background(), []string{rec.ID}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if f.store.Len() != 0 || f.sched.Len() != 0 {
		t.Fatalf("records=%d handles=%d after delete", f.store.Len(), f.sched.Len())
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, instantReq(base.Add(time.Hour)))
	b, _ := f.svc.Create(ctx, instantReq(base.Add(2*time.Hour)))

	if _, err := f.svc.Delete(ctx, []string{a.ID, "ghost"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if f.store.Len() != 2 || f.sched.Len() != 2 {
		t.Fatal("partial delete")
	}

	// A record whose handle is gone blocks the whole batch.
	_ = f.sched.Cancel(b.ID)
	if _, err := f.svc.Delete(ctx, []string{a.ID, b.ID}); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("err = %v, want scheduler.ErrNotFound", err)
	}
	if f.store.Len() != 2 || !f.sched.Has(a.ID) {
		t.Fatal("partial delete after cancel failure")
	}

	removed, err := f.svc.Delete(ctx, []string{a.ID})
	if err != nil || len(removed) != 1 || removed[0].ID != a.ID {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if f.sched.Has(a.ID) {
		t.Fatal("handle survived delete")
	}
}

func TestStartup(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemory()
	seed := storage.New(backend, logx.Nop())
	ctx := context.Background()
	late := reminder.Record{ID: "late", OwnerID: 1, Recipients: []reminder.Mention{reminder.MentionUser(1)}, Body: reminder.Text("吃药"), Schedule: reminder.Instant(base.Add(-2 * time.Hour)), CreatedAt: base.Add(-3 * time.Hour)}
	soon := late
	soon.ID, soon.Schedule = "soon", reminder.Instant(base.Add(time.Hour))
	daily := late
	daily.ID, daily.Schedule = "daily", reminder.Repeating(reminder.Recurrence{Hour: reminder.IntPtr(8), Minute: reminder.IntPtr(0)})
	for _, r := range []reminder.Record{late, soon, daily} {
		if err := seed.Create(ctx, r, nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	f := newFixture(t, backend, 0)
	if _, _, _, err := f.svc.Next(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Next before startup err = %v", err)
	}
	rep, err := f.svc.Startup(ctx)
	if err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if rep.Total != 3 || rep.Expired != 1 || rep.OnTime != 2 || rep.Scheduled != 3 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if got := rep.Summary(); got != "已载入 2 个任务，1 个过时任务已补发" {
		t.Fatalf("Summary = %q", got)
	}
	if !f.svc.Ready() {
		t.Fatal("not ready after startup")
	}

	r, _ := f.store.Get("late")
	if want := base.Add(storage.ReconcileJitterMax); !r.Schedule.At.Equal(want) {
		t.Fatalf("late At = %v, want %v", r.Schedule.At, want)
	}
	if !strings.Contains(r.Body.PlainText(), "原定提醒时间为：2026-10-14 08:00") {
		t.Fatalf("late body = %q", r.Body.PlainText())
	}

	at, next, found, err := f.svc.Next()
	if err != nil || !found || next.ID != "late" || !at.Equal(r.Schedule.At) {
		t.Fatalf("Next = %v %s %v %v", at, next.ID, found, err)
	}
	if last, ok := f.svc.LastStartup(); !ok || last != rep {
		t.Fatalf("LastStartup = %+v", last)
	}
}

func TestStartupSummaryAllOnTime(t *testing.T) {
	t.Parallel()

	rep := StartupReport{Total: 4, OnTime: 4}
	if got := rep.Summary(); got != "全部 4 个定时任务均已载入完成" {
		t.Fatalf("Summary = %q", got)
	}
}
