package timeparse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse/extract"
	"remindbot/internal/timeparse/llm"
	logx "remindbot/pkg/logx"
)

var now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local)

type fakeFallback struct {
	mu         sync.Mutex
	point      string
	recurrence string
	calls      []string
}

func (f *fakeFallback) ResolvePoint(_ context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "point:"+text)
	return f.point
}

func (f *fakeFallback) ResolveRecurrence(_ context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "recurrence:"+text)
	return f.recurrence
}

func newResolver(fb Fallback) *Resolver {
	return New(extract.New(), fb, logx.Nop(), WithClock(func() time.Time { return now }))
}

func TestResolveOffline(t *testing.T) {
	t.Parallel()

	r := newResolver(nil)
	cases := []struct {
		in   string
		kind Kind
		at   time.Time
		rec  reminder.Recurrence
	}{
		{in: "半小时后", kind: Instant, at: now.Add(30 * time.Minute)},
		{in: "10到20分钟后", kind: Instant, at: now.Add(10 * time.Minute)},
		{in: "两个月后", kind: Instant, at: now.Add(60 * 24 * time.Hour)},
		{in: "明天下午3点", kind: Instant, at: time.Date(2026, 10, 15, 15, 0, 0, 0, time.Local)},
		{in: "明天", kind: Instant, at: time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local)},
		{in: "每天8:00", kind: Recurrence, rec: reminder.Recurrence{Hour: reminder.IntPtr(8), Minute: reminder.IntPtr(0)}},
		{in: "每小时30分", kind: Recurrence, rec: reminder.Recurrence{Minute: reminder.IntPtr(30)}},
		{in: "每周三14:00", kind: Recurrence, rec: reminder.Recurrence{Weekday: reminder.IntPtr(2), Hour: reminder.IntPtr(14), Minute: reminder.IntPtr(0)}},
		{in: "每月15号9:30", kind: Recurrence, rec: reminder.Recurrence{Day: reminder.IntPtr(15), Hour: reminder.IntPtr(9), Minute: reminder.IntPtr(30)}},
		{in: "每年3月15日", kind: Recurrence, rec: reminder.Recurrence{Month: reminder.IntPtr(3), Day: reminder.IntPtr(15), Hour: reminder.IntPtr(9), Minute: reminder.IntPtr(0)}},
		{in: "每隔3天", kind: Unresolved},
		{in: "每两小时", kind: Unresolved},
		{in: "随便什么时候", kind: Unresolved},
		{in: "   ", kind: Unresolved},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			res := r.Resolve(context.Background(), tc.in)
			if res.Kind != tc.kind {
				t.Fatalf("Resolve(%q).Kind = %s, want %s", tc.in, res.Kind, tc.kind)
			}
			switch tc.kind {
			case Instant:
				if !res.At.Equal(tc.at) {
					t.Fatalf("Resolve(%q).At = %v, want %v", tc.in, res.At, tc.at)
				}
			case Recurrence:
				if !res.Recurrence.Equal(tc.rec) {
					t.Fatalf("Resolve(%q).Recurrence = %v, want %v", tc.in, res.Recurrence, tc.rec)
				}
			}
			if res.OK() && res.Source != "offline" {
				t.Fatalf("source=%q", res.Source)
			}
		})
	}
}

func TestResolveFallsBack(t *testing.T) {
	t.Parallel()

	fb := &fakeFallback{point: "2026-10-15 15:00", recurrence: "{'day_of_week': 'fri', 'hour': 18, 'minute': 0}"}
	r := newResolver(fb)

	res := r.Resolve(context.Background(), "明天三点左右吧")
	if res.Kind != Instant || res.Source != "llm" || !res.At.Equal(time.Date(2026, 10, 15, 15, 0, 0, 0, time.Local)) {
		t.Fatalf("point fallback = %+v", res)
	}

	res = r.Resolve(context.Background(), "每个周五下班的时候")
	want := reminder.Recurrence{Weekday: reminder.IntPtr(4), Hour: reminder.IntPtr(18), Minute: reminder.IntPtr(0)}
	if res.Kind != Recurrence || !res.Recurrence.Equal(want) {
		t.Fatalf("recurrence fallback = %+v", res)
	}

	// Offline success never reaches the fallback.
	r.Resolve(context.Background(), "半小时后")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.calls) != 2 || fb.calls[0] != "point:明天三点左右吧" || fb.calls[1] != "recurrence:每个周五下班的时候" {
		t.Fatalf("calls=%v", fb.calls)
	}
}

func TestResolveRejectsSentinels(t *testing.T) {
	t.Parallel()

	for _, answer := range []string{llm.SentinelNone, llm.SentinelTimeout, llm.SentinelError, "明天", "2026/10/15 15:00"} {
		fb := &fakeFallback{point: answer, recurrence: answer}
		r := newResolver(fb)
		if res := r.Resolve(context.Background(), "某个时候"); res.OK() {
			t.Errorf("point answer %q accepted: %+v", answer, res)
		}
		if res := r.Resolve(context.Background(), "每逢佳节"); res.OK() {
			t.Errorf("recurrence answer %q accepted: %+v", answer, res)
		}
	}

	fb := &fakeFallback{recurrence: "{'hour': 25, 'minute': 0}"}
	if res := newResolver(fb).Resolve(context.Background(), "每逢佳节"); res.OK() {
		t.Errorf("out of range recurrence accepted: %+v", res)
	}
}

func TestExtractAndSplit(t *testing.T) {
	t.Parallel()

	r := newResolver(nil)
	cases := []struct {
		in     string
		kind   Kind
		at     time.Time
		remain string
	}{
		{"明天打胶", Instant, time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local), "打胶"},
		{"一分钟后开会", Instant, now.Add(time.Minute), "开会"},
		{"下午3点交作业", Instant, time.Date(2026, 10, 14, 15, 0, 0, 0, time.Local), "交作业"},
		{"记得 明天 带伞", Instant, time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local), "记得  带伞"},
		{"每天8:00吃药", Recurrence, time.Time{}, "吃药"},
		{"吃药", Unresolved, time.Time{}, "吃药"},
		{"每隔3天浇花", Unresolved, time.Time{}, "每隔3天浇花"},
	}
	for _, tc := range cases {
		res, rest := r.ExtractAndSplit(context.Background(), tc.in)
		if res.Kind != tc.kind || rest != tc.remain {
			t.Errorf("ExtractAndSplit(%q) = %s %q, want %s %q", tc.in, res.Kind, rest, tc.kind, tc.remain)
			continue
		}
		if tc.kind == Instant && !res.At.Equal(tc.at) {
			t.Errorf("ExtractAndSplit(%q).At = %v, want %v", tc.in, res.At, tc.at)
		}
	}
}

func TestExtractAndSplitWholeTextFallback(t *testing.T) {
	t.Parallel()

	fb := &fakeFallback{point: "2026-10-15 08:00"}
	res, rest := newResolver(fb).ExtractAndSplit(context.Background(), "等我睡醒")
	if res.Kind != Instant || rest != "" {
		t.Fatalf("got %+v %q", res, rest)
	}
}

func TestPeriodRecurrenceUnsupported(t *testing.T) {
	t.Parallel()

	_, err := PeriodRecurrence(extract.Period{Delta: extract.Delta{Day: 3}, Point: now})
	if !errors.Is(err, ErrUnsupportedPeriod) {
		t.Fatalf("expected ErrUnsupportedPeriod, got %v", err)
	}
}

func TestCustomStages(t *testing.T) {
	t.Parallel()

	fixed := Stage{Name: "fixed", Run: func(context.Context, string, time.Time) (Result, bool) {
		return Result{Kind: Instant, At: now.Add(time.Hour)}, true
	}}
	r := New(nil, nil, logx.Nop(), WithClock(func() time.Time { return now }), WithStages(fixed))
	if res := r.Resolve(context.Background(), "anything"); res.Source != "fixed" || !res.At.Equal(now.Add(time.Hour)) {
		t.Fatalf("got %+v", res)
	}
}
