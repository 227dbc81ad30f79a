package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"remindbot/internal/index"
	"remindbot/internal/notifier"
	"remindbot/internal/remind"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

var now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local)

type noExec struct{}

func (noExec) Enqueue(engine.Task) error { return nil }

type noOut struct{}

func (noOut) Deliver(context.Context, notifier.Delivery) error { return nil }

func newService(t *testing.T) (*remind.Service, *scheduler.Service) {
	t.Helper()
	clock := func() time.Time { return now }
	sched := scheduler.New(scheduler.Config{}, noExec{}, logx.Nop(), scheduler.WithClock(clock))
	seq := 0
	svc := remind.New(remind.Config{}, storage.New(storage.NewMemory(), logx.Nop()), sched, noOut{}, logx.Nop(), nil,
		remind.WithClock(clock),
		remind.WithIDs(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	return svc, sched
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestReadinessGatesAPI(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	h := NewHandler(svc, index.New(svc), logx.Nop(), false)

	if rec, _ := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before startup = %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/v1/next"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("next before startup = %d", rec.Code)
	}

	if _, err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	rec, body := do(t, h, http.MethodGet, "/readyz")
	if rec.Code != http.StatusOK || body["ready"] != true {
		t.Fatalf("readyz = %d %v", rec.Code, body)
	}
	if rec, _ := do(t, h, http.MethodGet, "/v1/next"); rec.Code != http.StatusNoContent {
		t.Fatalf("next with nothing scheduled = %d", rec.Code)
	}
}

func TestListAndDeleteReminders(t *testing.T) {
	t.Parallel()
	svc, sched := newService(t)
	if _, err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	ctx := context.Background()
	for _, at := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		_, err := svc.Create(ctx, remind.CreateRequest{OwnerID: 1, Scope: reminder.Direct(), Body: reminder.Text(at.String()), Schedule: reminder.Instant(now.Add(at))})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := svc.Create(ctx, remind.CreateRequest{OwnerID: 1, Scope: reminder.Group(-5), Body: reminder.Text("group"), Schedule: reminder.Instant(now.Add(time.Hour))}); err != nil {
		t.Fatalf("create: %v", err)
	}
	h := NewHandler(svc, index.New(svc), logx.Nop(), false)

	rec, body := do(t, h, http.MethodGet, "/v1/owners/1/reminders?scope=-5")
	if rec.Code != http.StatusOK || len(body["reminders"].([]any)) != 1 {
		t.Fatalf("group list = %d %v", rec.Code, body)
	}
	rec, body = do(t, h, http.MethodGet, "/v1/owners/1/reminders?order=created")
	list := body["reminders"].([]any)
	if rec.Code != http.StatusOK || len(list) != 4 {
		t.Fatalf("direct list = %d %v", rec.Code, body)
	}
	if first := list[0].(map[string]any); first["body"] != "3h0m0s" || first["position"] != float64(1) {
		t.Fatalf("first by creation = %v", first)
	}

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"bad owner", "/v1/owners/x/reminders?select=1", http.StatusBadRequest},
		{"no selector", "/v1/owners/1/reminders", http.StatusBadRequest},
		{"malformed", "/v1/owners/1/reminders?select=" + url.QueryEscape("1 x"), http.StatusBadRequest},
		{"reversed", "/v1/owners/1/reminders?select=3-1", http.StatusBadRequest},
		{"out of range", "/v1/owners/1/reminders?select=" + url.QueryEscape("1 9"), http.StatusNotFound},
		{"unknown kind", "/v1/owners/1/reminders?kind=x&select=1", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if rec, _ := do(t, h, http.MethodDelete, tc.target); rec.Code != tc.code {
			t.Errorf("%s: code = %d, want %d", tc.name, rec.Code, tc.code)
		}
	}
	if sched.Len() != 4 {
		t.Fatalf("failed deletes removed handles: %d", sched.Len())
	}

	// Fire-time order with see-all: 1h direct, 1h group, 2h, 3h.
	rec, body = do(t, h, http.MethodDelete, "/v1/owners/1/reminders?select="+url.QueryEscape("1 4"))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d %v", rec.Code, body)
	}
	deleted := body["deleted"].([]any)
	if len(deleted) != 2 || deleted[1].(map[string]any)["body"] != "3h0m0s" {
		t.Fatalf("deleted = %v", deleted)
	}
	if sched.Len() != 2 {
		t.Fatalf("handles = %d, want 2", sched.Len())
	}

	rec, body = do(t, h, http.MethodGet, "/v1/next")
	if rec.Code != http.StatusOK || body["found"] != true {
		t.Fatalf("next = %d %v", rec.Code, body)
	}

	if rec, _ := do(t, h, http.MethodDelete, "/v1/owners/1/reminders?select=all"); rec.Code != http.StatusOK {
		t.Fatalf("delete all = %d", rec.Code)
	}
	if n := len(svc.List()); n != 0 {
		t.Fatalf("records left = %d", n)
	}
}

func TestServerRefusesPublicBind(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Addr: "0.0.0.0:0"}, http.NotFoundHandler(), logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected refusal")
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()
	s := NewServer(Config{Addr: "127.0.0.1:0"}, NewHandler(nil, nil, logx.Nop(), false), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
	sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer scancel()
	s.Stop(sctx)
	if s.Addr() != "" {
		t.Fatalf("addr after stop = %q", s.Addr())
	}
}

func TestStatusSections(t *testing.T) {
	t.Parallel()
	svc, sched := newService(t)
	if _, err := svc.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	h := NewHandler(svc, index.New(svc), logx.Nop(), false,
		WithStatus("scheduler", func() any { return sched.Snapshot() }),
		WithStatus("skipped", nil),
	)
	rec, body := do(t, h, http.MethodGet, "/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := body["startup"]; !ok {
		t.Fatalf("missing startup: %v", body)
	}
	snap, ok := body["scheduler"].(map[string]any)
	if !ok || snap["handles"] != float64(0) {
		t.Fatalf("scheduler section = %v", body["scheduler"])
	}
	if _, ok := body["skipped"]; ok {
		t.Fatalf("nil source should be ignored")
	}
}
