// Package api serves the admin HTTP API: liveness, readiness after startup
// rehydration, and owner-scoped listing and deletion of reminders.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindbot/internal/index"
	"remindbot/internal/remind"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Reminders is the part of the reminder service the API reads and mutates.
// *remind.Service satisfies it.
type Reminders interface {
	index.Remover
	Ready() bool
	LastStartup() (remind.StartupReport, bool)
	Next() (time.Time, reminder.Record, bool, error)
}

type handler struct {
	rem    Reminders
	index  *index.Index
	log    logx.Logger
	status []statusSource
}

type statusSource struct {
	name string
	fn   func() any
}

// Option configures NewHandler.
type Option func(*handler)

// WithStatus adds a named section to GET /v1/status. fn is called per request.
func WithStatus(name string, fn func() any) Option {
	return func(h *handler) {
		if fn != nil {
			h.status = append(h.status, statusSource{name: name, fn: fn})
		}
	}
}

// NewHandler builds the chi router. pprof mounts net/http/pprof under /debug.
func NewHandler(rem Reminders, ix *index.Index, log logx.Logger, pprof bool, opts ...Option) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{rem: rem, index: ix, log: log}
	for _, o := range opts {
		o(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.requestLog)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)
	r.Route("/v1", func(r chi.Router) {
		r.Use(h.requireReady)
		r.Get("/next", h.next)
		r.Get("/status", h.statusReport)
		r.Get("/owners/{owner}/reminders", h.list)
		r.Delete("/owners/{owner}/reminders", h.delete)
	})
	if pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func (h *handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("api request",
			logx.String("rid", middleware.GetReqID(r.Context())),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("dur", time.Since(start)),
		)
	})
}

func (h *handler) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.rem.Ready() {
			writeError(w, http.StatusServiceUnavailable, "startup not finished")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) ready(w http.ResponseWriter, _ *http.Request) {
	if !h.rem.Ready() {
		writeError(w, http.StatusServiceUnavailable, "startup not finished")
		return
	}
	rep, _ := h.rem.LastStartup()
	writeJSON(w, http.StatusOK, map[string]any{"ready": true, "startup": rep, "summary": rep.Summary()})
}

func (h *handler) statusReport(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]any, len(h.status)+1)
	if rep, ok := h.rem.LastStartup(); ok {
		out["startup"] = rep
	}
	for _, s := range h.status {
		out[s.name] = s.fn()
	}
	writeJSON(w, http.StatusOK, out)
}

type reminderView struct {
	Position   int        `json:"position,omitempty"`
	ID         string     `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	GroupID    *int64     `json:"group_id"`
	Kind       string     `json:"kind"`
	Schedule   string     `json:"schedule"`
	Next       *time.Time `json:"next,omitempty"`
	Recipients []string   `json:"recipients"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
}

func viewOf(pos int, r reminder.Record, next time.Time) reminderView {
	v := reminderView{
		Position:  pos,
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		GroupID:   r.Scope.GroupID,
		Kind:      string(r.Schedule.Kind),
		Schedule:  r.Schedule.String(),
		Body:      r.Body.PlainText(),
		CreatedAt: r.CreatedAt,
	}
	if !next.IsZero() {
		n := next
		v.Next = &n
	}
	for _, m := range r.Recipients {
		if m.All {
			v.Recipients = append(v.Recipients, "all")
			continue
		}
		v.Recipients = append(v.Recipients, strconv.FormatInt(m.UserID, 10))
	}
	return v
}

func (h *handler) next(w http.ResponseWriter, _ *http.Request) {
	at, rec, found, err := h.rem.Next()
	if errors.Is(err, remind.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if at.IsZero() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	out := map[string]any{"at": at, "found": found}
	if found {
		out["reminder"] = viewOf(0, rec, at)
	}
	writeJSON(w, http.StatusOK, out)
}

// query reads {owner} and the scope/kind/order query parameters.
//
//	scope: "direct" (default) or a group chat id
//	kind:  "datetime" (default), "recurrence" or "any"
//	order: "fire" (default) or "created"
func query(r *http.Request) (int64, reminder.Scope, reminder.ScheduleKind, index.Order, error) {
	owner, err := strconv.ParseInt(chi.URLParam(r, "owner"), 10, 64)
	if err != nil {
		return 0, reminder.Scope{}, "", 0, errors.New("owner must be an integer")
	}
	q := r.URL.Query()

	scope := reminder.Direct()
	if s := strings.TrimSpace(q.Get("scope")); s != "" && s != "direct" {
		gid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, reminder.Scope{}, "", 0, errors.New(`scope must be "direct" or a group id`)
		}
		scope = reminder.Group(gid)
	}

	kind := reminder.KindInstant
	switch k := strings.TrimSpace(q.Get("kind")); k {
	case "", string(reminder.KindInstant):
	case string(reminder.KindRecurrence):
		kind = reminder.KindRecurrence
	case "any":
		kind = ""
	default:
		return 0, reminder.Scope{}, "", 0, errors.New("unknown kind " + strconv.Quote(k))
	}

	order := index.ByFireTime
	switch o := strings.TrimSpace(q.Get("order")); o {
	case "", "fire":
	case "created":
		order = index.ByCreation
	default:
		return 0, reminder.Scope{}, "", 0, errors.New("unknown order " + strconv.Quote(o))
	}
	return owner, scope, kind, order, nil
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	owner, scope, kind, order, err := query(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := h.index.Query(owner, scope, kind, order)
	out := make([]reminderView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e.Position, e.Record, e.Next))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": out})
}

// delete takes ?select= with the chat selector syntax ("1 3-5", "-s 2",
// "all"). The batch is all-or-nothing.
func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	owner, scope, kind, order, err := query(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("select"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "select is required")
		return
	}

	var positions []int
	all := strings.EqualFold(raw, index.AllToken)
	if !all {
		sel, err := index.ParseSelector(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		positions = sel.Positions
		if sel.Order == index.ByCreation {
			order = index.ByCreation
		}
	}
	list := h.index.Query(owner, scope, kind, order)
	if all {
		positions = index.All(list)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	removed, err := index.ResolveAndDelete(ctx, positions, list, h.rem)
	if err != nil {
		var missing *index.MissingError
		var outOfRange *index.RangeError
		switch {
		case errors.As(err, &outOfRange):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &missing), errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.log.Warn("api delete failed", logx.Int64("owner", owner), logx.Err(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	out := make([]reminderView, 0, len(removed))
	for _, e := range removed {
		out = append(out, viewOf(e.Position, e.Record, time.Time{}))
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": out})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
