// Package index answers "which reminders does this user see here" and maps
// the 1-based positions shown in listings back to records.
package index

import (
	"sort"
	"sync/atomic"
	"time"

	"remindbot/internal/reminder"
)

type Order int

const (
	// ByFireTime lists the soonest reminder first. Recurrences sort by their
	// next occurrence.
	ByFireTime Order = iota
	ByCreation
)

func (o Order) String() string {
	if o == ByCreation {
		return "creation"
	}
	return "fire_time"
}

// Source supplies the current record set.
type Source interface {
	List() []reminder.Record
}

// Entry is one row of a listing. Position is 1-based and only valid for the
// listing it came from.
type Entry struct {
	Position int
	Record   reminder.Record
	Next     time.Time
}

type Index struct {
	src    Source
	now    func() time.Time
	seeAll atomic.Bool
}

type Option func(*Index)

func WithClock(now func() time.Time) Option { return func(ix *Index) { ix.now = now } }

// WithSeeAllInDirect sets the initial value of the direct-context widening flag.
func WithSeeAllInDirect(v bool) Option { return func(ix *Index) { ix.seeAll.Store(v) } }

func New(src Source, opts ...Option) *Index {
	ix := &Index{src: src, now: time.Now}
	ix.seeAll.Store(true)
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// SetSeeAllInDirect changes whether a direct conversation lists the owner's
// tasks from every scope. Safe to call while queries run.
func (ix *Index) SetSeeAllInDirect(v bool) { ix.seeAll.Store(v) }

func (ix *Index) SeeAllInDirect() bool { return ix.seeAll.Load() }

// Visible reports whether owner, talking in scope, may see r.
func (ix *Index) Visible(r reminder.Record, owner int64, scope reminder.Scope) bool {
	if r.OwnerID != owner {
		return false
	}
	if scope.IsGroup() {
		return r.Scope.Equal(scope)
	}
	return ix.seeAll.Load() || !r.Scope.IsGroup()
}

// Query lists owner's reminders of the given kind visible from scope. An
// empty kind matches both kinds. Positions are recomputed on every call.
func (ix *Index) Query(owner int64, scope reminder.Scope, kind reminder.ScheduleKind, order Order) []Entry {
	now := ix.now()
	var out []Entry
	for _, r := range ix.src.List() {
		if kind != "" && r.Schedule.Kind != kind {
			continue
		}
		if !ix.Visible(r, owner, scope) {
			continue
		}
		next, err := r.Schedule.Next(now)
		if err != nil {
			next = time.Time{}
		}
		out = append(out, Entry{Record: r, Next: next})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order == ByFireTime && !a.Next.Equal(b.Next) {
			// Entries without a next fire time go last.
			if a.Next.IsZero() || b.Next.IsZero() {
				return b.Next.IsZero()
			}
			return a.Next.Before(b.Next)
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.Before(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
