package timeparse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse/extract"
	"remindbot/internal/timeparse/llm"
	logx "remindbot/pkg/logx"
)

// RecurrenceMarker prefixes every recurring phrase ("每天", "每周三").
const RecurrenceMarker = "每"

var ErrUnsupportedPeriod = errors.New("timeparse: unsupported period")

type Kind int

const (
	Unresolved Kind = iota
	Instant
	Recurrence
)

func (k Kind) String() string {
	switch k {
	case Instant:
		return "instant"
	case Recurrence:
		return "recurrence"
	default:
		return "unresolved"
	}
}

// Result is the outcome of resolving one phrase. Source names the stage that
// produced it and is empty when unresolved.
type Result struct {
	Kind       Kind
	At         time.Time
	Recurrence reminder.Recurrence
	Source     string
}

func (r Result) OK() bool { return r.Kind != Unresolved }

// Schedule converts a resolved result. It panics on Unresolved.
func (r Result) Schedule() reminder.Schedule {
	switch r.Kind {
	case Instant:
		return reminder.Instant(r.At)
	case Recurrence:
		return reminder.Repeating(r.Recurrence)
	}
	panic("timeparse: Schedule on unresolved result")
}

func (r Result) String() string {
	switch r.Kind {
	case Instant:
		return r.At.Format("2006-01-02 15:04:05")
	case Recurrence:
		return r.Recurrence.String()
	default:
		return "unresolved"
	}
}

// Extractor is the offline parser contract.
type Extractor interface {
	Parse(text string, base time.Time) (extract.Value, error)
	FindEntities(text string, base time.Time) []extract.Entity
}

// Fallback is the remote resolver contract. Answers are raw strings that may
// be sentinels.
type Fallback interface {
	ResolvePoint(ctx context.Context, text string) string
	ResolveRecurrence(ctx context.Context, text string) string
}

// Stage tries to resolve text. A false return passes text to the next stage.
type Stage struct {
	Name string
	Run  func(ctx context.Context, text string, now time.Time) (Result, bool)
}

// Resolver runs its stages in order and stops at the first success.
type Resolver struct {
	log    logx.Logger
	now    func() time.Time
	ex     Extractor
	stages []Stage
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// WithStages replaces the default chain.
func WithStages(stages ...Stage) Option { return func(r *Resolver) { r.stages = stages } }

// New builds the default two-stage chain: offline extraction, then fb.
// A nil fb leaves only the offline stage.
func New(ex Extractor, fb Fallback, log logx.Logger, opts ...Option) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	if ex == nil {
		ex = extract.New()
	}
	r := &Resolver{log: log, now: time.Now, ex: ex}
	r.stages = []Stage{OfflineStage(ex, log)}
	if fb != nil {
		r.stages = append(r.stages, FallbackStage(fb, log))
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve turns free text into an Instant or a Recurrence. It never fails
// loudly: anything the chain cannot read comes back Unresolved.
func (r *Resolver) Resolve(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}
	now := r.now()
	for _, st := range r.stages {
		if res, ok := st.Run(ctx, text, now); ok {
			r.log.Info("time resolved",
				logx.String("text", text),
				logx.String("stage", st.Name),
				logx.String("kind", res.Kind.String()),
				logx.String("result", res.String()),
			)
			res.Source = st.Name
			return res
		}
	}
	r.log.Debug("time unresolved", logx.String("text", text))
	return Result{}
}

// ExtractAndSplit resolves the first time phrase inside text and returns the
// text with that phrase removed. Without any phrase the whole text goes
// through Resolve and the remainder is empty on success. On failure the
// original text is returned.
func (r *Resolver) ExtractAndSplit(ctx context.Context, text string) (Result, string) {
	if strings.TrimSpace(text) == "" {
		return Result{}, text
	}
	entities := r.ex.FindEntities(text, r.now())
	if len(entities) == 0 {
		res := r.Resolve(ctx, text)
		if !res.OK() {
			return res, text
		}
		return res, ""
	}
	ent := entities[0]
	res := r.Resolve(ctx, ent.Text)
	if !res.OK() {
		return Result{}, text
	}
	return res, strings.TrimSpace(text[:ent.Start] + text[ent.End:])
}

// OfflineStage resolves with the rule-based extractor.
func OfflineStage(ex Extractor, log logx.Logger) Stage {
	return Stage{Name: "offline", Run: func(_ context.Context, text string, now time.Time) (Result, bool) {
		v, err := ex.Parse(text, now)
		if err != nil {
			return Result{}, false
		}
		res, err := FromValue(v, now)
		if err != nil {
			if errors.Is(err, ErrUnsupportedPeriod) {
				log.Warn("unsupported recurrence", logx.String("text", text), logx.Err(err))
			}
			return Result{}, false
		}
		return res, true
	}}
}

// FallbackStage asks fb. Phrases starting with RecurrenceMarker are read as
// recurrences, everything else as a single point in time.
func FallbackStage(fb Fallback, log logx.Logger) Stage {
	return Stage{Name: "llm", Run: func(ctx context.Context, text string, _ time.Time) (Result, bool) {
		if strings.HasPrefix(text, RecurrenceMarker) {
			answer := fb.ResolveRecurrence(ctx, text)
			fields, err := llm.ParseFields(answer)
			if err != nil {
				log.Debug("fallback recurrence rejected", logx.String("answer", answer), logx.Err(err))
				return Result{}, false
			}
			rec, err := reminder.RecurrenceFromFields(fields)
			if err != nil {
				log.Warn("fallback recurrence invalid", logx.String("answer", answer), logx.Err(err))
				return Result{}, false
			}
			return Result{Kind: Recurrence, Recurrence: rec}, true
		}
		answer := fb.ResolvePoint(ctx, text)
		at, ok := llm.ParsePoint(answer)
		if !ok {
			log.Debug("fallback point rejected", logx.String("answer", answer))
			return Result{}, false
		}
		return Result{Kind: Instant, At: at}, true
	}}
}

// FromValue maps an extractor value onto a Result. Points and spans use
// their start; deltas are added to now (first candidate of a fuzzy range);
// periods become recurrences.
func FromValue(v extract.Value, now time.Time) (Result, error) {
	switch v.Kind {
	case extract.KindPoint, extract.KindSpan:
		if v.Start.IsZero() {
			return Result{}, errors.New("timeparse: point without time")
		}
		return Result{Kind: Instant, At: v.Start}, nil
	case extract.KindDelta:
		if len(v.Deltas) == 0 || v.Deltas[0].IsZero() {
			return Result{}, errors.New("timeparse: empty delta")
		}
		return Result{Kind: Instant, At: now.Add(v.Deltas[0].Duration())}, nil
	case extract.KindPeriod:
		rec, err := PeriodRecurrence(v.Period)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: Recurrence, Recurrence: rec}, nil
	default:
		return Result{}, fmt.Errorf("timeparse: unknown value kind %d", v.Kind)
	}
}

// PeriodRecurrence keeps the anchor fields a period leaves fixed:
//
//	every hour  -> minute
//	every day   -> hour, minute
//	every week  -> weekday, hour, minute
//	every month -> day, hour, minute
//	every year  -> month, day, hour, minute
//
// Any other period is ErrUnsupportedPeriod.
func PeriodRecurrence(p extract.Period) (reminder.Recurrence, error) {
	d, pt := p.Delta, p.Point
	minute, hour := pt.Minute(), pt.Hour()
	switch {
	case d == extract.Delta{Hour: 1}:
		return reminder.Recurrence{Minute: &minute}, nil
	case d == extract.Delta{Day: 1}:
		return reminder.Recurrence{Hour: &hour, Minute: &minute}, nil
	case d == extract.Delta{Day: 7}:
		wd := reminder.MondayWeekday(pt.Weekday())
		return reminder.Recurrence{Weekday: &wd, Hour: &hour, Minute: &minute}, nil
	case d == extract.Delta{Month: 1}:
		day := pt.Day()
		return reminder.Recurrence{Day: &day, Hour: &hour, Minute: &minute}, nil
	case d == extract.Delta{Year: 1}:
		day, month := pt.Day(), int(pt.Month())
		return reminder.Recurrence{Month: &month, Day: &day, Hour: &hour, Minute: &minute}, nil
	default:
		return reminder.Recurrence{}, fmt.Errorf("%w: every %s", ErrUnsupportedPeriod, d)
	}
}
