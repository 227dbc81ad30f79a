// Package extract finds and parses Chinese time expressions without any
// network access: points ("明天下午3点"), spans ("明天"), deltas ("半小时后")
// and periods ("每周三14:00").
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrNoTime = errors.New("extract: no time expression")

type Kind int

const (
	KindPoint Kind = iota + 1
	KindSpan
	KindDelta
	KindPeriod
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "time_point"
	case KindSpan:
		return "time_span"
	case KindDelta:
		return "time_delta"
	case KindPeriod:
		return "time_period"
	default:
		return "unknown"
	}
}

// Delta is a relative offset; fields may be fractional ("半小时" is 0.5 hours).
type Delta struct {
	Year, Month, Day, Hour, Minute, Second float64
}

func (d Delta) IsZero() bool { return d == Delta{} }

// Duration approximates a month as 30 days and a year as 365 days.
func (d Delta) Duration() time.Duration {
	days := d.Day + d.Month*30 + d.Year*365
	secs := days*86400 + d.Hour*3600 + d.Minute*60 + d.Second
	return time.Duration(secs * float64(time.Second))
}

func (d Delta) String() string {
	var b strings.Builder
	add := func(v float64, name string) {
		if v == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%g", name, v)
	}
	add(d.Year, "year")
	add(d.Month, "month")
	add(d.Day, "day")
	add(d.Hour, "hour")
	add(d.Minute, "minute")
	add(d.Second, "second")
	return "{" + b.String() + "}"
}

// Period repeats every Delta. Point is one occurrence; only the fields the
// Delta leaves fixed (e.g. hour and minute for a daily period) are meaningful.
type Period struct {
	Delta Delta
	Point time.Time
}

// Value is one parsed expression.
//
//	KindPoint:  Start == End
//	KindSpan:   [Start, End], e.g. a whole day or part of a day
//	KindDelta:  Deltas[0], plus Deltas[1] for a fuzzy range ("10到20分钟后")
//	KindPeriod: Period
type Value struct {
	Kind   Kind
	Start  time.Time
	End    time.Time
	Deltas []Delta
	Period Period
}

// Entity is a time expression found inside a longer text. Start and End are
// byte offsets into that text.
type Entity struct {
	Text  string
	Start int
	End   int
}

// Extractor is a rule-based parser for Chinese time expressions. It is
// stateless apart from its options and safe for concurrent use.
type Extractor struct {
	defaultHour   int
	defaultMinute int
}

type Option func(*Extractor)

// WithDefaultTime sets the time of day used for date-only expressions.
func WithDefaultTime(hour, minute int) Option {
	return func(e *Extractor) {
		if hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
			e.defaultHour, e.defaultMinute = hour, minute
		}
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{defaultHour: 9}
	for _, o := range opts {
		o(e)
	}
	return e
}

var trailingPunct = "。.!！?？,，;；~～ \t\r\n"

// Parse reads text as a single time expression relative to base.
func (e *Extractor) Parse(text string, base time.Time) (Value, error) {
	s := strings.TrimRight(strings.TrimSpace(text), trailingPunct)
	if s == "" || !entityFullRe.MatchString(s) {
		return Value{}, ErrNoTime
	}
	return e.parseEntity(s, base)
}

// FindEntities returns every parseable time expression in text, in order.
func (e *Extractor) FindEntities(text string, base time.Time) []Entity {
	var out []Entity
	for _, loc := range entityRe.FindAllStringIndex(text, -1) {
		if loc[0] == loc[1] {
			continue
		}
		s := text[loc[0]:loc[1]]
		if _, err := e.parseEntity(s, base); err != nil {
			continue
		}
		out = append(out, Entity{Text: s, Start: loc[0], End: loc[1]})
	}
	return out
}

func (e *Extractor) parseEntity(s string, base time.Time) (Value, error) {
	switch {
	case strings.HasPrefix(s, "每"):
		return e.parsePeriod(s, base)
	case deltaFullRe.MatchString(s):
		return parseDelta(s)
	default:
		return e.parsePoint(s, base)
	}
}

// cursor consumes anchored patterns from the front of a string.
type cursor struct{ s string }

func (c *cursor) take(re *regexp.Regexp) []string {
	loc := re.FindStringSubmatchIndex(c.s)
	if loc == nil || loc[0] != 0 {
		return nil
	}
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = c.s[loc[2*i]:loc[2*i+1]]
		}
	}
	c.s = c.s[loc[1]:]
	return groups
}

func (c *cursor) skipSep() { c.take(sepRe) }

func (c *cursor) done() bool { return strings.TrimSpace(c.s) == "" }

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// mondayIndex maps Sunday=0 weekdays onto Monday=0.
func mondayIndex(wd time.Weekday) int { return (int(wd) + 6) % 7 }

func validDate(y int, m time.Month, d int, loc *time.Location) (time.Time, bool) {
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return t, t.Year() == y && t.Month() == m && t.Day() == d
}
