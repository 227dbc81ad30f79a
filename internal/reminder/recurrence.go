package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Recurrence is a sparse calendar pattern; unset fields match any value.
// Weekday counts from Monday (0) to Sunday (6).
type Recurrence struct {
	Minute  *int `json:"minute,omitempty"`
	Hour    *int `json:"hour,omitempty"`
	Weekday *int `json:"weekday,omitempty"`
	Day     *int `json:"day,omitempty"`
	Month   *int `json:"month,omitempty"`
}

// IntPtr is a small helper for building recurrences.
func IntPtr(v int) *int { return &v }

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func (r Recurrence) Validate() error {
	if r.Minute == nil {
		return errors.New("recurrence needs a minute")
	}
	if r.Hour == nil && (r.Weekday != nil || r.Day != nil || r.Month != nil) {
		return errors.New("recurrence needs an hour when day, weekday or month is set")
	}
	checks := []struct {
		name     string
		v        *int
		min, max int
	}{
		{"minute", r.Minute, 0, 59},
		{"hour", r.Hour, 0, 23},
		{"weekday", r.Weekday, 0, 6},
		{"day", r.Day, 1, 31},
		{"month", r.Month, 1, 12},
	}
	for _, c := range checks {
		if c.v != nil && (*c.v < c.min || *c.v > c.max) {
			return fmt.Errorf("recurrence %s %d out of range [%d,%d]", c.name, *c.v, c.min, c.max)
		}
	}
	return nil
}

// CronSpec renders the pattern as a standard five-field cron expression.
func (r Recurrence) CronSpec() string {
	field := func(v *int) string {
		if v == nil {
			return "*"
		}
		return strconv.Itoa(*v)
	}
	dow := "*"
	if r.Weekday != nil {
		dow = strconv.Itoa((*r.Weekday + 1) % 7)
	}
	return strings.Join([]string{field(r.Minute), field(r.Hour), field(r.Day), field(r.Month), dow}, " ")
}

// CronSchedule parses CronSpec into a robfig/cron schedule.
func (r Recurrence) CronSchedule() (cron.Schedule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return cronParser.Parse(r.CronSpec())
}

// Next returns the first matching time strictly after from.
func (r Recurrence) Next(from time.Time) (time.Time, error) {
	s, err := r.CronSchedule()
	if err != nil {
		return time.Time{}, err
	}
	next := s.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("recurrence %q never fires", r.CronSpec())
	}
	return next, nil
}

// Fields lists the set field names, coarse to fine.
func (r Recurrence) Fields() []string {
	var out []string
	if r.Month != nil {
		out = append(out, "month")
	}
	if r.Day != nil {
		out = append(out, "day")
	}
	if r.Weekday != nil {
		out = append(out, "weekday")
	}
	if r.Hour != nil {
		out = append(out, "hour")
	}
	if r.Minute != nil {
		out = append(out, "minute")
	}
	return out
}

func (r Recurrence) Equal(o Recurrence) bool {
	eq := func(a, b *int) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return *a == *b
	}
	return eq(r.Minute, o.Minute) && eq(r.Hour, o.Hour) && eq(r.Weekday, o.Weekday) &&
		eq(r.Day, o.Day) && eq(r.Month, o.Month)
}

var weekdayNames = [...]string{"一", "二", "三", "四", "五", "六", "日"}

// String is the Chinese listing form, e.g. "每周三 14:00".
func (r Recurrence) String() string {
	hm := func() string {
		if r.Hour == nil {
			return fmt.Sprintf("%d分", deref(r.Minute))
		}
		return fmt.Sprintf("%02d:%02d", *r.Hour, deref(r.Minute))
	}
	switch {
	case r.Month != nil && r.Day != nil:
		return fmt.Sprintf("每年%d月%d日 %s", *r.Month, *r.Day, hm())
	case r.Month != nil:
		return fmt.Sprintf("每年%d月 %s", *r.Month, hm())
	case r.Day != nil:
		return fmt.Sprintf("每月%d日 %s", *r.Day, hm())
	case r.Weekday != nil:
		name := "?"
		if *r.Weekday >= 0 && *r.Weekday < len(weekdayNames) {
			name = weekdayNames[*r.Weekday]
		}
		return fmt.Sprintf("每周%s %s", name, hm())
	case r.Hour != nil:
		return "每天 " + hm()
	default:
		return "每小时 " + hm()
	}
}

func (r Recurrence) clone() Recurrence {
	cp := func(v *int) *int {
		if v == nil {
			return nil
		}
		x := *v
		return &x
	}
	return Recurrence{Minute: cp(r.Minute), Hour: cp(r.Hour), Weekday: cp(r.Weekday), Day: cp(r.Day), Month: cp(r.Month)}
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

var weekdayAbbrev = map[string]int{"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6}

// RecurrenceFromFields builds a Recurrence from cron-trigger style keyword
// fields (minute, hour, day_of_week, day, month). day_of_week accepts 0-6
// (Monday first) or mon..sun. When a coarser field is set, a missing hour or
// minute defaults to 0 so the pattern fires once per period.
func RecurrenceFromFields(fields map[string]string) (Recurrence, error) {
	var r Recurrence
	if len(fields) == 0 {
		return r, errors.New("no recurrence fields")
	}
	for k, raw := range fields {
		v := strings.ToLower(strings.TrimSpace(raw))
		switch k {
		case "second":
			if v != "0" {
				return Recurrence{}, fmt.Errorf("unsupported second %q", raw)
			}
			continue
		case "day_of_week", "weekday":
			if n, ok := weekdayAbbrev[v]; ok {
				r.Weekday = IntPtr(n)
				continue
			}
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Recurrence{}, fmt.Errorf("field %s: %q is not an integer", k, raw)
		}
		switch k {
		case "minute":
			r.Minute = IntPtr(n)
		case "hour":
			r.Hour = IntPtr(n)
		case "day_of_week", "weekday":
			r.Weekday = IntPtr(n)
		case "day":
			r.Day = IntPtr(n)
		case "month":
			r.Month = IntPtr(n)
		default:
			return Recurrence{}, fmt.Errorf("unknown recurrence field %q", k)
		}
	}
	coarse := r.Weekday != nil || r.Day != nil || r.Month != nil
	if r.Hour == nil && coarse {
		r.Hour = IntPtr(0)
	}
	if r.Minute == nil && (r.Hour != nil || coarse) {
		r.Minute = IntPtr(0)
	}
	if err := r.Validate(); err != nil {
		return Recurrence{}, err
	}
	return r, nil
}

// Kwargs is the inverse of RecurrenceFromFields.
func (r Recurrence) Kwargs() map[string]string {
	out := map[string]string{}
	put := func(k string, v *int) {
		if v != nil {
			out[k] = strconv.Itoa(*v)
		}
	}
	put("minute", r.Minute)
	put("hour", r.Hour)
	put("day_of_week", r.Weekday)
	put("day", r.Day)
	put("month", r.Month)
	return out
}

// MondayWeekday converts time.Weekday (Sunday=0) to the Monday-based index.
func MondayWeekday(w time.Weekday) int { return (int(w) + 6) % 7 }
