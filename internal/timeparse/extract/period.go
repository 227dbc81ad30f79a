package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

func (e *Extractor) parsePeriod(s string, base time.Time) (Value, error) {
	c := &cursor{s: s}
	today := midnight(base)
	loc := base.Location()

	var (
		d      Delta
		day    = today
		pod    string
		minute = -1
		hourly bool
	)

	switch {
	case c.peek(everyHourRe):
		g := c.take(everyHourRe)
		n, err := numberOr(g[1], 1)
		if err != nil {
			return Value{}, err
		}
		if minute, err = numberOr(g[2], 0); err != nil {
			return Value{}, err
		}
		if minute > 59 {
			return Value{}, fmt.Errorf("minute %d out of range", minute)
		}
		d.Hour = float64(n)
		hourly = true
	case c.peek(everyMinuteRe):
		g := c.take(everyMinuteRe)
		n, err := numberOr(g[1], 1)
		if err != nil {
			return Value{}, err
		}
		d.Minute = float64(n)
		return Value{Kind: KindPeriod, Period: Period{Delta: d, Point: base.Truncate(time.Minute)}}, nil
	case c.peek(everyWeekRe):
		g := c.take(everyWeekRe)
		n, err := numberOr(g[1], 1)
		if err != nil {
			return Value{}, err
		}
		d.Day = float64(7 * n)
		if g[2] != "" {
			monday := today.AddDate(0, 0, -mondayIndex(today.Weekday()))
			day = monday.AddDate(0, 0, weekdayChars[g[2]])
		}
	case c.peek(everyDayRe):
		g := c.take(everyDayRe)
		n, err := numberOr(g[1], 1)
		if err != nil {
			return Value{}, err
		}
		d.Day = float64(n)
	case c.peek(everyPodRe):
		g := c.take(everyPodRe)
		d.Day = 1
		pod = "晚上"
		if strings.HasPrefix(g[1], "早") {
			pod = "早上"
		}
	case c.peek(everyMonthRe):
		g := c.take(everyMonthRe)
		d.Month = 1
		if g[1] != "" {
			dom, err := parseNumber(g[1])
			if err != nil {
				return Value{}, err
			}
			t, err := nextDayOfMonth(today, dom)
			if err != nil {
				return Value{}, err
			}
			day = t
		}
	case c.peek(everyYearRe):
		g := c.take(everyYearRe)
		d.Year = 1
		if g[1] != "" {
			m, err1 := parseNumber(g[1])
			dom, err2 := parseNumber(g[2])
			if err := firstErr(err1, err2); err != nil {
				return Value{}, err
			}
			t, err := nextMonthDay(today, time.Month(m), dom)
			if err != nil {
				return Value{}, err
			}
			day = t
		}
	default:
		return Value{}, ErrNoTime
	}

	c.skipSep()
	if g := c.take(podRe); g != nil {
		pod = g[1]
	}
	c.skipSep()
	clk, hasClock, err := takeClock(c)
	if err != nil {
		return Value{}, err
	}
	if !c.done() {
		return Value{}, fmt.Errorf("unparsed %q in %q", c.s, s)
	}

	var h, m int
	switch {
	case hourly:
		h, m = base.Hour(), minute
		if hasClock {
			m = clk.minute
		}
	case hasClock:
		h, m = adjustHour(clk.hour, pod), clk.minute
	case pod != "":
		h = pods[pod].start
	default:
		h, m = e.defaultHour, e.defaultMinute
	}
	anchor := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
	return Value{Kind: KindPeriod, Period: Period{Delta: d, Point: anchor}}, nil
}

// nextDayOfMonth returns the first date on or after today falling on day dom.
func nextDayOfMonth(today time.Time, dom int) (time.Time, error) {
	if dom < 1 || dom > 31 {
		return time.Time{}, fmt.Errorf("invalid day %d", dom)
	}
	y, m, _ := today.Date()
	for i := 0; i < 12; i++ {
		first := time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, today.Location())
		if t, ok := validDate(first.Year(), first.Month(), dom, today.Location()); ok && !t.Before(today) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid day %d", dom)
}

func (c *cursor) peek(re *regexp.Regexp) bool { return re.MatchString(c.s) }
