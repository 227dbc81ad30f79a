package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string found at the dotted config
// path (for example "notifier.send_timeout"). Empty means zero. Negative
// values are rejected so that "unset" and "disabled" stay distinguishable.
func ParseDurationField(path, raw string) (time.Duration, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(text)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration (want e.g. 30s, 5m): %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// ParseClock reads a wall-clock "HH:MM" such as resolver.default_time.
// Empty returns ok=false with no error.
func ParseClock(path, raw string) (hour, minute int, ok bool, err error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, 0, false, nil
	}
	h, m, found := strings.Cut(text, ":")
	hour, errH := strconv.Atoi(h)
	minute, errM := strconv.Atoi(m)
	if !found || errH != nil || errM != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false, fmt.Errorf("%s: invalid %q (want HH:MM)", path, raw)
	}
	return hour, minute, true, nil
}
