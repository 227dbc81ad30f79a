package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AllToken selects every listed task. ParseSelector rejects it; callers
// check for it first and use All.
const AllToken = "all"

// CreationOrderFlag switches a selector to creation order.
const CreationOrderFlag = "-s"

var ErrEmptySelector = errors.New("index: empty selector")

// MaxPosition is the largest 1-based position a selector may name. Ranges
// are checked against it before they are expanded.
const MaxPosition = 10000

const (
	ReasonMalformed     = "malformed"
	ReasonReversedRange = "reversed range"
	ReasonTooLarge      = "position too large"
)

// ValidationError names the selector token that could not be read.
type ValidationError struct {
	Token  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("index: %s token %q", e.Reason, e.Token)
}

// Selector is a parsed position list. Positions are 0-based, unique and
// ascending.
type Selector struct {
	Positions []int
	Order     Order
}

// ParseSelector reads whitespace separated tokens: "N" selects position N,
// "a-b" selects a through b inclusive, and "-s" switches to creation order.
// Any bad token fails the whole selector.
func ParseSelector(raw string) (Selector, error) {
	return parseSelector(raw, true)
}

// ParsePositions is ParseSelector for listings with a single fixed order:
// "-s" is a malformed token there.
func ParsePositions(raw string) (Selector, error) {
	return parseSelector(raw, false)
}

func parseSelector(raw string, allowOrderFlag bool) (Selector, error) {
	sel := Selector{Order: ByFireTime}
	seen := map[int]struct{}{}
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return sel, ErrEmptySelector
	}
	for _, tok := range tokens {
		if allowOrderFlag && tok == CreationOrderFlag {
			sel.Order = ByCreation
			continue
		}
		parts := strings.Split(tok, "-")
		var lo, hi int
		switch len(parts) {
		case 1:
			n, reason := position(parts[0])
			if reason != "" {
				return Selector{}, &ValidationError{Token: tok, Reason: reason}
			}
			lo, hi = n, n
		case 2:
			a, reason := position(parts[0])
			if reason == "" {
				hi, reason = position(parts[1])
			}
			if reason != "" {
				return Selector{}, &ValidationError{Token: tok, Reason: reason}
			}
			if a > hi {
				return Selector{}, &ValidationError{Token: tok, Reason: ReasonReversedRange}
			}
			lo = a
		default:
			return Selector{}, &ValidationError{Token: tok, Reason: ReasonMalformed}
		}
		for p := lo; p <= hi; p++ {
			seen[p] = struct{}{}
		}
	}
	for p := range seen {
		sel.Positions = append(sel.Positions, p)
	}
	sort.Ints(sel.Positions)
	if len(sel.Positions) == 0 {
		return sel, ErrEmptySelector
	}
	return sel, nil
}

// position reads a 1-based ordinal and returns it 0-based. Only plain ASCII
// digits without a leading zero are accepted.
func position(s string) (int, string) {
	if s == "" || s[0] == '0' {
		return 0, ReasonMalformed
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ReasonMalformed
		}
	}
	if len(s) > len(strconv.Itoa(MaxPosition)) {
		return 0, ReasonTooLarge
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ReasonMalformed
	}
	if n > MaxPosition {
		return 0, ReasonTooLarge
	}
	return n - 1, ""
}

// All selects every entry of list.
func All(list []Entry) []int {
	out := make([]int, len(list))
	for i := range out {
		out[i] = i
	}
	return out
}

// RangeError reports a position past the end of the listing.
type RangeError struct {
	Position int // 1-based
	Len      int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("index: position %d out of range (have %d)", e.Position, e.Len)
}

// MissingError lists 1-based positions whose tasks are no longer scheduled.
type MissingError struct {
	Positions []int
}

func (e *MissingError) Error() string {
	ps := make([]string, len(e.Positions))
	for i, p := range e.Positions {
		ps[i] = strconv.Itoa(p)
	}
	return "index: task missing at position " + strings.Join(ps, ", ")
}

// Remover deletes tasks atomically: Remove drops every id or none.
type Remover interface {
	Live(id string) bool
	Remove(ctx context.Context, ids []string) error
}

// ResolveAndDelete validates every position against list (bounds first, then
// a live task behind each) and only then removes the whole batch. The
// removed entries are returned in position order.
func ResolveAndDelete(ctx context.Context, positions []int, list []Entry, rm Remover) ([]Entry, error) {
	if len(positions) == 0 {
		return nil, ErrEmptySelector
	}
	for _, p := range positions {
		if p < 0 || p >= len(list) {
			return nil, &RangeError{Position: p + 1, Len: len(list)}
		}
	}
	var missing []int
	picked := make([]Entry, 0, len(positions))
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		e := list[p]
		if !rm.Live(e.Record.ID) {
			missing = append(missing, p+1)
			continue
		}
		picked = append(picked, e)
		ids = append(ids, e.Record.ID)
	}
	if len(missing) > 0 {
		return nil, &MissingError{Positions: missing}
	}
	if err := rm.Remove(ctx, ids); err != nil {
		return nil, err
	}
	return picked, nil
}
