// Package daterange turns calendar date windows into the YYYYMMDD tokens that
// catalog file names are matched against.
package daterange

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout is the only accepted textual date format.
	DateLayout  = "2006-01-02"
	tokenLayout = "20060102"
)

var (
	ErrInvalidDateFormat = errors.New("invalid date format")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q must be in YYYY-MM-DD format", ErrInvalidDateFormat, s)
	}
	return t, nil
}

// Token formats t as an 8 digit YYYYMMDD string.
func Token(t time.Time) string {
	return t.Format(tokenLayout)
}

// Generate returns a token for every date from start to end inclusive,
// stepping stepDays calendar days. An inverted range yields no tokens.
func Generate(start, end time.Time, stepDays int) ([]string, error) {
	if stepDays <= 0 {
		return nil, fmt.Errorf("%w: step days must be positive, got %d", ErrInvalidArgument, stepDays)
	}
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return []string{}, nil
	}
	tokens := make([]string, 0, int(end.Sub(start).Hours()/24)/stepDays+1)
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, stepDays) {
		tokens = append(tokens, Token(cur))
	}
	return tokens, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Window is a pair of calendar dates. Start is not checked against End on
// construction; call Validate for that.
type Window struct {
	start time.Time
	end   time.Time
}

// NewWindow parses both dates, failing with ErrInvalidDateFormat.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Window{}, fmt.Errorf("parse start date: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return Window{}, fmt.Errorf("parse end date: %w", err)
	}
	return Window{start: s, end: e}, nil
}

func (w Window) Start() time.Time { return w.start }
func (w Window) End() time.Time   { return w.end }

// WithStart returns a copy of w using the parsed start date.
func (w Window) WithStart(s string) (Window, error) {
	t, err := ParseDate(s)
	if err != nil {
		return w, fmt.Errorf("parse start date: %w", err)
	}
	w.start = t
	return w, nil
}

// WithEnd returns a copy of w using the parsed end date.
func (w Window) WithEnd(s string) (Window, error) {
	t, err := ParseDate(s)
	if err != nil {
		return w, fmt.Errorf("parse end date: %w", err)
	}
	w.end = t
	return w, nil
}

func (w Window) Validate() error {
	if w.start.After(w.end) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange,
			w.start.Format(DateLayout), w.end.Format(DateLayout))
	}
	return nil
}

// Tokens returns the daily tokens of the whole window.
func (w Window) Tokens() []string {
	tokens, _ := Generate(w.start, w.end, 1)
	return tokens
}

// Years returns every calendar year touched by the window, in order.
func (w Window) Years() []int {
	n := w.end.Year() - w.start.Year() + 1
	if n <= 0 {
		return nil
	}
	years := make([]int, 0, n)
	for y := w.start.Year(); y <= w.end.Year(); y++ {
		years = append(years, y)
	}
	return years
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.start.Format(DateLayout), w.end.Format(DateLayout))
}
