// Package recurrence computes reminder dates and occurrence dates for events.
//
// All functions work on calendar dates: times are truncated to midnight in
// their own location before any arithmetic.
//
// Month-end policy: stepping by months or years clamps to the last day of
// the target month when the day does not exist there (Jan 31 + 1 month is
// Feb 28 or 29). Schedules built by Recurrences and ToReoccur are anchored on
// the start date's day, so a monthly schedule from Jan 31 continues
// Feb 29, Mar 31, Apr 30 rather than drifting to the 29th.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/joescharf/notus/internal/models"
)

// ErrInvalidCadenceUnit is returned for cadence or reminder units outside the supported set.
var ErrInvalidCadenceUnit = errors.New("invalid cadence unit")

// rulePrefix marks a stored cadence as an RFC 5545 recurrence rule.
const rulePrefix = "RRULE:"

// Cadence is the repeat rule of an event. The set of variants is closed:
// None, Daily, Weekly, Monthly, Yearly and Rule.
type Cadence interface {
	// Name is the stored form of the cadence, accepted by ParseCadence.
	Name() string
	// Step advances date by one period. A cadence with no further
	// occurrences returns date unchanged.
	Step(date time.Time) time.Time

	anchor(start time.Time) Cadence
}

// None is the cadence of a one-off event.
type None struct{}

func (None) Name() string { return "none" }
func (None) Step(date time.Time) time.Time { return date }
func (c None) anchor(time.Time) Cadence { return c }

// Daily repeats every calendar day.
type Daily struct{}

func (Daily) Name() string { return "daily" }
func (Daily) Step(date time.Time) time.Time { return date.AddDate(0, 0, 1) }
func (c Daily) anchor(time.Time) Cadence { return c }

// Weekly repeats every seven days.
type Weekly struct{}

func (Weekly) Name() string { return "weekly" }
func (Weekly) Step(date time.Time) time.Time { return date.AddDate(0, 0, 7) }
func (c Weekly) anchor(time.Time) Cadence { return c }

// Monthly repeats on the same day each month, clamped to the month's last day.
type Monthly struct {
	// Day is the preferred day of month. Zero means the day of the date being stepped.
	Day int
}

func (Monthly) Name() string { return "monthly" }

func (c Monthly) Step(date time.Time) time.Time {
	day := c.Day
	if day == 0 {
		day = date.Day()
	}
	return addMonths(date, 1, day)
}

func (c Monthly) anchor(start time.Time) Cadence {
	if c.Day == 0 {
		c.Day = start.Day()
	}
	return c
}

// Yearly repeats on the same date each year; Feb 29 falls back to Feb 28.
type Yearly struct {
	// Day is the preferred day of month. Zero means the day of the date being stepped.
	Day int
}

func (Yearly) Name() string { return "yearly" }

func (c Yearly) Step(date time.Time) time.Time {
	day := c.Day
	if day == 0 {
		day = date.Day()
	}
	return addMonths(date, 12, day)
}

func (c Yearly) anchor(start time.Time) Cadence {
	if c.Day == 0 {
		c.Day = start.Day()
	}
	return c
}

// Rule repeats according to an RFC 5545 RRULE such as "FREQ=WEEKLY;BYDAY=MO,TH".
type Rule struct {
	raw  string
	opts rrule.ROption
	rule *rrule.RRule
}

// NewRule parses an RRULE body, with or without the "RRULE:" prefix.
func NewRule(raw string) (Rule, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToUpper(raw), rulePrefix) {
		raw = raw[len(rulePrefix):]
	}
	opts, err := rrule.StrToROption(raw)
	if err != nil {
		return Rule{}, fmt.Errorf("parse rule %q: %w", raw, err)
	}
	r, err := rrule.NewRRule(*opts)
	if err != nil {
		return Rule{}, fmt.Errorf("build rule %q: %w", raw, err)
	}
	return Rule{raw: raw, opts: *opts, rule: r}, nil
}

func (c Rule) Name() string { return rulePrefix + c.raw }

// Step returns the first occurrence of the rule strictly after date.
// A rule not yet anchored to a start is anchored at date.
func (c Rule) Step(date time.Time) time.Time {
	if c.opts.Dtstart.IsZero() {
		anchored, ok := c.anchor(date).(Rule)
		if !ok || anchored.opts.Dtstart.IsZero() {
			return date
		}
		c = anchored
	}
	if c.rule == nil {
		return date
	}
	next := c.rule.After(date, false)
	if next.IsZero() {
		return date
	}
	return models.DateOf(next.In(date.Location()))
}

func (c Rule) anchor(start time.Time) Cadence {
	opts := c.opts
	opts.Dtstart = start
	r, err := rrule.NewRRule(opts)
	if err != nil {
		return c
	}
	c.opts = opts
	c.rule = r
	return c
}

// ParseCadence maps a stored cadence name to its variant.
func ParseCadence(name string) (Cadence, error) {
	trimmed := strings.TrimSpace(name)
	switch strings.ToLower(trimmed) {
	case "", "none":
		return None{}, nil
	case "daily", "day":
		return Daily{}, nil
	case "weekly", "week":
		return Weekly{}, nil
	case "monthly", "month":
		return Monthly{}, nil
	case "yearly", "year":
		return Yearly{}, nil
	}

	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, rulePrefix) || strings.HasPrefix(upper, "FREQ=") {
		r, err := NewRule(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCadenceUnit, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCadenceUnit, name)
}

// addMonths moves date by months, landing on day or the month's last day if shorter.
func addMonths(date time.Time, months, day int) time.Time {
	y, m, _ := date.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, date.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, date.Location())
}
