package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/joescharf/notus/internal/models"
)

// ReminderDates returns the dates on which ev should be reminded of, in
// ascending order. Each (unit, offset) pair yields one date; equal dates
// from different pairs are all kept. Events without reminders enabled
// yield an empty slice.
func ReminderDates(ev *models.Event) ([]time.Time, error) {
	if ev == nil || !ev.Remind {
		return []time.Time{}, nil
	}
	return reminderDatesAt(ev, ev.StartDate())
}

func reminderDatesAt(ev *models.Event, date time.Time) ([]time.Time, error) {
	dates := []time.Time{}
	for unit, offsets := range ev.Reminders {
		if !unit.Valid() {
			return nil, fmt.Errorf("reminders for %q: %w: %q", ev.Title, ErrInvalidCadenceUnit, unit)
		}
		for _, n := range offsets {
			if n <= 0 {
				continue
			}
			dates = append(dates, before(date, unit, n))
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func before(date time.Time, unit models.ReminderUnit, n int) time.Time {
	switch unit {
	case models.ReminderWeek:
		return date.AddDate(0, 0, -7*n)
	case models.ReminderMonth:
		return addMonths(date, -n, date.Day())
	default:
		return date.AddDate(0, 0, -n)
	}
}

// TimeStep advances date by one period of c.
func TimeStep(c Cadence, date time.Time) time.Time {
	return c.Step(models.DateOf(date))
}

// ToReoccur reports whether candidate is start or a date reached from start
// by repeatedly stepping with c.
func ToReoccur(c Cadence, start, candidate time.Time) bool {
	start, candidate = models.DateOf(start), models.DateOf(candidate)
	if candidate.Before(start) {
		return false
	}
	c = c.anchor(start)
	cur := start
	for cur.Before(candidate) {
		next := c.Step(cur)
		if !next.After(cur) {
			return false
		}
		cur = next
	}
	return cur.Equal(candidate)
}

// Recurrences walks the schedule of c from start and returns every date
// that falls within [rangeStart, rangeEnd], in ascending order.
func Recurrences(c Cadence, start, rangeStart, rangeEnd time.Time) []time.Time {
	start = models.DateOf(start)
	rangeStart, rangeEnd = models.DateOf(rangeStart), models.DateOf(rangeEnd)
	if rangeEnd.Before(rangeStart) {
		return nil
	}

	c = c.anchor(start)
	var out []time.Time
	for cur := start; !cur.After(rangeEnd); {
		if !cur.Before(rangeStart) {
			out = append(out, cur)
		}
		next := c.Step(cur)
		if !next.After(cur) {
			break
		}
		cur = next
	}
	return out
}

// Occurrence is one dated instance of an event.
type Occurrence struct {
	Event *models.Event
	Date  time.Time
}

// Start returns the occurrence date at the event's start time of day.
func (o Occurrence) Start() time.Time {
	h, m, s := o.Event.Start.Clock()
	y, mo, d := o.Date.Date()
	return time.Date(y, mo, d, h, m, s, o.Event.Start.Nanosecond(), o.Date.Location())
}

// SortOccurrences orders occurrences by start date, then start time, then title.
func SortOccurrences(occ []Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		a, b := occ[i].Start(), occ[j].Start()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return occ[i].Event.Title < occ[j].Event.Title
	})
}

// Occurrences expands events into their occurrences within
// [rangeStart, rangeEnd], sorted by start. Events with an invalid cadence
// are skipped and reported in the returned error.
func Occurrences(events []*models.Event, rangeStart, rangeEnd time.Time) ([]Occurrence, error) {
	var out []Occurrence
	var errs []error
	for _, ev := range events {
		c, err := ParseCadence(ev.Cadence)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %q: %w", ev.Title, err))
			continue
		}
		for _, d := range Recurrences(c, ev.Start, rangeStart, rangeEnd) {
			out = append(out, Occurrence{Event: ev, Date: d})
		}
	}
	SortOccurrences(out)
	return out, errors.Join(errs...)
}

// Reminder is a reminder due for one occurrence of an event.
type Reminder struct {
	Occurrence
	// On is the day the reminder fires.
	On time.Time
}

// DueReminders returns the reminders firing on day, one per matching
// (occurrence, offset), sorted by occurrence start. Events with invalid
// cadences or reminder units are skipped and reported in the returned error.
func DueReminders(events []*models.Event, day time.Time) ([]Reminder, error) {
	day = models.DateOf(day)
	var out []Reminder
	var errs []error
	for _, ev := range events {
		if !ev.Remind {
			continue
		}
		c, err := ParseCadence(ev.Cadence)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %q: %w", ev.Title, err))
			continue
		}

		horizon := maxLead(ev)
		occDates := Recurrences(c, ev.Start, day, horizon(day))
		for _, occ := range occDates {
			dates, err := reminderDatesAt(ev, occ)
			if err != nil {
				errs = append(errs, err)
				break
			}
			for _, d := range dates {
				if d.Equal(day) {
					out = append(out, Reminder{Occurrence: Occurrence{Event: ev, Date: occ}, On: d})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start().Before(out[j].Start()) })
	return out, errors.Join(errs...)
}

// maxLead returns a function giving the latest occurrence date whose
// reminders could fire on a given day.
func maxLead(ev *models.Event) func(time.Time) time.Time {
	days, months := 0, 0
	for unit, offsets := range ev.Reminders {
		for _, n := range offsets {
			switch unit {
			case models.ReminderDay:
				days = max(days, n)
			case models.ReminderWeek:
				days = max(days, 7*n)
			case models.ReminderMonth:
				months = max(months, n)
			}
		}
	}
	return func(day time.Time) time.Time {
		// Counting back months clamps Mar 29-31 onto Feb 28/29, hence the slack.
		return day.AddDate(0, months, days+3)
	}
}
