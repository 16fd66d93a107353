package calexport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/recurrence"
)

// Import reads the VEVENTs of an iCalendar document as new events with
// times in loc. Events that cannot be converted are skipped and reported
// in the returned error alongside the rest.
func Import(r io.Reader, loc *time.Location) ([]*models.Event, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	var events []*models.Event
	var errs []error
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errors.Join(errs...)
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (*models.Event, error) {
	ev := &models.Event{}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = strings.TrimSpace(p.Value)
	}
	if ev.Title == "" {
		uid := ""
		if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
			uid = p.Value
		}
		return nil, fmt.Errorf("event %q: missing summary", uid)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", ev.Title, err)
	}
	ev.Start = start.In(loc)
	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() {
		end = end.In(loc)
		ev.End = &end
	}

	ev.Cadence = "none"
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		ev.Cadence = cadenceFor(p.Value, ev.Start)
		if _, err := recurrence.ParseCadence(ev.Cadence); err != nil {
			return nil, fmt.Errorf("event %q: %w", ev.Title, err)
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, name := range strings.Split(p.Value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				ev.Tags = append(ev.Tags, models.NewTag(name, ""))
			}
		}
	}

	for _, comp := range ve.Components {
		alarm, ok := comp.(*ical.VAlarm)
		if !ok {
			continue
		}
		p := alarm.GetProperty(ical.ComponentPropertyTrigger)
		if p == nil {
			continue
		}
		if unit, n, ok := parseTrigger(p.Value); ok {
			ev.Remind = true
			ev.AddReminder(unit, n)
		}
	}
	return ev, nil
}

// cadenceFor prefers a named cadence when rule is exactly what that
// cadence exports to.
func cadenceFor(rule string, start time.Time) string {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	for _, c := range []recurrence.Cadence{recurrence.Daily{}, recurrence.Weekly{}, recurrence.Monthly{}, recurrence.Yearly{}} {
		if strings.EqualFold(RuleFor(c, start), rule) {
			return c.Name()
		}
	}
	return "RRULE:" + rule
}

// parseTrigger reads "-PnD" and "-PnW" triggers. Triggers after the start
// or with a time part have no reminder equivalent.
func parseTrigger(v string) (models.ReminderUnit, int, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if !strings.HasPrefix(v, "-P") || strings.Contains(v, "T") {
		return "", 0, false
	}
	body := v[2:]
	if len(body) < 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(body[:len(body)-1])
	if err != nil || n <= 0 {
		return "", 0, false
	}
	switch body[len(body)-1] {
	case 'D':
		return models.ReminderDay, n, true
	case 'W':
		return models.ReminderWeek, n, true
	}
	return "", 0, false
}
