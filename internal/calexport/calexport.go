// Package calexport converts notebook events to and from iCalendar.
package calexport

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/recurrence"
)

const (
	productID = "-//notus//notus calendar//EN"
	uidDomain = "@notus"
)

// Export writes events as an iCalendar document to w. Cadences become
// RRULEs, reminders become display alarms and tags become categories.
func Export(w io.Writer, events []*models.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	for _, ev := range events {
		if err := addEvent(cal, ev, now); err != nil {
			return err
		}
	}
	return cal.SerializeTo(w)
}

func addEvent(cal *ical.Calendar, ev *models.Event, now time.Time) error {
	c, err := recurrence.ParseCadence(ev.Cadence)
	if err != nil {
		return fmt.Errorf("export %q: %w", ev.Title, err)
	}

	ve := cal.AddEvent(ev.ID + uidDomain)
	ve.SetDtStampTime(now)
	if !ev.CreatedAt.IsZero() {
		ve.SetCreatedTime(ev.CreatedAt)
	}
	if !ev.UpdatedAt.IsZero() {
		ve.SetModifiedAt(ev.UpdatedAt)
	}
	ve.SetSummary(ev.Title)
	ve.SetStartAt(ev.Start)
	if ev.End != nil {
		ve.SetEndAt(*ev.End)
	}
	if rule := RuleFor(c, ev.Start); rule != "" {
		ve.AddRrule(rule)
	}
	if names := ev.Names(); len(names) > 0 {
		ve.AddProperty(ical.ComponentPropertyCategories, strings.Join(names, ","))
	}

	if !ev.Remind {
		return nil
	}
	dates, err := recurrence.ReminderDates(ev)
	if err != nil {
		return fmt.Errorf("export %q: %w", ev.Title, err)
	}
	start := ev.StartDate()
	for _, d := range dates {
		days := int(math.Round(start.Sub(d).Hours() / 24))
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-P%dD", days))
		alarm.SetDescription(ev.Title)
	}
	return nil
}

// RuleFor returns the RRULE body equivalent to c for a schedule starting
// at start, or "" for one-off events. Months without the start day fall
// back to their last day, matching the clamp used by the recurrence engine.
func RuleFor(c recurrence.Cadence, start time.Time) string {
	switch c := c.(type) {
	case recurrence.Daily:
		return "FREQ=DAILY"
	case recurrence.Weekly:
		return "FREQ=WEEKLY"
	case recurrence.Monthly:
		day := c.Day
		if day == 0 {
			day = start.Day()
		}
		return "FREQ=MONTHLY;" + monthDays(day)
	case recurrence.Yearly:
		day := c.Day
		if day == 0 {
			day = start.Day()
		}
		return fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d;%s", int(start.Month()), monthDays(day))
	case recurrence.Rule:
		return strings.TrimPrefix(c.Name(), "RRULE:")
	}
	return ""
}

// monthDays selects day, or the last day of a shorter month.
func monthDays(day int) string {
	if day <= 28 {
		return "BYMONTHDAY=" + strconv.Itoa(day)
	}
	days := make([]string, 0, day-27)
	for d := 28; d <= day; d++ {
		days = append(days, strconv.Itoa(d))
	}
	return "BYMONTHDAY=" + strings.Join(days, ",") + ";BYSETPOS=-1"
}
