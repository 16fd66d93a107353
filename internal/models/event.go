package models

import (
	"sort"
	"time"
)

// ReminderUnit is the calendar unit of a reminder offset.
type ReminderUnit string

const (
	ReminderDay   ReminderUnit = "day"
	ReminderWeek  ReminderUnit = "week"
	ReminderMonth ReminderUnit = "month"
)

// ReminderUnits lists the supported reminder units.
var ReminderUnits = []ReminderUnit{ReminderDay, ReminderWeek, ReminderMonth}

// Valid reports whether u is a supported reminder unit.
func (u ReminderUnit) Valid() bool {
	switch u {
	case ReminderDay, ReminderWeek, ReminderMonth:
		return true
	}
	return false
}

// Event is a calendar entry, optionally recurring and with reminders.
type Event struct {
	TagList

	ID     string
	Title  string
	Start  time.Time
	End    *time.Time
	Remind bool
	// Reminders maps a unit to the ascending offsets, in that unit, before Start.
	Reminders map[ReminderUnit][]int
	// Cadence names the recurrence rule: "" or "none", "daily", "weekly",
	// "monthly", "yearly", or an "RRULE:" prefixed rule.
	Cadence   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityKey implements Taggable.
func (e *Event) EntityKey() string { return "event:" + e.ID }

// AddReminder records a reminder offset, keeping each unit's offsets sorted
// and free of duplicates. Non-positive offsets are ignored.
func (e *Event) AddReminder(unit ReminderUnit, offset int) {
	if offset <= 0 {
		return
	}
	if e.Reminders == nil {
		e.Reminders = make(map[ReminderUnit][]int)
	}
	offsets := e.Reminders[unit]
	i := sort.SearchInts(offsets, offset)
	if i < len(offsets) && offsets[i] == offset {
		return
	}
	offsets = append(offsets, 0)
	copy(offsets[i+1:], offsets[i:])
	offsets[i] = offset
	e.Reminders[unit] = offsets
}

// StartDate returns the calendar date of Start at midnight in Start's location.
func (e *Event) StartDate() time.Time {
	return DateOf(e.Start)
}

// DateOf truncates t to midnight of its calendar day, keeping its location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
