package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date layouts accepted on the command line and by MCP tools.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04"
)

// ParseDateTime parses "2006-01-02" or "2006-01-02 15:04" (a "T" separator
// is also accepted) in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.Replace(strings.TrimSpace(s), "T", " ", 1)
	for _, layout := range []string{DateTimeLayout, DateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or YYYY-MM-DD HH:MM", s)
}

// ParseReminder parses a reminder offset such as "3d", "2w" or "1m".
func ParseReminder(s string) (ReminderUnit, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return "", 0, fmt.Errorf("invalid reminder %q, expected e.g. 3d, 2w or 1m", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid reminder %q, expected a positive count", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return ReminderDay, n, nil
	case 'w':
		return ReminderWeek, n, nil
	case 'm':
		return ReminderMonth, n, nil
	}
	return "", 0, fmt.Errorf("invalid reminder unit in %q, expected d, w or m", s)
}

// FormatReminders renders reminder offsets in ParseReminder form, units in
// day, week, month order.
func FormatReminders(r map[ReminderUnit][]int) string {
	var parts []string
	for _, unit := range ReminderUnits {
		for _, n := range r[unit] {
			parts = append(parts, strconv.Itoa(n)+string(unit[0]))
		}
	}
	return strings.Join(parts, ",")
}
