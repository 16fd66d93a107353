package calexport

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/recurrence"
)

var now = time.Date(2020, 9, 1, 12, 0, 0, 0, time.UTC)

func rentEvent() *models.Event {
	ev := &models.Event{
		ID:      "01HRENT",
		Title:   "rent",
		Start:   time.Date(2020, 8, 27, 9, 0, 0, 0, time.UTC),
		Cadence: "monthly",
		Remind:  true,
	}
	ev.AddReminder(models.ReminderDay, 1)
	ev.AddReminder(models.ReminderDay, 3)
	ev.Tags = []*models.Tag{models.NewTag("bills", "red"), models.NewTag("home", "")}
	return ev
}

func TestExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, []*models.Event{rentEvent()}, now))

	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "UID:01HRENT@notus")
	assert.Contains(t, out, "SUMMARY:rent")
	assert.Contains(t, out, "DTSTART:20200827T090000Z")
	assert.Contains(t, out, "RRULE:FREQ=MONTHLY;BYMONTHDAY=27")
	assert.Contains(t, out, "CATEGORIES:bills")
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VALARM"))
	assert.Contains(t, out, "TRIGGER:-P1D")
	assert.Contains(t, out, "TRIGGER:-P3D")
}

func TestExport_InvalidCadence(t *testing.T) {
	ev := rentEvent()
	ev.Cadence = "fortnightly"
	var buf bytes.Buffer
	err := Export(&buf, []*models.Event{ev}, now)
	assert.ErrorIs(t, err, recurrence.ErrInvalidCadenceUnit)
}

func TestRuleFor(t *testing.T) {
	jan31 := time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC)
	feb29 := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)
	rule, err := recurrence.NewRule("FREQ=WEEKLY;BYDAY=MO,TH")
	require.NoError(t, err)

	tests := []struct {
		name  string
		c     recurrence.Cadence
		start time.Time
		want  string
	}{
		{"none", recurrence.None{}, jan31, ""},
		{"daily", recurrence.Daily{}, jan31, "FREQ=DAILY"},
		{"weekly", recurrence.Weekly{}, jan31, "FREQ=WEEKLY"},
		{"monthly mid", recurrence.Monthly{}, time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC), "FREQ=MONTHLY;BYMONTHDAY=15"},
		{"monthly end", recurrence.Monthly{}, jan31, "FREQ=MONTHLY;BYMONTHDAY=28,29,30,31;BYSETPOS=-1"},
		{"yearly leap", recurrence.Yearly{}, feb29, "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=28,29;BYSETPOS=-1"},
		{"rule", rule, jan31, "FREQ=WEEKLY;BYDAY=MO,TH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RuleFor(tt.c, tt.start))
		})
	}
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in   string
		unit models.ReminderUnit
		n    int
		ok   bool
	}{
		{"-P3D", models.ReminderDay, 3, true},
		{"-p2w", models.ReminderWeek, 2, true},
		{"-PT15M", "", 0, false},
		{"P1D", "", 0, false},
		{"-P0D", "", 0, false},
		{"-P", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			unit, n, ok := parseTrigger(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.unit, unit)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestImport_ReadsExport(t *testing.T) {
	endOfMonth := &models.Event{ID: "01HEND", Title: "invoice", Start: time.Date(2021, 1, 31, 8, 0, 0, 0, time.UTC), Cadence: "monthly"}
	rule := &models.Event{ID: "01HGYM", Title: "gym", Start: time.Date(2021, 1, 4, 7, 0, 0, 0, time.UTC), Cadence: "RRULE:FREQ=WEEKLY;BYDAY=MO,TH"}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, []*models.Event{rentEvent(), endOfMonth, rule}, now))

	events, err := Import(&buf, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 3)

	rent := events[0]
	assert.Equal(t, "rent", rent.Title)
	assert.True(t, rent.Start.Equal(time.Date(2020, 8, 27, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "monthly", rent.Cadence)
	assert.Equal(t, []string{"bills", "home"}, rent.Names())
	assert.True(t, rent.Remind)
	assert.Equal(t, []int{1, 3}, rent.Reminders[models.ReminderDay])

	assert.Equal(t, "monthly", events[1].Cadence)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO,TH", events[2].Cadence)
	assert.False(t, events[2].Remind)
}

func TestImport_SkipsBadEvents(t *testing.T) {
	doc := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:a",
		"DTSTART:20210104T070000Z",
		"RRULE:FREQ=SOMETIMES",
		"SUMMARY:broken",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:b",
		"DTSTART:20210105T070000Z",
		"SUMMARY:fine",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	events, err := Import(strings.NewReader(doc), time.UTC)
	assert.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fine", events[0].Title)
	assert.Equal(t, "none", events[0].Cadence)
}
