package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime("2020-08-27", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 8, 27, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDateTime(" 2020-08-27 09:30 ", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 8, 27, 9, 30, 0, 0, time.UTC), got)

	got, err = ParseDateTime("2020-08-27T09:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())

	_, err = ParseDateTime("next tuesday", time.UTC)
	assert.Error(t, err)
}

func TestParseReminder(t *testing.T) {
	tests := []struct {
		in      string
		unit    ReminderUnit
		n       int
		wantErr bool
	}{
		{"3d", ReminderDay, 3, false},
		{"2W", ReminderWeek, 2, false},
		{"1m", ReminderMonth, 1, false},
		{"0d", "", 0, true},
		{"d", "", 0, true},
		{"3h", "", 0, true},
		{"xd", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			unit, n, err := ParseReminder(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.unit, unit)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestFormatReminders(t *testing.T) {
	ev := &Event{}
	ev.AddReminder(ReminderMonth, 1)
	ev.AddReminder(ReminderDay, 3)
	ev.AddReminder(ReminderDay, 1)
	assert.Equal(t, "1d,3d,1m", FormatReminders(ev.Reminders))
	assert.Empty(t, FormatReminders(nil))
}

func TestParseTags(t *testing.T) {
	tags := ParseTags("work, home  errand,,", "blue")
	require.Len(t, tags, 3)
	assert.Equal(t, "work", tags[0].Name)
	assert.Equal(t, "errand", tags[2].Name)
	assert.Equal(t, ColorBlue, tags[1].Color)
	assert.Empty(t, ParseTags(" , ", ""))
}
