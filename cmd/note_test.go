package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
)

// notebookEnv points the commands at a fresh database and captures output.
func notebookEnv(t *testing.T) *bytes.Buffer {
	t.Helper()
	testEnv(t)

	color.NoColor = true
	buf := &bytes.Buffer{}
	ui.Out = buf
	ui.ErrOut = buf

	book, dataStore = nil, nil
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
		}
		book, dataStore = nil, nil
		noteContent, noteTags, noteTagColor, notePin = "", "", "", false
		noteFilterTags, noteArchived, noteAll = nil, false, false
		eventStart, eventEnd, eventCadence, eventRemind, eventTags = "", "", "none", "", ""
		eventFilterTag = nil
		tagColor = ""
	})
	return buf
}

func TestNoteAddAndList(t *testing.T) {
	buf := notebookEnv(t)

	noteTags = "work, Ideas"
	noteTagColor = "blue"
	require.NoError(t, noteAddRun("Roadmap"))
	assert.Contains(t, buf.String(), "Added note Roadmap [work] [Ideas]")

	buf.Reset()
	require.NoError(t, noteListRun())
	assert.Contains(t, buf.String(), "Roadmap")
	assert.Contains(t, buf.String(), "[work] [Ideas]")
}

func TestNoteAdd_DuplicateTitle(t *testing.T) {
	notebookEnv(t)

	require.NoError(t, noteAddRun("Groceries"))
	err := noteAddRun("groceries")
	assert.ErrorContains(t, err, "already exists")
}

func TestNoteAdd_DryRun(t *testing.T) {
	notebookEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	require.NoError(t, noteAddRun("Draft"))

	nb, err := getNotebook()
	require.NoError(t, err)
	assert.Empty(t, nb.ListNotes(context.Background(), notebook.NoteFilter{All: true}))
}

func TestNoteRm(t *testing.T) {
	buf := notebookEnv(t)

	noteTags = "tmp"
	require.NoError(t, noteAddRun("Scratch"))
	require.NoError(t, noteRmRun("Scratch"))
	assert.Contains(t, buf.String(), "Deleted note Scratch")

	nb, err := getNotebook()
	require.NoError(t, err)
	assert.Empty(t, nb.Tagged("tmp"))
}

func TestTagToggleAndDelete(t *testing.T) {
	buf := notebookEnv(t)

	require.NoError(t, noteAddRun("Trip"))
	require.NoError(t, tagToggleRun("Trip", []string{"travel", "todo"}))
	assert.Contains(t, buf.String(), "[travel] added")

	nb, err := getNotebook()
	require.NoError(t, err)
	n, err := nb.GetNote(context.Background(), "Trip")
	require.NoError(t, err)
	assert.Equal(t, []string{"travel", "todo"}, n.Names())

	buf.Reset()
	require.NoError(t, tagDeleteRun([]string{"TODO", "missing"}))
	assert.Contains(t, buf.String(), "deleted")
	assert.Contains(t, buf.String(), "not_found")
	assert.Equal(t, []string{"travel"}, n.Names())
}

func TestTagCreate_Recolors(t *testing.T) {
	buf := notebookEnv(t)

	tagColor = "red"
	require.NoError(t, tagCreateRun([]string{"urgent"}))
	tagColor = "green"
	require.NoError(t, tagCreateRun([]string{"Urgent"}))
	assert.Contains(t, buf.String(), "color_overridden")

	nb, err := getNotebook()
	require.NoError(t, err)
	require.Len(t, nb.Tags(), 1)
	assert.Equal(t, models.ColorGreen, nb.Tags()[0].Color)
}

func TestEventAddAndCalendar(t *testing.T) {
	buf := notebookEnv(t)

	eventStart = "2020-01-31"
	eventCadence = "monthly"
	eventRemind = "3d"
	eventTags = "bills"
	require.NoError(t, eventAddRun("Rent"))
	assert.Contains(t, buf.String(), "Added event Rent")

	nb, err := getNotebook()
	require.NoError(t, err)

	buf.Reset()
	from := time.Date(2020, 2, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, calendarRun(context.Background(), nb, from, from.AddDate(0, 1, 0)))
	assert.Contains(t, buf.String(), "Sat 2020-02-29")
	assert.Contains(t, buf.String(), "Rent")

	buf.Reset()
	require.NoError(t, remindRun(context.Background(), nb, time.Date(2020, 2, 26, 0, 0, 0, 0, time.Local)))
	assert.Contains(t, buf.String(), "Rent")
	assert.Contains(t, buf.String(), "3 days")
}

func TestEventAdd_BadReminder(t *testing.T) {
	notebookEnv(t)

	eventStart = "2020-01-01"
	eventRemind = "3x"
	err := eventAddRun("Broken")
	assert.ErrorContains(t, err, "--remind")
}

func TestCalendarRun_InvertedRange(t *testing.T) {
	notebookEnv(t)

	nb, err := getNotebook()
	require.NoError(t, err)
	from := time.Date(2020, 2, 1, 0, 0, 0, 0, time.Local)
	err = calendarRun(context.Background(), nb, from, from.AddDate(0, 0, -1))
	assert.Error(t, err)
}
