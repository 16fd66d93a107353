package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/recurrence"
	"github.com/joescharf/notus/internal/tags"
)

// ---------------------------------------------------------------------------
// Mock notebook
// ---------------------------------------------------------------------------

type mockNotebook struct {
	notes  []*models.Note
	events []*models.Event
	tags   []*models.Tag

	lastFilter  notebook.NoteFilter
	lastRef     string
	lastToggle  []*models.Tag
	lastCreate  []*models.Tag
	lastDelete  []string
	agendaRange [2]time.Time
	reminderDay time.Time

	addNoteErr   error
	addEventErr  error
	toggleErr    error
	agendaErr    error
	remindersErr error
}

func (m *mockNotebook) ListNotes(_ context.Context, f notebook.NoteFilter) []*models.Note {
	m.lastFilter = f
	return m.notes
}

func (m *mockNotebook) AddNote(_ context.Context, n *models.Note) error {
	if m.addNoteErr != nil {
		return m.addNoteErr
	}
	n.ID = fmt.Sprintf("note-%d", len(m.notes)+1)
	m.notes = append(m.notes, n)
	return nil
}

func (m *mockNotebook) AddEvent(_ context.Context, ev *models.Event) error {
	if m.addEventErr != nil {
		return m.addEventErr
	}
	ev.ID = fmt.Sprintf("event-%d", len(m.events)+1)
	m.events = append(m.events, ev)
	return nil
}

func (m *mockNotebook) Tags() []*models.Tag { return m.tags }

func (m *mockNotebook) ToggleTags(_ context.Context, ref string, toggle []*models.Tag) ([]tags.ToggleOutcome, error) {
	if m.toggleErr != nil {
		return nil, m.toggleErr
	}
	m.lastRef = ref
	m.lastToggle = toggle
	out := make([]tags.ToggleOutcome, len(toggle))
	for i, t := range toggle {
		action := tags.Added
		if i%2 == 1 {
			action = tags.Removed
		}
		out[i] = tags.ToggleOutcome{Tag: t, Action: action}
	}
	return out, nil
}

func (m *mockNotebook) CreateTags(_ context.Context, create []*models.Tag) ([]tags.RegisterOutcome, error) {
	m.lastCreate = create
	out := make([]tags.RegisterOutcome, len(create))
	for i, t := range create {
		t.ID = fmt.Sprintf("tag-%d", i+1)
		out[i] = tags.RegisterOutcome{Tag: t, Result: tags.Created}
	}
	return out, nil
}

func (m *mockNotebook) DeleteTags(_ context.Context, names []string) ([]tags.DeleteOutcome, error) {
	m.lastDelete = names
	out := make([]tags.DeleteOutcome, len(names))
	for i, name := range names {
		out[i] = tags.DeleteOutcome{Name: name, Result: tags.NotFound}
	}
	return out, nil
}

func (m *mockNotebook) Agenda(_ context.Context, from, to time.Time) ([]recurrence.Occurrence, error) {
	m.agendaRange = [2]time.Time{from, to}
	if m.agendaErr != nil {
		return nil, m.agendaErr
	}
	return recurrence.Occurrences(m.events, from, to)
}

func (m *mockNotebook) Reminders(_ context.Context, day time.Time) ([]recurrence.Reminder, error) {
	m.reminderDay = day
	if m.remindersErr != nil {
		return nil, m.remindersErr
	}
	return recurrence.DueReminders(m.events, day)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testNow = time.Date(2020, 9, 20, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *mockNotebook) {
	t.Helper()
	mn := &mockNotebook{}
	srv := NewServer(mn, nil, time.UTC, "test")
	srv.now = func() time.Time { return testNow }
	require.NotNil(t, srv)
	return srv, mn
}

// callToolReq builds a CallToolRequest with the given tool name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func rentEvent() *models.Event {
	ev := &models.Event{
		ID:      "event-rent",
		Title:   "rent",
		Start:   time.Date(2020, 8, 27, 9, 0, 0, 0, time.UTC),
		Cadence: "monthly",
		Remind:  true,
	}
	ev.AddReminder(models.ReminderDay, 1)
	ev.AddReminder(models.ReminderDay, 3)
	return ev
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

func TestHandleListNotes(t *testing.T) {
	srv, mn := newTestServer(t)
	ctx := context.Background()

	n := &models.Note{ID: "n1", Title: "groceries", Pinned: true}
	n.Tags = []*models.Tag{{ID: "t1", Name: "home"}}
	mn.notes = []*models.Note{n}

	req := callToolReq("notus_list_notes", map[string]any{"tags": "home, errand", "archived": true})
	result, err := srv.handleListNotes(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var out []noteOut
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "groceries", out[0].Title)
	assert.Equal(t, []string{"home"}, out[0].Tags)
	assert.True(t, out[0].Pinned)

	assert.Equal(t, []string{"home", "errand"}, mn.lastFilter.Tags)
	assert.True(t, mn.lastFilter.Archived)
}

func TestHandleListNotes_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListNotes(context.Background(), callToolReq("notus_list_notes", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleAddNote(t *testing.T) {
	srv, mn := newTestServer(t)

	req := callToolReq("notus_add_note", map[string]any{"title": "plan", "content": "ship it", "tags": "work,urgent"})
	result, err := srv.handleAddNote(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	require.Len(t, mn.notes, 1)
	assert.Equal(t, "ship it", mn.notes[0].Content)
	assert.Equal(t, []string{"work", "urgent"}, mn.notes[0].Names())
	assert.Contains(t, resultText(t, result), "note-1")
}

func TestHandleAddNote_Errors(t *testing.T) {
	srv, mn := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleAddNote(ctx, callToolReq("notus_add_note", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "title")

	mn.addNoteErr = notebook.ErrDuplicateTitle
	result, err = srv.handleAddNote(ctx, callToolReq("notus_add_note", map[string]any{"title": "plan"}))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already exists")
}

func TestHandleAddEvent(t *testing.T) {
	srv, mn := newTestServer(t)

	req := callToolReq("notus_add_event", map[string]any{
		"title":   "rent",
		"start":   "2020-08-27 09:00",
		"cadence": "monthly",
		"remind":  "3d, 1d",
		"tags":    "bills",
	})
	result, err := srv.handleAddEvent(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	require.Len(t, mn.events, 1)
	ev := mn.events[0]
	assert.Equal(t, time.Date(2020, 8, 27, 9, 0, 0, 0, time.UTC), ev.Start)
	assert.True(t, ev.Remind)
	assert.Equal(t, []int{1, 3}, ev.Reminders[models.ReminderDay])
	assert.Equal(t, []string{"bills"}, ev.Names())

	var out occurrenceOut
	resultJSON(t, result, &out)
	assert.Equal(t, "2020-08-27 09:00", out.Start)
	assert.Equal(t, "1d,3d", out.Reminders)
}

func TestHandleAddEvent_BadInput(t *testing.T) {
	srv, mn := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no title", map[string]any{"start": "2020-01-01"}, "title"},
		{"no start", map[string]any{"title": "x"}, "start"},
		{"bad start", map[string]any{"title": "x", "start": "tomorrow"}, "invalid date"},
		{"bad end", map[string]any{"title": "x", "start": "2020-01-01", "end": "later"}, "invalid date"},
		{"bad remind", map[string]any{"title": "x", "start": "2020-01-01", "remind": "3h"}, "reminder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleAddEvent(ctx, callToolReq("notus_add_event", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
	assert.Empty(t, mn.events)

	mn.addEventErr = recurrence.ErrInvalidCadenceUnit
	result, err := srv.handleAddEvent(ctx, callToolReq("notus_add_event", map[string]any{"title": "x", "start": "2020-01-01", "cadence": "hourly"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid cadence unit")
}

func TestHandleListTags(t *testing.T) {
	srv, mn := newTestServer(t)
	mn.tags = []*models.Tag{{ID: "t1", Name: "home", Color: models.ColorGreen}, {ID: "t2", Name: "work", Color: models.ColorReset}}

	result, err := srv.handleListTags(context.Background(), callToolReq("notus_list_tags", nil))
	require.NoError(t, err)

	var out []tagOut
	resultJSON(t, result, &out)
	require.Len(t, out, 2)
	assert.Equal(t, tagOut{ID: "t1", Name: "home", Color: "green"}, out[0])
	assert.Equal(t, "reset", out[1].Color)
}

func TestHandleToggleTags(t *testing.T) {
	srv, mn := newTestServer(t)

	req := callToolReq("notus_toggle_tags", map[string]any{"target": "groceries", "tags": "home,errand", "color": "Blue"})
	result, err := srv.handleToggleTags(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "groceries", mn.lastRef)
	require.Len(t, mn.lastToggle, 2)
	assert.Equal(t, models.ColorBlue, mn.lastToggle[0].Color)

	var out []struct {
		Tag    string `json:"tag"`
		Action string `json:"action"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "added", out[0].Action)
	assert.Equal(t, "removed", out[1].Action)
}

func TestHandleToggleTags_Errors(t *testing.T) {
	srv, mn := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleToggleTags(ctx, callToolReq("notus_toggle_tags", map[string]any{"tags": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleToggleTags(ctx, callToolReq("notus_toggle_tags", map[string]any{"target": "a", "tags": " , "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no tag names")

	mn.toggleErr = fmt.Errorf("note %q: not found", "a")
	result, err = srv.handleToggleTags(ctx, callToolReq("notus_toggle_tags", map[string]any{"target": "a", "tags": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

func TestHandleCreateTags(t *testing.T) {
	srv, mn := newTestServer(t)

	result, err := srv.handleCreateTags(context.Background(), callToolReq("notus_create_tags", map[string]any{"tags": "work home", "color": "red"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, mn.lastCreate, 2)

	var out []struct {
		Name   string `json:"name"`
		Color  string `json:"color"`
		Result string `json:"result"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "work", out[0].Name)
	assert.Equal(t, "red", out[0].Color)
	assert.Equal(t, "created", out[0].Result)
}

func TestHandleDeleteTags(t *testing.T) {
	srv, mn := newTestServer(t)

	result, err := srv.handleDeleteTags(context.Background(), callToolReq("notus_delete_tags", map[string]any{"tags": "old,stale"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, []string{"old", "stale"}, mn.lastDelete)
	assert.Contains(t, resultText(t, result), "not_found")

	result, err = srv.handleDeleteTags(context.Background(), callToolReq("notus_delete_tags", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAgenda_DefaultRange(t *testing.T) {
	srv, mn := newTestServer(t)
	mn.events = []*models.Event{rentEvent()}

	result, err := srv.handleAgenda(context.Background(), callToolReq("notus_agenda", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, time.Date(2020, 9, 20, 0, 0, 0, 0, time.UTC), mn.agendaRange[0])
	assert.Equal(t, time.Date(2020, 9, 27, 0, 0, 0, 0, time.UTC), mn.agendaRange[1])

	var out []occurrenceOut
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "2020-09-27 09:00", out[0].Start)
	assert.Equal(t, "monthly", out[0].Cadence)
}

func TestHandleAgenda_Errors(t *testing.T) {
	srv, mn := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleAgenda(ctx, callToolReq("notus_agenda", map[string]any{"from": "soon"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	mn.agendaErr = recurrence.ErrInvalidCadenceUnit
	result, err = srv.handleAgenda(ctx, callToolReq("notus_agenda", map[string]any{"from": "2020-01-01", "to": "2020-02-01"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleReminders(t *testing.T) {
	srv, mn := newTestServer(t)
	mn.events = []*models.Event{rentEvent()}

	result, err := srv.handleReminders(context.Background(), callToolReq("notus_reminders", map[string]any{"day": "2020-09-24"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []struct {
		Title      string `json:"title"`
		Start      string `json:"start"`
		DaysBefore int    `json:"days_before"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "rent", out[0].Title)
	assert.Equal(t, "2020-09-27 09:00", out[0].Start)
	assert.Equal(t, 3, out[0].DaysBefore)
}

func TestHandleReminders_DefaultsToToday(t *testing.T) {
	srv, mn := newTestServer(t)

	result, err := srv.handleReminders(context.Background(), callToolReq("notus_reminders", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, time.Date(2020, 9, 20, 0, 0, 0, 0, time.UTC), mn.reminderDay)
	assert.Equal(t, "[]", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: Integration -- verify all tools are registered via HandleMessage
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(respBytes, &rpcResp)
	require.NoError(t, err)

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}

	expectedTools := []string{
		"notus_list_notes",
		"notus_add_note",
		"notus_add_event",
		"notus_list_tags",
		"notus_toggle_tags",
		"notus_create_tags",
		"notus_delete_tags",
		"notus_agenda",
		"notus_reminders",
	}
	for _, name := range expectedTools {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}

// Compile-time interface checks.
var (
	_ Notebook = (*mockNotebook)(nil)
	_ Notebook = (*notebook.Notebook)(nil)
)
