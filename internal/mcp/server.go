package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/recurrence"
	"github.com/joescharf/notus/internal/tags"
)

// Notebook is the part of the notebook the MCP tools use.
type Notebook interface {
	ListNotes(ctx context.Context, f notebook.NoteFilter) []*models.Note
	AddNote(ctx context.Context, n *models.Note) error
	AddEvent(ctx context.Context, ev *models.Event) error
	Tags() []*models.Tag
	ToggleTags(ctx context.Context, ref string, toggle []*models.Tag) ([]tags.ToggleOutcome, error)
	CreateTags(ctx context.Context, create []*models.Tag) ([]tags.RegisterOutcome, error)
	DeleteTags(ctx context.Context, names []string) ([]tags.DeleteOutcome, error)
	Agenda(ctx context.Context, from, to time.Time) ([]recurrence.Occurrence, error)
	Reminders(ctx context.Context, day time.Time) ([]recurrence.Reminder, error)
}

// Server wraps the notebook and exposes it as MCP tools.
type Server struct {
	nb      Notebook
	log     *zap.Logger
	loc     *time.Location
	now     func() time.Time
	version string
}

// NewServer creates the MCP server wrapper. Dates given to tools are read in loc.
func NewServer(nb Notebook, log *zap.Logger, loc *time.Location, version string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		nb:      nb,
		log:     log.Named("mcp"),
		loc:     loc,
		now:     time.Now,
		version: version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("notus", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listNotesTool())
	srv.AddTool(s.addNoteTool())
	srv.AddTool(s.addEventTool())
	srv.AddTool(s.listTagsTool())
	srv.AddTool(s.toggleTagsTool())
	srv.AddTool(s.createTagsTool())
	srv.AddTool(s.deleteTagsTool())
	srv.AddTool(s.agendaTool())
	srv.AddTool(s.remindersTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// JSON shapes
// ---------------------------------------------------------------------------

type tagOut struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type noteOut struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content,omitempty"`
	Pinned   bool     `json:"pinned"`
	Archived bool     `json:"archived"`
	Tags     []string `json:"tags"`
}

type occurrenceOut struct {
	EventID   string   `json:"event_id"`
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	Cadence   string   `json:"cadence"`
	Tags      []string `json:"tags"`
	Reminders string   `json:"reminders,omitempty"`
}

func toTagOut(t *models.Tag) tagOut {
	return tagOut{ID: t.ID, Name: t.Name, Color: string(t.Color)}
}

func toOccurrenceOut(o recurrence.Occurrence) occurrenceOut {
	out := occurrenceOut{
		EventID: o.Event.ID,
		Title:   o.Event.Title,
		Start:   o.Start().Format(models.DateTimeLayout),
		Cadence: o.Event.Cadence,
		Tags:    o.Event.Names(),
	}
	if o.Event.Remind {
		out.Reminders = models.FormatReminders(o.Event.Reminders)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// notus_list_notes
func (s *Server) listNotesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_list_notes",
		mcp.WithDescription("List notes. Returns a JSON array of notes with id, title, content, pinned, archived and tags."),
		mcp.WithString("tags", mcp.Description("Comma separated tag names; only notes carrying all of them are returned")),
		mcp.WithBoolean("archived", mcp.Description("List archived notes instead of active ones")),
	)
	return tool, s.handleListNotes
}

func (s *Server) handleListNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := notebook.NoteFilter{Archived: request.GetBool("archived", false)}
	for _, t := range models.ParseTags(request.GetString("tags", ""), "") {
		filter.Tags = append(filter.Tags, t.Name)
	}

	notes := s.nb.ListNotes(ctx, filter)
	out := make([]noteOut, len(notes))
	for i, n := range notes {
		out[i] = noteOut{
			ID:       n.ID,
			Title:    n.Title,
			Content:  n.Content,
			Pinned:   n.Pinned,
			Archived: n.Archived,
			Tags:     n.Names(),
		}
	}
	return jsonResult(out)
}

// notus_add_note
func (s *Server) addNoteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_add_note",
		mcp.WithDescription("Add a note. Titles are unique ignoring case."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
		mcp.WithString("tags", mcp.Description("Comma separated tag names")),
	)
	return tool, s.handleAddNote
}

func (s *Server) handleAddNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	n := &models.Note{
		Title:   title,
		Content: request.GetString("content", ""),
	}
	n.Tags = models.ParseTags(request.GetString("tags", ""), "")

	if err := s.nb.AddNote(ctx, n); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add note: %v", err)), nil
	}
	s.log.Debug("added note", zap.String("note", n.Title))
	return jsonResult(noteOut{ID: n.ID, Title: n.Title, Content: n.Content, Tags: n.Names()})
}

// notus_add_event
func (s *Server) addEventTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_add_event",
		mcp.WithDescription("Add a calendar event, optionally recurring and with reminders."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Event title")),
		mcp.WithString("start", mcp.Required(), mcp.Description("Start as YYYY-MM-DD or YYYY-MM-DD HH:MM")),
		mcp.WithString("end", mcp.Description("End as YYYY-MM-DD or YYYY-MM-DD HH:MM")),
		mcp.WithString("cadence", mcp.Description("none, daily, weekly, monthly, yearly, or an RRULE such as FREQ=WEEKLY;BYDAY=MO")),
		mcp.WithString("remind", mcp.Description("Comma separated reminder offsets before the start, e.g. 1d,3d,1w,1m")),
		mcp.WithString("tags", mcp.Description("Comma separated tag names")),
	)
	return tool, s.handleAddEvent
}

func (s *Server) handleAddEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	startStr, err := request.RequireString("start")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: start"), nil
	}
	start, err := models.ParseDateTime(startStr, s.loc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ev := &models.Event{
		Title:   title,
		Start:   start,
		Cadence: request.GetString("cadence", "none"),
	}
	if endStr := request.GetString("end", ""); endStr != "" {
		end, err := models.ParseDateTime(endStr, s.loc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ev.End = &end
	}
	for _, spec := range strings.Split(request.GetString("remind", ""), ",") {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		unit, n, err := models.ParseReminder(spec)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ev.Remind = true
		ev.AddReminder(unit, n)
	}
	ev.Tags = models.ParseTags(request.GetString("tags", ""), "")

	if err := s.nb.AddEvent(ctx, ev); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add event: %v", err)), nil
	}
	return jsonResult(toOccurrenceOut(recurrence.Occurrence{Event: ev, Date: ev.StartDate()}))
}

// notus_list_tags
func (s *Server) listTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_list_tags",
		mcp.WithDescription("List all tags with their colors, ordered by name."),
	)
	return tool, s.handleListTags
}

func (s *Server) handleListTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all := s.nb.Tags()
	out := make([]tagOut, len(all))
	for i, t := range all {
		out[i] = toTagOut(t)
	}
	return jsonResult(out)
}

// notus_toggle_tags
func (s *Server) toggleTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_toggle_tags",
		mcp.WithDescription("Toggle tags on a note or event: tags it carries are removed, the others are added (and created if new)."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Note or event title, id, or note:<id> / event:<id>")),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma separated tag names")),
		mcp.WithString("color", mcp.Description("Color for newly created tags: white, red, green, yellow, blue, purple, cyan")),
	)
	return tool, s.handleToggleTags
}

func (s *Server) handleToggleTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: target"), nil
	}
	list, err := request.RequireString("tags")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tags"), nil
	}
	toggle := models.ParseTags(list, request.GetString("color", ""))
	if len(toggle) == 0 {
		return mcp.NewToolResultError("no tag names given"), nil
	}

	outcomes, err := s.nb.ToggleTags(ctx, target, toggle)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle tags: %v", err)), nil
	}

	type outcome struct {
		Tag    string `json:"tag"`
		Action string `json:"action"`
	}
	out := make([]outcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = outcome{Tag: o.Tag.Name, Action: o.Action.String()}
	}
	return jsonResult(out)
}

// notus_create_tags
func (s *Server) createTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_create_tags",
		mcp.WithDescription("Create tags, or recolor existing tags with the same name."),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma separated tag names")),
		mcp.WithString("color", mcp.Description("Tag color: white, red, green, yellow, blue, purple, cyan")),
	)
	return tool, s.handleCreateTags
}

func (s *Server) handleCreateTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := request.RequireString("tags")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tags"), nil
	}
	create := models.ParseTags(list, request.GetString("color", ""))
	if len(create) == 0 {
		return mcp.NewToolResultError("no tag names given"), nil
	}

	outcomes, err := s.nb.CreateTags(ctx, create)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create tags: %v", err)), nil
	}

	type outcome struct {
		tagOut
		Result string `json:"result"`
	}
	out := make([]outcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = outcome{tagOut: toTagOut(o.Tag), Result: o.Result.String()}
	}
	return jsonResult(out)
}

// notus_delete_tags
func (s *Server) deleteTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_delete_tags",
		mcp.WithDescription("Delete tags everywhere: from every note and event, then from the tag list."),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma separated tag names")),
	)
	return tool, s.handleDeleteTags
}

func (s *Server) handleDeleteTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := request.RequireString("tags")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: tags"), nil
	}
	var names []string
	for _, t := range models.ParseTags(list, "") {
		names = append(names, t.Name)
	}
	if len(names) == 0 {
		return mcp.NewToolResultError("no tag names given"), nil
	}

	outcomes, err := s.nb.DeleteTags(ctx, names)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete tags: %v", err)), nil
	}

	type outcome struct {
		Tag    string `json:"tag"`
		Result string `json:"result"`
	}
	out := make([]outcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = outcome{Tag: o.Name, Result: o.Result.String()}
	}
	return jsonResult(out)
}

// notus_agenda
func (s *Server) agendaTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_agenda",
		mcp.WithDescription("List event occurrences in a date range, recurring events expanded, sorted by start."),
		mcp.WithString("from", mcp.Description("First day, YYYY-MM-DD (default today)")),
		mcp.WithString("to", mcp.Description("Last day, YYYY-MM-DD (default 7 days after from)")),
	)
	return tool, s.handleAgenda
}

func (s *Server) handleAgenda(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := models.DateOf(s.now().In(s.loc))
	if v := request.GetString("from", ""); v != "" {
		t, err := models.ParseDateTime(v, s.loc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		from = t
	}
	to := from.AddDate(0, 0, 7)
	if v := request.GetString("to", ""); v != "" {
		t, err := models.ParseDateTime(v, s.loc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		to = t
	}

	occ, err := s.nb.Agenda(ctx, from, to)
	if err != nil && len(occ) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build agenda: %v", err)), nil
	}
	if err != nil {
		s.log.Warn("agenda skipped events", zap.Error(err))
	}

	out := make([]occurrenceOut, len(occ))
	for i, o := range occ {
		out[i] = toOccurrenceOut(o)
	}
	return jsonResult(out)
}

// notus_reminders
func (s *Server) remindersTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("notus_reminders",
		mcp.WithDescription("List the reminders that fire on a day, with the occurrence each one is for."),
		mcp.WithString("day", mcp.Description("Day, YYYY-MM-DD (default today)")),
	)
	return tool, s.handleReminders
}

func (s *Server) handleReminders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day := models.DateOf(s.now().In(s.loc))
	if v := request.GetString("day", ""); v != "" {
		t, err := models.ParseDateTime(v, s.loc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		day = t
	}

	due, err := s.nb.Reminders(ctx, day)
	if err != nil && len(due) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute reminders: %v", err)), nil
	}
	if err != nil {
		s.log.Warn("reminders skipped events", zap.Error(err))
	}

	type reminderOut struct {
		occurrenceOut
		DaysBefore int `json:"days_before"`
	}
	out := make([]reminderOut, len(due))
	for i, r := range due {
		out[i] = reminderOut{
			occurrenceOut: toOccurrenceOut(r.Occurrence),
			DaysBefore:    int(r.Date.Sub(r.On).Hours()+12) / 24,
		}
	}
	return jsonResult(out)
}
