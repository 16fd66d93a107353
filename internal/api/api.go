// Package api serves the notebook over a JSON REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/notebook"
	"github.com/joescharf/notus/internal/recurrence"
	"github.com/joescharf/notus/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	nb  *notebook.Notebook
	log *zap.Logger
	loc *time.Location
	now func() time.Time
}

// NewServer creates a new API server. Dates in requests are read in loc.
func NewServer(nb *notebook.Notebook, log *zap.Logger, loc *time.Location) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Server{nb: nb, log: log.Named("api"), loc: loc, now: time.Now}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/notes", s.listNotes)
	mux.HandleFunc("POST /api/v1/notes", s.createNote)
	mux.HandleFunc("GET /api/v1/notes/{ref}", s.getNote)
	mux.HandleFunc("PUT /api/v1/notes/{ref}", s.updateNote)
	mux.HandleFunc("DELETE /api/v1/notes/{ref}", s.deleteNote)

	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	mux.HandleFunc("POST /api/v1/events", s.createEvent)
	mux.HandleFunc("GET /api/v1/events/{ref}", s.getEvent)
	mux.HandleFunc("DELETE /api/v1/events/{ref}", s.deleteEvent)

	mux.HandleFunc("GET /api/v1/tags", s.listTags)
	mux.HandleFunc("POST /api/v1/tags", s.createTags)
	mux.HandleFunc("POST /api/v1/tags/bulk-delete", s.deleteTags)
	mux.HandleFunc("POST /api/v1/entities/{ref}/tags", s.toggleTags)

	mux.HandleFunc("GET /api/v1/agenda", s.agenda)
	mux.HandleFunc("GET /api/v1/reminders", s.reminders)

	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps notebook errors to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, notebook.ErrDuplicateTitle):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// patchString applies a string value from a JSON patch map to the target if the key is present.
func patchString(patch map[string]any, key string, target *string) {
	if v, ok := patch[key]; ok {
		if str, ok := v.(string); ok {
			*target = str
		}
	}
}

func patchBool(patch map[string]any, key string, target *bool) {
	if v, ok := patch[key]; ok {
		if b, ok := v.(bool); ok {
			*target = b
		}
	}
}

// queryList reads a repeated or comma separated query parameter.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// --- JSON shapes ---

type tagJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type noteJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived"`
	Tags      []tagJSON `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type eventJSON struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	Cadence   string     `json:"cadence"`
	Reminders string     `json:"reminders,omitempty"`
	Tags      []tagJSON  `json:"tags"`
}

type occurrenceJSON struct {
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	Tags    []tagJSON `json:"tags"`
}

type outcomeJSON struct {
	Tag    *tagJSON `json:"tag,omitempty"`
	Name   string   `json:"name,omitempty"`
	Result string   `json:"result"`
}

func toTagsJSON(list []*models.Tag) []tagJSON {
	out := make([]tagJSON, 0, len(list))
	for _, t := range list {
		out = append(out, tagJSON{ID: t.ID, Name: t.Name, Color: string(t.Color)})
	}
	return out
}

func toTagJSON(t *models.Tag) *tagJSON {
	if t == nil {
		return nil
	}
	return &tagJSON{ID: t.ID, Name: t.Name, Color: string(t.Color)}
}

func toNoteJSON(n *models.Note) noteJSON {
	return noteJSON{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Pinned:    n.Pinned,
		Archived:  n.Archived,
		Tags:      toTagsJSON(n.Tags),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func toEventJSON(ev *models.Event) eventJSON {
	out := eventJSON{
		ID:      ev.ID,
		Title:   ev.Title,
		Start:   ev.Start,
		End:     ev.End,
		Cadence: ev.Cadence,
		Tags:    toTagsJSON(ev.Tags),
	}
	if ev.Remind {
		out.Reminders = models.FormatReminders(ev.Reminders)
	}
	return out
}

func toOccurrencesJSON(occ []recurrence.Occurrence) []occurrenceJSON {
	out := make([]occurrenceJSON, 0, len(occ))
	for _, o := range occ {
		out = append(out, occurrenceJSON{
			EventID: o.Event.ID,
			Title:   o.Event.Title,
			Start:   o.Start(),
			Tags:    toTagsJSON(o.Event.Tags),
		})
	}
	return out
}

// --- Notes ---

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes := s.nb.ListNotes(r.Context(), notebook.NoteFilter{
		Tags:     queryList(r, "tag"),
		Archived: q.Get("archived") == "true",
		All:      q.Get("all") == "true",
	})
	out := make([]noteJSON, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteJSON(n))
	}
	writeJSON(w, http.StatusOK, out)
}

type createNoteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Pinned  bool     `json:"pinned"`
	Tags    []string `json:"tags"`
	Color   string   `json:"color"`
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	n := &models.Note{Title: req.Title, Content: req.Content, Pinned: req.Pinned}
	n.Tags = models.ParseTags(strings.Join(req.Tags, ","), req.Color)
	if err := s.nb.AddNote(r.Context(), n); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteJSON(n))
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.nb.GetNote(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteJSON(n))
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	cur, err := s.nb.GetNote(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeErr(w, err)
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	next := *cur
	patchString(patch, "title", &next.Title)
	patchString(patch, "content", &next.Content)
	patchBool(patch, "pinned", &next.Pinned)
	patchBool(patch, "archived", &next.Archived)

	n, err := s.nb.UpdateNote(r.Context(), &next)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteJSON(n))
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	if _, err := s.nb.DeleteNote(r.Context(), r.PathValue("ref")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Events ---

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events := s.nb.ListEvents(r.Context(), queryList(r, "tag"))
	out := make([]eventJSON, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventJSON(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

type createEventRequest struct {
	Title   string   `json:"title"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Cadence string   `json:"cadence"`
	Remind  []string `json:"remind"`
	Tags    []string `json:"tags"`
	Color   string   `json:"color"`
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	start, err := models.ParseDateTime(req.Start, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	ev := &models.Event{Title: req.Title, Start: start, Cadence: req.Cadence}
	if req.End != "" {
		end, err := models.ParseDateTime(req.End, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end: "+err.Error())
			return
		}
		ev.End = &end
	}
	for _, rem := range req.Remind {
		unit, n, err := models.ParseReminder(rem)
		if err != nil {
			writeError(w, http.StatusBadRequest, "remind: "+err.Error())
			return
		}
		ev.AddReminder(unit, n)
	}
	ev.Remind = len(ev.Reminders) > 0
	ev.Tags = models.ParseTags(strings.Join(req.Tags, ","), req.Color)

	if err := s.nb.AddEvent(r.Context(), ev); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventJSON(ev))
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.nb.GetEvent(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventJSON(ev))
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := s.nb.DeleteEvent(r.Context(), r.PathValue("ref")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tags ---

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toTagsJSON(s.nb.Tags()))
}

type tagsRequest struct {
	Names []string `json:"names"`
	Color string   `json:"color"`
}

func (s *Server) createTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	outcomes, err := s.nb.CreateTags(r.Context(), models.ParseTags(strings.Join(req.Names, ","), req.Color))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, outcomeJSON{Tag: toTagJSON(o.Tag), Result: o.Result.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	outcomes, err := s.nb.DeleteTags(r.Context(), req.Names)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, outcomeJSON{Tag: toTagJSON(o.Tag), Name: o.Name, Result: o.Result.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) toggleTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	outcomes, err := s.nb.ToggleTags(r.Context(), r.PathValue("ref"), models.ParseTags(strings.Join(req.Names, ","), req.Color))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, outcomeJSON{Tag: toTagJSON(o.Tag), Result: o.Action.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Calendar ---

// dateParam reads a date query parameter, falling back to def when absent.
func (s *Server) dateParam(r *http.Request, key string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return models.ParseDateTime(v, s.loc)
}

func (s *Server) agenda(w http.ResponseWriter, r *http.Request) {
	today := models.DateOf(s.now().In(s.loc))
	from, err := s.dateParam(r, "from", today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := s.dateParam(r, "to", from.AddDate(0, 0, 7))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	occ, err := s.nb.Agenda(r.Context(), from, to)
	if err != nil {
		s.log.Warn("agenda skipped events", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, toOccurrencesJSON(occ))
}

func (s *Server) reminders(w http.ResponseWriter, r *http.Request) {
	day, err := s.dateParam(r, "day", s.now().In(s.loc))
	if err != nil {
		writeError(w, http.StatusBadRequest, "day: "+err.Error())
		return
	}

	due, err := s.nb.Reminders(r.Context(), day)
	if err != nil {
		s.log.Warn("reminders skipped events", zap.Error(err))
	}
	occ := make([]recurrence.Occurrence, 0, len(due))
	for _, d := range due {
		occ = append(occ, d.Occurrence)
	}
	writeJSON(w, http.StatusOK, toOccurrencesJSON(occ))
}
