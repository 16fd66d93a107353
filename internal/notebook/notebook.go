// Package notebook ties the store, the tag registry and the recurrence
// engine together into the notes and calendar the commands work on.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/recurrence"
	"github.com/joescharf/notus/internal/store"
	"github.com/joescharf/notus/internal/tags"
)

// ErrDuplicateTitle is returned when a note with the same title already exists.
var ErrDuplicateTitle = errors.New("a note with this title already exists")

// Notebook holds every note and event in memory, bound to canonical tags,
// and writes each change through to the store. It is safe for concurrent use.
type Notebook struct {
	mu     sync.Mutex
	store  store.Store
	reg    *tags.Registry
	log    *zap.Logger
	notes  map[string]*models.Note
	events map[string]*models.Event
}

// New creates a notebook over s. Call Open before use.
func New(s store.Store, log *zap.Logger, opts ...tags.Option) *Notebook {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notebook{
		store:  s,
		reg:    tags.New(log, opts...),
		log:    log.Named("notebook"),
		notes:  make(map[string]*models.Note),
		events: make(map[string]*models.Event),
	}
}

// Open loads tags, notes and events from the store and reconciles the tags
// of every note and event against the canonical set.
func (nb *Notebook) Open(ctx context.Context) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	stored, err := nb.store.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	for _, t := range stored {
		nb.reg.Register(t, false)
	}

	notes, err := nb.store.ListNotes(ctx, store.NoteListFilter{All: true})
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	for _, n := range notes {
		if err := nb.load(ctx, n); err != nil {
			return err
		}
		nb.notes[n.ID] = n
	}

	events, err := nb.store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	for _, ev := range events {
		if err := nb.load(ctx, ev); err != nil {
			return err
		}
		nb.events[ev.ID] = ev
	}

	nb.log.Debug("opened notebook",
		zap.Int("tags", nb.reg.Len()),
		zap.Int("notes", len(nb.notes)),
		zap.Int("events", len(nb.events)))
	return nil
}

// load reconciles a freshly read entity, writing back only when
// reconciliation changed its tag list.
func (nb *Notebook) load(ctx context.Context, e models.Taggable) error {
	before := tagIDs(e)
	if err := nb.reg.Reconcile(e); err != nil {
		return fmt.Errorf("reconcile %s: %w", e.EntityKey(), err)
	}
	if slices.Equal(before, tagIDs(e)) {
		return nil
	}
	return nb.saveEntityTags(ctx, e)
}

// saveEntityTags persists the canonical tags of e and its tag list.
func (nb *Notebook) saveEntityTags(ctx context.Context, e models.Taggable) error {
	for _, t := range e.Tagset().Tags {
		if err := nb.store.SaveTag(ctx, t); err != nil {
			return err
		}
	}
	return nb.store.SetEntityTags(ctx, e.EntityKey(), tagIDs(e))
}

// bindNew binds the tags of a freshly stored entity and persists them.
func (nb *Notebook) bindNew(ctx context.Context, e models.Taggable) error {
	if err := nb.reg.Reconcile(e); err != nil {
		return fmt.Errorf("reconcile %s: %w", e.EntityKey(), err)
	}
	return nb.saveEntityTags(ctx, e)
}

// discard undoes the create of e after cause: its tags are unbound and
// its row deleted. It returns cause.
func (nb *Notebook) discard(ctx context.Context, e models.Taggable, del func(context.Context, string) error, id string, cause error) error {
	nb.reg.Forget(e)
	if err := del(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		nb.log.Error("could not discard entity", zap.String("entity", e.EntityKey()), zap.Error(err))
		return errors.Join(cause, err)
	}
	nb.log.Warn("discarded entity", zap.String("entity", e.EntityKey()), zap.Error(cause))
	return cause
}

// --- Notes ---

// AddNote stores n and binds its tags. Titles are unique ignoring case.
func (nb *Notebook) AddNote(ctx context.Context, n *models.Note) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return errors.New("note title is required")
	}
	if nb.noteByTitle(n.Title) != nil {
		return fmt.Errorf("%q: %w", n.Title, ErrDuplicateTitle)
	}

	if err := nb.store.CreateNote(ctx, n); err != nil {
		return err
	}
	if err := nb.bindNew(ctx, n); err != nil {
		return nb.discard(ctx, n, nb.store.DeleteNote, n.ID, err)
	}
	nb.notes[n.ID] = n
	nb.log.Info("added note", zap.String("note", n.Title), zap.Strings("tags", n.Names()))
	return nil
}

// UpdateNote saves the title, content, pinned and archived fields of n
// onto the note with n's id. Tags change through ToggleTags.
func (nb *Notebook) UpdateNote(ctx context.Context, n *models.Note) (*models.Note, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	cur, ok := nb.notes[n.ID]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", n.ID, store.ErrNotFound)
	}
	title := strings.TrimSpace(n.Title)
	if title == "" {
		return nil, errors.New("note title is required")
	}
	if other := nb.noteByTitle(title); other != nil && other.ID != n.ID {
		return nil, fmt.Errorf("%q: %w", title, ErrDuplicateTitle)
	}

	next := *cur
	next.Title, next.Content, next.Pinned, next.Archived = title, n.Content, n.Pinned, n.Archived
	if err := nb.store.UpdateNote(ctx, &next); err != nil {
		return nil, err
	}
	cur.Title, cur.Content, cur.Pinned, cur.Archived = next.Title, next.Content, next.Pinned, next.Archived
	cur.UpdatedAt = next.UpdatedAt
	return cur, nil
}

// GetNote resolves ref, an id or a title, to a note.
func (nb *Notebook) GetNote(ctx context.Context, ref string) (*models.Note, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.findNote(ref)
}

// DeleteNote removes the note named by ref and its tag bindings.
func (nb *Notebook) DeleteNote(ctx context.Context, ref string) (*models.Note, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	n, err := nb.findNote(ref)
	if err != nil {
		return nil, err
	}
	if err := nb.store.DeleteNote(ctx, n.ID); err != nil {
		return nil, err
	}
	nb.reg.Forget(n)
	delete(nb.notes, n.ID)
	nb.log.Info("deleted note", zap.String("note", n.Title))
	return n, nil
}

// NoteFilter selects notes for ListNotes.
type NoteFilter struct {
	// Tags keeps notes carrying every named tag.
	Tags []string
	// Archived selects archived notes instead of active ones.
	Archived bool
	// All ignores the archived flag.
	All bool
}

// ListNotes returns matching notes, pinned first, then oldest first.
func (nb *Notebook) ListNotes(ctx context.Context, f NoteFilter) []*models.Note {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	var out []*models.Note
	for _, n := range nb.notes {
		if !f.All && n.Archived != f.Archived {
			continue
		}
		if !nb.hasAll(n, f.Tags) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (nb *Notebook) hasAll(e models.Taggable, names []string) bool {
	for _, name := range names {
		if !nb.reg.IsBound(e, name) {
			return false
		}
	}
	return true
}

func (nb *Notebook) noteByTitle(title string) *models.Note {
	for _, n := range nb.notes {
		if strings.EqualFold(n.Title, title) {
			return n
		}
	}
	return nil
}

func (nb *Notebook) findNote(ref string) (*models.Note, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "note:")
	if n, ok := nb.notes[ref]; ok {
		return n, nil
	}
	if n := nb.noteByTitle(ref); n != nil {
		return n, nil
	}
	return nil, fmt.Errorf("note %q: %w", ref, store.ErrNotFound)
}

// --- Events ---

// AddEvent validates and stores ev and binds its tags.
func (nb *Notebook) AddEvent(ctx context.Context, ev *models.Event) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	ev.Title = strings.TrimSpace(ev.Title)
	if ev.Title == "" {
		return errors.New("event title is required")
	}
	if ev.Start.IsZero() {
		return errors.New("event start is required")
	}
	if ev.End != nil && ev.End.Before(ev.Start) {
		return fmt.Errorf("event %q ends before it starts", ev.Title)
	}
	c, err := recurrence.ParseCadence(ev.Cadence)
	if err != nil {
		return err
	}
	ev.Cadence = c.Name()
	for unit := range ev.Reminders {
		if !unit.Valid() {
			return fmt.Errorf("reminder unit %q: %w", unit, recurrence.ErrInvalidCadenceUnit)
		}
	}

	if err := nb.store.CreateEvent(ctx, ev); err != nil {
		return err
	}
	if err := nb.bindNew(ctx, ev); err != nil {
		return nb.discard(ctx, ev, nb.store.DeleteEvent, ev.ID, err)
	}
	nb.events[ev.ID] = ev
	nb.log.Info("added event",
		zap.String("event", ev.Title),
		zap.Time("start", ev.Start),
		zap.String("cadence", ev.Cadence))
	return nil
}

// GetEvent resolves ref, an id or a title, to an event.
func (nb *Notebook) GetEvent(ctx context.Context, ref string) (*models.Event, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.findEvent(ref)
}

// DeleteEvent removes the event named by ref and its tag bindings.
func (nb *Notebook) DeleteEvent(ctx context.Context, ref string) (*models.Event, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	ev, err := nb.findEvent(ref)
	if err != nil {
		return nil, err
	}
	if err := nb.store.DeleteEvent(ctx, ev.ID); err != nil {
		return nil, err
	}
	nb.reg.Forget(ev)
	delete(nb.events, ev.ID)
	nb.log.Info("deleted event", zap.String("event", ev.Title))
	return ev, nil
}

// ListEvents returns the events carrying every named tag, ordered by start.
func (nb *Notebook) ListEvents(ctx context.Context, tagNames []string) []*models.Event {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.eventsWith(tagNames)
}

func (nb *Notebook) eventsWith(tagNames []string) []*models.Event {
	var out []*models.Event
	for _, ev := range nb.events {
		if nb.hasAll(ev, tagNames) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func (nb *Notebook) findEvent(ref string) (*models.Event, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "event:")
	if ev, ok := nb.events[ref]; ok {
		return ev, nil
	}
	for _, ev := range nb.events {
		if strings.EqualFold(ev.Title, ref) {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("event %q: %w", ref, store.ErrNotFound)
}

// Agenda returns every occurrence of every event within [from, to], sorted
// by start. Events whose cadence cannot be parsed are skipped and reported
// in the error alongside the occurrences of the rest.
func (nb *Notebook) Agenda(ctx context.Context, from, to time.Time) ([]recurrence.Occurrence, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return recurrence.Occurrences(nb.eventsWith(nil), from, to)
}

// Reminders returns the reminders firing on day.
func (nb *Notebook) Reminders(ctx context.Context, day time.Time) ([]recurrence.Reminder, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return recurrence.DueReminders(nb.eventsWith(nil), day)
}

// --- Tags ---

// Entity resolves ref to a note or an event. Refs are "note:<id>",
// "event:<id>", a bare id, or a title; notes win over events on titles.
func (nb *Notebook) Entity(ctx context.Context, ref string) (models.Taggable, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.findEntity(ref)
}

func (nb *Notebook) findEntity(ref string) (models.Taggable, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "note:"):
		return nb.findNote(ref)
	case strings.HasPrefix(ref, "event:"):
		return nb.findEvent(ref)
	}
	if n, err := nb.findNote(ref); err == nil {
		return n, nil
	}
	if ev, err := nb.findEvent(ref); err == nil {
		return ev, nil
	}
	return nil, fmt.Errorf("%q: %w", ref, store.ErrNotFound)
}

// ToggleTags toggles each tag on the entity named by ref and persists the result.
func (nb *Notebook) ToggleTags(ctx context.Context, ref string, toggle []*models.Tag) ([]tags.ToggleOutcome, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	e, err := nb.findEntity(ref)
	if err != nil {
		return nil, err
	}
	before := slices.Clone(e.Tagset().Tags)
	out, err := nb.reg.Toggle(e, toggle)
	if err == nil {
		err = nb.saveEntityTags(ctx, e)
	}
	if err != nil {
		nb.undoToggle(e, out, before)
		return out, err
	}
	return out, nil
}

// undoToggle reverts the toggles in out and restores the tag order of e.
func (nb *Notebook) undoToggle(e models.Taggable, out []tags.ToggleOutcome, before []*models.Tag) {
	undo := make([]*models.Tag, 0, len(out))
	for _, o := range out {
		undo = append(undo, o.Tag)
	}
	if _, err := nb.reg.Toggle(e, undo); err != nil {
		nb.log.Error("could not revert tag toggle", zap.String("entity", e.EntityKey()), zap.Error(err))
		return
	}
	e.Tagset().Tags = before
}

// CreateTags registers tags, overriding the color of existing ones, and persists them.
func (nb *Notebook) CreateTags(ctx context.Context, create []*models.Tag) ([]tags.RegisterOutcome, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	out := nb.reg.RegisterAll(create)
	for _, o := range out {
		if o.Result == tags.NoOp {
			continue
		}
		if err := nb.store.SaveTag(ctx, o.Tag); err != nil {
			return out, err
		}
	}
	return out, nil
}

// DeleteTags deletes the named tags from the registry, every note and
// event, and the store.
func (nb *Notebook) DeleteTags(ctx context.Context, names []string) ([]tags.DeleteOutcome, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	out := nb.reg.DeleteAll(names)
	for _, o := range out {
		if o.Result != tags.Deleted {
			continue
		}
		if err := nb.store.DeleteTag(ctx, o.Tag.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return out, err
		}
	}
	return out, nil
}

// Tags returns the canonical tags ordered by name.
func (nb *Notebook) Tags() []*models.Tag {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.reg.Tags()
}

// TagNames returns the canonical tag names ordered by name.
func (nb *Notebook) TagNames() []string {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.reg.Names()
}

// Tagged returns the notes and events carrying the tag named name.
func (nb *Notebook) Tagged(name string) []models.Taggable {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.reg.Entities(name)
}

// Verify checks the tag index against every loaded note and event.
func (nb *Notebook) Verify() error {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.reg.Verify()
}

func tagIDs(e models.Taggable) []string {
	list := e.Tagset().Tags
	ids := make([]string, 0, len(list))
	for _, t := range list {
		if t != nil {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
