package notebook

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/notus/internal/models"
	"github.com/joescharf/notus/internal/store"
	"github.com/joescharf/notus/internal/tags"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "notus.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func openNotebook(t *testing.T, s store.Store) *Notebook {
	t.Helper()
	nb := New(s, nil)
	require.NoError(t, nb.Open(context.Background()))
	return nb
}

var errBindings = errors.New("bindings unavailable")

// failingStore fails SetEntityTags while fail is set.
type failingStore struct {
	store.Store
	fail bool
}

func (f *failingStore) SetEntityTags(ctx context.Context, entityKey string, tagIDs []string) error {
	if f.fail {
		return errBindings
	}
	return f.Store.SetEntityTags(ctx, entityKey, tagIDs)
}

func noteWithTags(title string, names ...string) *models.Note {
	n := &models.Note{Title: title}
	for _, name := range names {
		n.Tags = append(n.Tags, models.NewTag(name, ""))
	}
	return n
}

func TestAddNote_BindsCanonicalTags(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	a := noteWithTags("first", "work", "Work", "home")
	b := noteWithTags("second", "WORK")
	require.NoError(t, nb.AddNote(ctx, a))
	require.NoError(t, nb.AddNote(ctx, b))

	assert.Equal(t, []string{"work", "home"}, a.Names())
	assert.Same(t, a.Tags[0], b.Tags[0], "both notes share the canonical tag")
	assert.Equal(t, []string{"home", "work"}, nb.TagNames())
	assert.NoError(t, nb.Verify())
}

func TestAddNote_DuplicateTitle(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	require.NoError(t, nb.AddNote(ctx, &models.Note{Title: "Ideas"}))
	err := nb.AddNote(ctx, &models.Note{Title: " ideas "})
	assert.ErrorIs(t, err, ErrDuplicateTitle)

	err = nb.AddNote(ctx, &models.Note{Title: "  "})
	assert.Error(t, err)
}

func TestOpen_RestoresState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nb := openNotebook(t, s)
	require.NoError(t, nb.AddNote(ctx, noteWithTags("plan", "work", "urgent")))
	ev := &models.Event{Title: "review", Start: time.Date(2021, 2, 1, 10, 0, 0, 0, time.UTC), Cadence: "weekly"}
	ev.Tags = []*models.Tag{models.NewTag("work", "")}
	require.NoError(t, nb.AddEvent(ctx, ev))
	_, err := nb.CreateTags(ctx, []*models.Tag{models.NewTag("urgent", "red")})
	require.NoError(t, err)

	reopened := openNotebook(t, s)
	assert.Equal(t, []string{"urgent", "work"}, reopened.TagNames())
	assert.Equal(t, models.ColorRed, reopened.Tags()[0].Color)

	n, err := reopened.GetNote(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, []string{"work", "urgent"}, n.Names())

	tagged := reopened.Tagged("work")
	require.Len(t, tagged, 2)
	assert.Equal(t, "event:"+ev.ID, tagged[0].EntityKey())
	assert.NoError(t, reopened.Verify())
}

func TestListNotes_Filters(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	require.NoError(t, nb.AddNote(ctx, noteWithTags("a", "work")))
	require.NoError(t, nb.AddNote(ctx, noteWithTags("b", "work", "home")))
	require.NoError(t, nb.AddNote(ctx, &models.Note{Title: "c", Archived: true}))

	assert.Len(t, nb.ListNotes(ctx, NoteFilter{}), 2)
	assert.Len(t, nb.ListNotes(ctx, NoteFilter{All: true}), 3)

	archived := nb.ListNotes(ctx, NoteFilter{Archived: true})
	require.Len(t, archived, 1)
	assert.Equal(t, "c", archived[0].Title)

	both := nb.ListNotes(ctx, NoteFilter{Tags: []string{"WORK", "home"}})
	require.Len(t, both, 1)
	assert.Equal(t, "b", both[0].Title)

	assert.Empty(t, nb.ListNotes(ctx, NoteFilter{Tags: []string{"missing"}}))
}

func TestUpdateNote(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	n := noteWithTags("draft", "work")
	require.NoError(t, nb.AddNote(ctx, n))
	require.NoError(t, nb.AddNote(ctx, &models.Note{Title: "other"}))

	got, err := nb.UpdateNote(ctx, &models.Note{ID: n.ID, Title: "final", Content: "done", Pinned: true})
	require.NoError(t, err)
	assert.Same(t, n, got)
	assert.Equal(t, "final", n.Title)
	assert.True(t, n.Pinned)
	assert.Equal(t, []string{"work"}, n.Names(), "tags are untouched")

	_, err = nb.UpdateNote(ctx, &models.Note{ID: n.ID, Title: "OTHER"})
	assert.ErrorIs(t, err, ErrDuplicateTitle)

	_, err = nb.UpdateNote(ctx, &models.Note{ID: "missing", Title: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteNote_ForgetsBindings(t *testing.T) {
	s := newTestStore(t)
	nb := openNotebook(t, s)
	ctx := context.Background()

	require.NoError(t, nb.AddNote(ctx, noteWithTags("gone", "work")))
	deleted, err := nb.DeleteNote(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, "gone", deleted.Title)

	assert.Empty(t, nb.Tagged("work"))
	assert.Equal(t, []string{"work"}, nb.TagNames(), "the tag itself survives")
	assert.NoError(t, nb.Verify())

	_, err = nb.DeleteNote(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestToggleTags_Persists(t *testing.T) {
	s := newTestStore(t)
	nb := openNotebook(t, s)
	ctx := context.Background()

	n := noteWithTags("todo", "work")
	require.NoError(t, nb.AddNote(ctx, n))

	out, err := nb.ToggleTags(ctx, "note:"+n.ID, []*models.Tag{models.NewTag("work", ""), models.NewTag("errand", "green")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, tags.Removed, out[0].Action)
	assert.Equal(t, tags.Added, out[1].Action)
	assert.Equal(t, []string{"errand"}, n.Names())

	stored, err := s.GetEntityTags(ctx, n.EntityKey())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "errand", stored[0].Name)
	assert.Equal(t, models.ColorGreen, stored[0].Color)

	_, err = nb.ToggleTags(ctx, "nothing", []*models.Tag{models.NewTag("x", "")})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = nb.ToggleTags(ctx, "todo", []*models.Tag{{}})
	assert.ErrorIs(t, err, tags.ErrUnnamedTag)
}

func TestCreateTags_OverridesColor(t *testing.T) {
	s := newTestStore(t)
	nb := openNotebook(t, s)
	ctx := context.Background()

	out, err := nb.CreateTags(ctx, []*models.Tag{models.NewTag("work", "blue"), models.NewTag("WORK", "purple")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, tags.Created, out[0].Result)
	assert.Equal(t, tags.ColorOverridden, out[1].Result)

	stored, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "work", stored[0].Name)
	assert.Equal(t, models.ColorPurple, stored[0].Color)
}

func TestDeleteTags_Cascades(t *testing.T) {
	s := newTestStore(t)
	nb := openNotebook(t, s)
	ctx := context.Background()

	n := noteWithTags("plan", "work", "home")
	require.NoError(t, nb.AddNote(ctx, n))

	out, err := nb.DeleteTags(ctx, []string{"WORK", "nope"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, tags.Deleted, out[0].Result)
	assert.Equal(t, tags.NotFound, out[1].Result)

	assert.Equal(t, []string{"home"}, n.Names())
	stored, err := s.GetEntityTags(ctx, n.EntityKey())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "home", stored[0].Name)
	assert.NoError(t, nb.Verify())
}

func TestAddEvent_Validation(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()
	start := time.Date(2021, 1, 1, 9, 0, 0, 0, time.UTC)

	err := nb.AddEvent(ctx, &models.Event{Title: "x", Start: start, Cadence: "fortnightly"})
	assert.Error(t, err)

	err = nb.AddEvent(ctx, &models.Event{Title: "x", Start: start, Reminders: map[models.ReminderUnit][]int{"hour": {1}}})
	assert.Error(t, err)

	err = nb.AddEvent(ctx, &models.Event{Title: "x"})
	assert.Error(t, err)

	before := start.Add(-time.Hour)
	err = nb.AddEvent(ctx, &models.Event{Title: "x", Start: start, End: &before})
	assert.Error(t, err)

	ev := &models.Event{Title: "x", Start: start, Cadence: "Month"}
	require.NoError(t, nb.AddEvent(ctx, ev))
	assert.Equal(t, "monthly", ev.Cadence)
}

func TestAgendaAndReminders(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	rent := &models.Event{Title: "rent", Start: time.Date(2020, 8, 27, 9, 0, 0, 0, time.UTC), Cadence: "monthly", Remind: true}
	rent.AddReminder(models.ReminderDay, 1)
	rent.AddReminder(models.ReminderDay, 3)
	gym := &models.Event{Title: "gym", Start: time.Date(2020, 9, 21, 7, 0, 0, 0, time.UTC), Cadence: "weekly"}
	require.NoError(t, nb.AddEvent(ctx, rent))
	require.NoError(t, nb.AddEvent(ctx, gym))

	occ, err := nb.Agenda(ctx, time.Date(2020, 9, 20, 0, 0, 0, 0, time.UTC), time.Date(2020, 9, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, occ, 3)
	assert.Equal(t, "gym", occ[0].Event.Title)
	assert.Equal(t, "rent", occ[1].Event.Title)
	assert.Equal(t, time.Date(2020, 9, 27, 9, 0, 0, 0, time.UTC), occ[1].Start())
	assert.Equal(t, "gym", occ[2].Event.Title)

	due, err := nb.Reminders(ctx, time.Date(2020, 9, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "rent", due[0].Event.Title)
	assert.Equal(t, time.Date(2020, 9, 27, 0, 0, 0, 0, time.UTC), due[0].Date)

	due, err = nb.Reminders(ctx, time.Date(2020, 9, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDeleteEvent(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	ev := &models.Event{Title: "standup", Start: time.Date(2021, 1, 4, 9, 0, 0, 0, time.UTC)}
	ev.Tags = []*models.Tag{models.NewTag("work", "")}
	require.NoError(t, nb.AddEvent(ctx, ev))

	_, err := nb.DeleteEvent(ctx, "event:"+ev.ID)
	require.NoError(t, err)
	assert.Empty(t, nb.ListEvents(ctx, nil))
	assert.Empty(t, nb.Tagged("work"))
	assert.NoError(t, nb.Verify())
}

func TestEntity_Resolution(t *testing.T) {
	nb := openNotebook(t, newTestStore(t))
	ctx := context.Background()

	n := &models.Note{Title: "shared"}
	ev := &models.Event{Title: "shared", Start: time.Date(2021, 1, 4, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, nb.AddNote(ctx, n))
	require.NoError(t, nb.AddEvent(ctx, ev))

	e, err := nb.Entity(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, n.EntityKey(), e.EntityKey(), "titles resolve to notes first")

	e, err = nb.Entity(ctx, "event:"+ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.EntityKey(), e.EntityKey())

	e, err = nb.Entity(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.EntityKey(), e.EntityKey())
}

func TestAddNote_DiscardsOnBindingFailure(t *testing.T) {
	s := &failingStore{Store: newTestStore(t)}
	nb := openNotebook(t, s)
	ctx := context.Background()

	s.fail = true
	err := nb.AddNote(ctx, noteWithTags("broken", "work"))
	assert.ErrorIs(t, err, errBindings)

	assert.Empty(t, nb.ListNotes(ctx, NoteFilter{All: true}))
	assert.Empty(t, nb.Tagged("work"))
	assert.NoError(t, nb.Verify())
	stored, err := s.ListNotes(ctx, store.NoteListFilter{All: true})
	require.NoError(t, err)
	assert.Empty(t, stored, "the stored row is removed")

	// The title is free again once the store recovers.
	s.fail = false
	require.NoError(t, nb.AddNote(ctx, noteWithTags("broken", "work")))
	assert.Len(t, nb.Tagged("work"), 1)
}

func TestAddEvent_DiscardsOnBindingFailure(t *testing.T) {
	s := &failingStore{Store: newTestStore(t)}
	nb := openNotebook(t, s)
	ctx := context.Background()

	ev := &models.Event{Title: "standup", Start: time.Date(2021, 1, 4, 9, 0, 0, 0, time.UTC)}
	ev.Tags = []*models.Tag{models.NewTag("work", "")}
	s.fail = true
	assert.ErrorIs(t, nb.AddEvent(ctx, ev), errBindings)

	assert.Empty(t, nb.ListEvents(ctx, nil))
	assert.Empty(t, nb.Tagged("work"))
	assert.NoError(t, nb.Verify())
	stored, err := s.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestToggleTags_RevertsOnPersistFailure(t *testing.T) {
	s := &failingStore{Store: newTestStore(t)}
	nb := openNotebook(t, s)
	ctx := context.Background()

	n := noteWithTags("trip", "travel", "todo")
	require.NoError(t, nb.AddNote(ctx, n))

	s.fail = true
	_, err := nb.ToggleTags(ctx, "trip", []*models.Tag{models.NewTag("TRAVEL", ""), models.NewTag("urgent", "")})
	assert.ErrorIs(t, err, errBindings)

	assert.Equal(t, []string{"travel", "todo"}, n.Names(), "tags and their order are restored")
	assert.Len(t, nb.Tagged("travel"), 1)
	assert.Empty(t, nb.Tagged("urgent"))
	assert.NoError(t, nb.Verify())

	// Memory still matches what a fresh notebook loads from the store.
	s.fail = false
	reopened := openNotebook(t, s)
	got, err := reopened.GetNote(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, n.Names(), got.Names())
}
