package store

import (
	"context"
	"errors"

	"github.com/joescharf/notus/internal/models"
)

// ErrNotFound is returned when a note, event or tag does not exist.
var ErrNotFound = errors.New("not found")

// NoteListFilter specifies filters for listing notes.
type NoteListFilter struct {
	// Archived selects archived notes instead of active ones.
	Archived bool
	// All ignores the archived flag.
	All bool
}

// Store defines the persistence interface for notus.
type Store interface {
	// Notes
	CreateNote(ctx context.Context, n *models.Note) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	ListNotes(ctx context.Context, filter NoteListFilter) ([]*models.Note, error)
	UpdateNote(ctx context.Context, n *models.Note) error
	DeleteNote(ctx context.Context, id string) error

	// Events
	CreateEvent(ctx context.Context, ev *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]*models.Event, error)
	UpdateEvent(ctx context.Context, ev *models.Event) error
	DeleteEvent(ctx context.Context, id string) error

	// Tags
	SaveTag(ctx context.Context, tag *models.Tag) error
	ListTags(ctx context.Context) ([]*models.Tag, error)
	DeleteTag(ctx context.Context, id string) error
	SetEntityTags(ctx context.Context, entityKey string, tagIDs []string) error
	GetEntityTags(ctx context.Context, entityKey string) ([]*models.Tag, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
