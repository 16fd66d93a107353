package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/notus/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; the reminder daemon and
	// the CLI may share the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Notes ---

const noteColumns = `id, title, content, pinned, archived, created_at, updated_at`

func (s *SQLiteStore) CreateNote(ctx context.Context, n *models.Note) error {
	if n.ID == "" {
		n.ID = newULID()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, boolToInt(n.Pinned), boolToInt(n.Archived), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetNote(ctx context.Context, id string) (*models.Note, error) {
	n := &models.Note{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id,
	).Scan(&n.ID, &n.Title, &n.Content, &n.Pinned, &n.Archived, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}

	if n.Tags, err = s.GetEntityTags(ctx, n.EntityKey()); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *SQLiteStore) ListNotes(ctx context.Context, filter NoteListFilter) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	var args []any
	if !filter.All {
		query += " WHERE archived = ?"
		args = append(args, boolToInt(filter.Archived))
	}
	query += " ORDER BY pinned DESC, created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []*models.Note
	for rows.Next() {
		n := &models.Note{}
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.Pinned, &n.Archived, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, n := range notes {
		if n.Tags, err = s.GetEntityTags(ctx, n.EntityKey()); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

func (s *SQLiteStore) UpdateNote(ctx context.Context, n *models.Note) error {
	n.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, pinned = ?, archived = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, boolToInt(n.Pinned), boolToInt(n.Archived), n.UpdatedAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update note: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteNote(ctx context.Context, id string) error {
	return s.deleteEntity(ctx, "notes", (&models.Note{ID: id}).EntityKey(), id)
}

// --- Events ---

const eventColumns = `id, title, start_at, end_at, remind, reminders, cadence, created_at, updated_at`

func (s *SQLiteStore) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.ID == "" {
		ev.ID = newULID()
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if ev.Cadence == "" {
		ev.Cadence = "none"
	}

	reminders, err := encodeReminders(ev.Reminders)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, ev.Start, ev.End, boolToInt(ev.Remind), reminders, ev.Cadence, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if ev.Tags, err = s.GetEntityTags(ctx, ev.EntityKey()); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_at, title`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ev := range events {
		if ev.Tags, err = s.GetEntityTags(ctx, ev.EntityKey()); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *SQLiteStore) UpdateEvent(ctx context.Context, ev *models.Event) error {
	ev.UpdatedAt = time.Now().UTC()
	reminders, err := encodeReminders(ev.Reminders)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET title = ?, start_at = ?, end_at = ?, remind = ?, reminders = ?, cadence = ?, updated_at = ? WHERE id = ?`,
		ev.Title, ev.Start, ev.End, boolToInt(ev.Remind), reminders, ev.Cadence, ev.UpdatedAt, ev.ID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update event: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	return s.deleteEntity(ctx, "events", (&models.Event{ID: id}).EntityKey(), id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	ev := &models.Event{}
	var end sql.NullTime
	var reminders string
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Start, &end, &ev.Remind, &reminders, &ev.Cadence, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	if end.Valid {
		ev.End = &end.Time
	}
	if err := json.Unmarshal([]byte(reminders), &ev.Reminders); err != nil {
		return nil, fmt.Errorf("decode reminders of event %s: %w", ev.ID, err)
	}
	return ev, nil
}

func encodeReminders(r map[models.ReminderUnit][]int) (string, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode reminders: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteStore) deleteEntity(ctx context.Context, table, entityKey, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", entityKey, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", entityKey, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entity_tags WHERE entity_key = ?", entityKey); err != nil {
		return fmt.Errorf("delete tags of %s: %w", entityKey, err)
	}
	return tx.Commit()
}

// --- Tags ---

// SaveTag inserts the tag or updates its name and color.
func (s *SQLiteStore) SaveTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = newULID()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color`,
		tag.ID, tag.Name, string(tag.Color), tag.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save tag: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, color, created_at FROM tags ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTags(rows)
}

func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetEntityTags replaces the tags of an entity, keeping the given order.
func (s *SQLiteStore) SetEntityTags(ctx context.Context, entityKey string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set tags: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entity_tags WHERE entity_key = ?", entityKey); err != nil {
		return fmt.Errorf("clear tags of %s: %w", entityKey, err)
	}
	for i, id := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entity_tags (entity_key, tag_id, position) VALUES (?, ?, ?)",
			entityKey, id, i); err != nil {
			return fmt.Errorf("tag %s: %w", entityKey, err)
		}
	}
	return tx.Commit()
}

// GetEntityTags returns the stored tags of an entity in their saved order.
// The returned values are fresh copies, not registry instances.
func (s *SQLiteStore) GetEntityTags(ctx context.Context, entityKey string) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.color, t.created_at FROM tags t
		JOIN entity_tags et ON t.id = et.tag_id
		WHERE et.entity_key = ? ORDER BY et.position`, entityKey)
	if err != nil {
		return nil, fmt.Errorf("get tags of %s: %w", entityKey, err)
	}
	defer func() { _ = rows.Close() }()
	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]*models.Tag, error) {
	var tags []*models.Tag
	for rows.Next() {
		t := &models.Tag{}
		var color string
		if err := rows.Scan(&t.ID, &t.Name, &color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.Color = models.ParseColor(color)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
