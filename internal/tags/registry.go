// Package tags keeps the canonical set of tags and the tag to note/event index.
package tags

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/models"
)

var (
	// ErrNotCanonical is returned by Bind when the tag is not the registry's own instance.
	ErrNotCanonical = errors.New("tag is not canonical")
	// ErrNilEntity is returned when an operation is given a nil entity.
	ErrNilEntity = errors.New("nil entity")
	// ErrUnnamedTag is returned when a batch contains a nil or unnamed tag.
	ErrUnnamedTag = errors.New("tag has no name")
)

// RegisterResult is the outcome of Register.
type RegisterResult int

const (
	Created RegisterResult = iota + 1
	ColorOverridden
	NoOp
)

func (r RegisterResult) String() string {
	switch r {
	case Created:
		return "created"
	case ColorOverridden:
		return "color_overridden"
	case NoOp:
		return "noop"
	}
	return fmt.Sprintf("RegisterResult(%d)", int(r))
}

// ToggleAction is the per-tag outcome of Toggle.
type ToggleAction int

const (
	Added ToggleAction = iota + 1
	Removed
)

func (a ToggleAction) String() string {
	switch a {
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("ToggleAction(%d)", int(a))
}

// DeleteResult is the outcome of Delete.
type DeleteResult int

const (
	Deleted DeleteResult = iota + 1
	NotFound
)

func (d DeleteResult) String() string {
	switch d {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	}
	return fmt.Sprintf("DeleteResult(%d)", int(d))
}

// RegisterOutcome pairs a requested tag with its canonical tag and result.
type RegisterOutcome struct {
	Tag    *models.Tag
	Result RegisterResult
}

// ToggleOutcome pairs a canonical tag with what Toggle did to it.
type ToggleOutcome struct {
	Tag    *models.Tag
	Action ToggleAction
}

// DeleteOutcome pairs a requested name with the result of deleting it.
// Tag is the deleted canonical tag, nil when Result is NotFound.
type DeleteOutcome struct {
	Name   string
	Tag    *models.Tag
	Result DeleteResult
}

// Registry is the single authority for tag identity and for which
// notes and events carry which tags. It is not safe for concurrent use.
type Registry struct {
	log   *zap.Logger
	newID func() string
	now   func() time.Time

	tags  map[string]*models.Tag                // id -> canonical tag
	ids   map[string]string                     // folded name -> id
	bound map[string]map[string]models.Taggable // id -> entity key -> entity
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDFunc sets the generator used for ids of newly created tags.
func WithIDFunc(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithClock sets the clock used to stamp CreatedAt on new tags.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

// New creates an empty registry. A nil logger disables logging.
func New(log *zap.Logger, opts ...Option) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		log:   log.Named("tags"),
		newID: func() string { return ulid.Make().String() },
		now:   func() time.Time { return time.Now().UTC() },
		tags:  make(map[string]*models.Tag),
		ids:   make(map[string]string),
		bound: make(map[string]map[string]models.Taggable),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len returns the number of canonical tags.
func (r *Registry) Len() int { return len(r.tags) }

// Lookup returns the canonical tag whose name matches, ignoring case, or nil.
func (r *Registry) Lookup(name string) *models.Tag {
	id, ok := r.ids[models.FoldTagName(name)]
	if !ok {
		return nil
	}
	return r.tags[id]
}

// IsCanonical reports whether tag is the registry's own instance.
func (r *Registry) IsCanonical(tag *models.Tag) bool {
	return tag != nil && tag.ID != "" && r.tags[tag.ID] == tag
}

// Register makes tag canonical if no tag with its name exists. Otherwise,
// when overrideColor is set, the existing tag takes tag's color.
// Tags with an empty name are ignored.
func (r *Registry) Register(tag *models.Tag, overrideColor bool) RegisterResult {
	if tag == nil || tag.Key() == "" {
		return NoOp
	}

	existing := r.Lookup(tag.Name)
	if existing == nil {
		if tag.ID == "" || r.tags[tag.ID] != nil {
			tag.ID = r.newID()
		}
		if tag.Color == "" {
			tag.Color = models.ColorReset
		}
		if tag.CreatedAt.IsZero() {
			tag.CreatedAt = r.now()
		}
		r.tags[tag.ID] = tag
		r.ids[tag.Key()] = tag.ID
		r.bound[tag.ID] = make(map[string]models.Taggable)
		r.log.Info("created tag", zap.String("tag", tag.Name), zap.String("color", string(tag.Color)))
		return Created
	}

	if overrideColor {
		r.log.Info("overriding tag color",
			zap.String("tag", existing.Name),
			zap.String("from", string(existing.Color)),
			zap.String("to", string(tag.Color)))
		existing.Color = tag.Color
		return ColorOverridden
	}
	return NoOp
}

// RegisterAll registers each tag with color override, in order.
// Each outcome carries the canonical tag for its input.
func (r *Registry) RegisterAll(tags []*models.Tag) []RegisterOutcome {
	out := make([]RegisterOutcome, 0, len(tags))
	for _, t := range tags {
		res := r.Register(t, true)
		var canon *models.Tag
		if t != nil {
			canon = r.Lookup(t.Name)
		}
		out = append(out, RegisterOutcome{Tag: canon, Result: res})
	}
	return out
}

// Bind attaches a canonical tag to e. Binding twice is harmless.
func (r *Registry) Bind(e models.Taggable, tag *models.Tag) error {
	if e == nil {
		return ErrNilEntity
	}
	if !r.IsCanonical(tag) {
		name := "<nil>"
		if tag != nil {
			name = tag.Name
		}
		return fmt.Errorf("bind %q to %s: %w", name, e.EntityKey(), ErrNotCanonical)
	}

	r.bound[tag.ID][e.EntityKey()] = e
	list := e.Tagset()
	if list.Index(tag.ID) < 0 {
		list.Tags = append(list.Tags, tag)
	}
	r.log.Debug("bound tag", zap.String("tag", tag.Name), zap.String("entity", e.EntityKey()))
	return nil
}

// Unbind detaches tag from e. It reports whether anything was removed.
// A provisional tag is resolved to its canonical tag by name.
func (r *Registry) Unbind(e models.Taggable, tag *models.Tag) bool {
	if e == nil || tag == nil {
		return false
	}
	canon := tag
	if !r.IsCanonical(canon) {
		if canon = r.Lookup(tag.Name); canon == nil {
			return false
		}
	}

	removed := false
	if set := r.bound[canon.ID]; set != nil {
		if _, ok := set[e.EntityKey()]; ok {
			delete(set, e.EntityKey())
			removed = true
		}
	}
	if removeFromList(e.Tagset(), canon.ID) {
		removed = true
	}
	if removed {
		r.log.Debug("unbound tag", zap.String("tag", canon.Name), zap.String("entity", e.EntityKey()))
	}
	return removed
}

// IsBound reports whether e carries the canonical tag named name.
func (r *Registry) IsBound(e models.Taggable, name string) bool {
	canon := r.Lookup(name)
	if canon == nil || e == nil {
		return false
	}
	_, ok := r.bound[canon.ID][e.EntityKey()]
	return ok
}

// Toggle removes each requested tag from e if e carries it and adds it
// otherwise, creating missing tags without overriding colors. The outcomes
// follow the input order one to one.
func (r *Registry) Toggle(e models.Taggable, tags []*models.Tag) ([]ToggleOutcome, error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	for _, t := range tags {
		if t == nil || t.Key() == "" {
			return nil, ErrUnnamedTag
		}
	}

	out := make([]ToggleOutcome, 0, len(tags))
	for _, t := range tags {
		if r.IsBound(e, t.Name) {
			canon := r.Lookup(t.Name)
			r.Unbind(e, canon)
			out = append(out, ToggleOutcome{Tag: canon, Action: Removed})
			continue
		}

		r.Register(t, false)
		canon := r.Lookup(t.Name)
		if err := r.Bind(e, canon); err != nil {
			return out, err
		}
		out = append(out, ToggleOutcome{Tag: canon, Action: Added})
	}
	return out, nil
}

// Delete removes the tag named name from every note and event carrying it
// and then from the registry.
func (r *Registry) Delete(name string) DeleteResult {
	canon := r.Lookup(name)
	if canon == nil {
		r.log.Info("tag does not exist, nothing to delete", zap.String("tag", name))
		return NotFound
	}

	for _, e := range r.boundEntities(canon.ID) {
		removeFromList(e.Tagset(), canon.ID)
	}
	delete(r.bound, canon.ID)
	delete(r.tags, canon.ID)
	delete(r.ids, canon.Key())
	r.log.Info("deleted tag", zap.String("tag", canon.Name))
	return Deleted
}

// DeleteAll deletes each named tag, in order, reporting one outcome per name.
func (r *Registry) DeleteAll(names []string) []DeleteOutcome {
	out := make([]DeleteOutcome, 0, len(names))
	for _, name := range names {
		canon := r.Lookup(name)
		res := r.Delete(name)
		out = append(out, DeleteOutcome{Name: name, Tag: canon, Result: res})
	}
	return out
}

// Reconcile replaces the tags on e with canonical ones: every entry is
// resolved by name (created, keeping its color, when absent) and each name
// appears once, in first-seen order. Each entry is visited exactly once.
func (r *Registry) Reconcile(e models.Taggable) error {
	if e == nil {
		return ErrNilEntity
	}
	list := e.Tagset()
	pending := list.Tags
	list.Tags = make([]*models.Tag, 0, len(pending))

	for _, t := range pending {
		if t == nil || t.Key() == "" {
			r.log.Warn("dropping unnamed tag", zap.String("entity", e.EntityKey()))
			continue
		}
		r.log.Debug("matching tag", zap.String("tag", t.Name), zap.String("entity", e.EntityKey()))

		canon := r.Lookup(t.Name)
		if canon == nil {
			r.Register(t, false)
			canon = r.Lookup(t.Name)
		}
		if list.Index(canon.ID) >= 0 {
			continue
		}
		if err := r.Bind(e, canon); err != nil {
			return err
		}
	}

	// Drop index entries for tags that are no longer on the list.
	key := e.EntityKey()
	for id, set := range r.bound {
		if _, ok := set[key]; ok && list.Index(id) < 0 {
			delete(set, key)
		}
	}
	return nil
}

// Forget unbinds every tag from e, typically before e is deleted.
func (r *Registry) Forget(e models.Taggable) {
	if e == nil {
		return
	}
	key := e.EntityKey()
	for _, set := range r.bound {
		delete(set, key)
	}
	e.Tagset().Tags = nil
}

// Tags returns the canonical tags ordered by name.
func (r *Registry) Tags() []*models.Tag {
	out := make([]*models.Tag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() < out[j].Key()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Names returns the canonical tag names ordered by name, or nil when the
// registry is empty.
func (r *Registry) Names() []string {
	if len(r.tags) == 0 {
		return nil
	}
	tags := r.Tags()
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// Entities returns the notes and events carrying the tag named name,
// ordered by entity key.
func (r *Registry) Entities(name string) []models.Taggable {
	canon := r.Lookup(name)
	if canon == nil {
		return nil
	}
	return r.boundEntities(canon.ID)
}

// Verify checks that every entity's tag list and the reverse index agree.
func (r *Registry) Verify() error {
	if len(r.ids) != len(r.tags) {
		return fmt.Errorf("name index has %d entries for %d tags", len(r.ids), len(r.tags))
	}

	entities := make(map[string]models.Taggable)
	for id, set := range r.bound {
		tag, ok := r.tags[id]
		if !ok {
			return fmt.Errorf("index holds unknown tag id %s", id)
		}
		for key, e := range set {
			if e.Tagset().Index(id) < 0 {
				return fmt.Errorf("%s indexed under %q but does not carry it", key, tag.Name)
			}
			entities[key] = e
		}
	}

	for key, e := range entities {
		seen := make(map[string]bool)
		for _, t := range e.Tagset().Tags {
			if !r.IsCanonical(t) {
				return fmt.Errorf("%s carries non-canonical tag %q", key, t.Name)
			}
			if seen[t.ID] {
				return fmt.Errorf("%s carries %q twice", key, t.Name)
			}
			seen[t.ID] = true
			if _, ok := r.bound[t.ID][key]; !ok {
				return fmt.Errorf("%s carries %q but is not indexed under it", key, t.Name)
			}
		}
	}
	return nil
}

func (r *Registry) boundEntities(id string) []models.Taggable {
	set := r.bound[id]
	out := make([]models.Taggable, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityKey() < out[j].EntityKey() })
	return out
}

func removeFromList(list *models.TagList, id string) bool {
	i := list.Index(id)
	if i < 0 {
		return false
	}
	list.Tags = append(list.Tags[:i], list.Tags[i+1:]...)
	return true
}
