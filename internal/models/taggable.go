package models

// Taggable is any note or event whose tags are managed by a tag registry.
type Taggable interface {
	// EntityKey identifies the entity across notes and events, e.g. "note:<id>".
	EntityKey() string
	// Tagset returns the entity's mutable, ordered tag references.
	Tagset() *TagList
}

// TagList is the ordered sequence of tag references held by a note or event.
type TagList struct {
	Tags []*Tag
}

// Tagset lets types embedding a TagList satisfy Taggable.
func (l *TagList) Tagset() *TagList { return l }

// Names returns the tag names in list order.
func (l *TagList) Names() []string {
	names := make([]string, len(l.Tags))
	for i, t := range l.Tags {
		names[i] = t.Name
	}
	return names
}

// Index returns the position of the tag with the given id, or -1.
func (l *TagList) Index(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range l.Tags {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// HasName reports whether a tag with the given name (case-insensitive) is present.
func (l *TagList) HasName(name string) bool {
	key := FoldTagName(name)
	for _, t := range l.Tags {
		if t.Key() == key {
			return true
		}
	}
	return false
}
