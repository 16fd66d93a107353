package models

import "time"

// Note is a free-text entry in the notebook.
type Note struct {
	TagList

	ID        string
	Title     string
	Content   string
	Pinned    bool
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityKey implements Taggable.
func (n *Note) EntityKey() string { return "note:" + n.ID }
