package models

import (
	"strings"
	"time"
	"unicode"
)

// Color is the display color of a tag.
type Color string

const (
	ColorWhite  Color = "white"
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
	ColorPurple Color = "purple"
	ColorCyan   Color = "cyan"
	// ColorReset is used for any unrecognized color name.
	ColorReset Color = "reset"
)

// Colors lists the recognized tag colors in display order.
var Colors = []Color{ColorWhite, ColorRed, ColorGreen, ColorYellow, ColorBlue, ColorPurple, ColorCyan}

// ParseColor maps a color name to a Color, case-insensitively.
// Unknown or empty names yield ColorReset.
func ParseColor(name string) Color {
	c := Color(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Colors {
		if c == known {
			return c
		}
	}
	return ColorReset
}

// Tag is a colored label that can be applied to notes and events.
// A Tag without an ID is provisional until a registry makes it canonical.
type Tag struct {
	ID        string
	Name      string
	Color     Color
	CreatedAt time.Time
}

// NewTag returns a provisional tag with the color parsed from colorName.
func NewTag(name, colorName string) *Tag {
	return &Tag{Name: strings.TrimSpace(name), Color: ParseColor(colorName)}
}

// Key returns the case-folded name that identifies a tag.
func (t *Tag) Key() string {
	return FoldTagName(t.Name)
}

// String renders the tag the way it is listed, e.g. "[work]".
func (t *Tag) String() string {
	return "[" + t.Name + "]"
}

// FoldTagName normalizes a tag name for case-insensitive comparison.
func FoldTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ParseTags splits a comma or whitespace separated list of tag names into
// provisional tags of the given color. Empty names are dropped.
func ParseTags(list, colorName string) []*Tag {
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	tags := make([]*Tag, 0, len(fields))
	for _, f := range fields {
		tags = append(tags, NewTag(f, colorName))
	}
	return tags
}
