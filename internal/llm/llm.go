package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/notus/internal/models"
)

// maxSuggestions caps how many tags a single suggestion may return.
const maxSuggestions = 5

// Suggestion is one tag proposed for a note.
type Suggestion struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	// Existing is true when the tag already exists in the notebook.
	Existing bool `json:"existing"`
}

// Client wraps the Anthropic API for tag suggestions.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for tag suggestion.
func buildPrompt(note *models.Note, known []string) (system string, user string) {
	system = `You suggest tags for notes in a personal notebook. Return ONLY a JSON array of objects with these fields:
- "name": the tag name, a single lowercase word or hyphenated-words, no spaces, no leading "#"
- "reason": one short sentence explaining why the tag fits

Rules:
- Suggest at most 5 tags, most relevant first
- Prefer tags from the known tags list when they fit; only invent a new tag when none of them does
- Do not suggest tags the note already carries
- If nothing fits, return an empty array []
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if len(known) > 0 {
		sb.WriteString("Known tags: ")
		sb.WriteString(strings.Join(known, ", "))
		sb.WriteString("\n\n")
	}
	if names := note.Names(); len(names) > 0 {
		sb.WriteString("Current tags: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Note title: ")
	sb.WriteString(note.Title)
	sb.WriteString("\n")
	if note.Content != "" {
		sb.WriteString("\nNote content:\n")
		sb.WriteString(note.Content)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// SuggestTags asks the LLM for tags fitting note, given the tags known to
// the notebook.
func (c *Client) SuggestTags(ctx context.Context, note *models.Note, known []string) ([]Suggestion, error) {
	systemPrompt, userPrompt := buildPrompt(note, known)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseSuggestions(text, note, known)
}

// parseSuggestions decodes the model's answer, drops tags the note already
// carries and duplicates, and marks tags that already exist.
func parseSuggestions(text string, note *models.Note, known []string) ([]Suggestion, error) {
	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var raw []Suggestion
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	existing := make(map[string]string, len(known))
	for _, name := range known {
		existing[models.FoldTagName(name)] = name
	}
	seen := make(map[string]bool)

	out := make([]Suggestion, 0, len(raw))
	for _, s := range raw {
		name := strings.TrimPrefix(strings.TrimSpace(s.Name), "#")
		key := models.FoldTagName(name)
		if key == "" || strings.ContainsAny(name, " ,") || seen[key] || note.HasName(name) {
			continue
		}
		seen[key] = true
		s.Name, s.Existing = name, false
		if canon, ok := existing[key]; ok {
			s.Name, s.Existing = canon, true
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out, nil
}
