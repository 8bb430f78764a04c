// Package markdown parses UTF-8 markdown documents with YAML front-matter.
package markdown

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

const frontMatterFence = "---"

// Document is a parsed markdown document.
type Document struct {
	// FrontMatter holds the raw YAML front-matter keys.
	FrontMatter map[string]any
	// Body is the markdown body after the front-matter block.
	Body string
	// Title is the front-matter title, empty if absent.
	Title string
	// CreatedAt is the front-matter date (date/created/created_at),
	// normalized to UTC. Nil when no parseable date is present.
	CreatedAt *time.Time
}

// Parse splits raw markdown into front-matter and body.
// A document without a front-matter block yields an empty map and the full
// body. Malformed YAML inside the fences is an InvalidInput error.
func Parse(raw []byte) (*Document, error) {
	content := string(raw)
	doc := &Document{FrontMatter: map[string]any{}, Body: content}

	rest, ok := strings.CutPrefix(content, frontMatterFence+"\n")
	if !ok {
		doc.Title = titleFrom(doc.FrontMatter)
		return doc, nil
	}

	end := strings.Index(rest, "\n"+frontMatterFence)
	if end < 0 {
		// Opening fence without a closing one: treat the whole file as body.
		return doc, nil
	}

	fmBlock := rest[:end]
	body := rest[end+len("\n"+frontMatterFence):]
	body = strings.TrimPrefix(body, "\n")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
		return nil, ngerrors.Wrap(ngerrors.KindInvalidInput, "parse front-matter YAML", err)
	}
	if fm == nil {
		fm = map[string]any{}
	}

	doc.FrontMatter = fm
	doc.Body = body
	doc.Title = titleFrom(fm)
	doc.CreatedAt = createdFrom(fm)
	return doc, nil
}

// titleFrom extracts a string title from front-matter.
func titleFrom(fm map[string]any) string {
	if v, ok := fm["title"]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// createdFrom reads date/created/created_at, first parseable value wins.
func createdFrom(fm map[string]any) *time.Time {
	for _, key := range []string{"date", "created", "created_at"} {
		v, ok := fm[key]
		if !ok {
			continue
		}
		if t, ok := parseDateValue(v); ok {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// dateLayouts are tried in order for permissive date parsing.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// parseDateValue converts a front-matter value into a time.
// yaml.v3 already decodes ISO timestamps into time.Time; strings are parsed
// permissively against dateLayouts.
func parseDateValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return ParseDate(t)
	}
	return time.Time{}, false
}

// ParseDate parses a date string permissively, normalizing to UTC.
// Missing parts pad to the first instant of the year/month/day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
