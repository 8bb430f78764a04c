package ingest

import (
	"sort"
	"strings"
)

// NormalizeTags converts raw tag strings into the canonical tag set:
// lower-case, trimmed, leading '#' stripped, spaces hyphen-joined, split on
// ',' and ';', deduplicated and sorted. Normalization is idempotent.
func NormalizeTags(raw []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range raw {
		for _, part := range strings.FieldsFunc(r, func(c rune) bool {
			return c == ',' || c == ';'
		}) {
			tag := strings.TrimSpace(strings.ToLower(part))
			tag = strings.TrimPrefix(tag, "#")
			tag = strings.Join(strings.Fields(tag), "-")
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// TagsFromFrontMatter reads the tags or tag key, accepting either a string
// or a list, and normalizes the result.
func TagsFromFrontMatter(fm map[string]any) []string {
	var raw []string
	for _, key := range []string{"tags", "tag"} {
		v, ok := fm[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			raw = append(raw, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					raw = append(raw, s)
				}
			}
		case []string:
			raw = append(raw, t...)
		}
	}
	return NormalizeTags(raw)
}
