// Package entity extracts entities and keyphrases from chunk bodies using
// regex patterns. No ML, fully deterministic.
package entity

import (
	"regexp"
	"sort"
	"strings"
)

// Entity labels.
const (
	LabelPerson       = "person"
	LabelOrganization = "organization"
	LabelPlace        = "place"
	LabelTechnology   = "technology"
	LabelDate         = "date"
	LabelMoney        = "money"
	LabelPercent      = "percent"
	LabelEmail        = "email"
	LabelURL          = "url"
)

// DefaultConfidence is assigned to every pattern match.
const DefaultConfidence = 0.8

// maxKeyphrases caps the keyphrase list per chunk.
const maxKeyphrases = 20

// Entity is one detected mention, unique by (Text, Start, End).
type Entity struct {
	Text       string
	Label      string
	Start      int
	End        int
	Confidence float64
}

// labelPattern binds a label to one of its regexes.
type labelPattern struct {
	label string
	re    *regexp.Regexp
}

// patterns is the fixed extraction table. Capitalization carries the signal
// for names and places, so those patterns stay case-sensitive. Specific
// labels come before the generic person shape so a span like "Acme Corp" is
// an organization, not a person.
var patterns = []labelPattern{
	{LabelOrganization, regexp.MustCompile(`\b[A-Z][a-z]+ (?:Inc|Corp|LLC|Ltd|Company|Corporation)\b`)},
	{LabelOrganization, regexp.MustCompile(`\b[A-Z][a-z]+ (?:University|College|Institute|School)\b`)},
	{LabelOrganization, regexp.MustCompile(`\b[A-Z][a-z]+ (?:Hospital|Medical|Center|Clinic)\b`)},

	{LabelPlace, regexp.MustCompile(`\b[A-Z][a-z]+ (?:City|State|Country|Nation)\b`)},
	{LabelPlace, regexp.MustCompile(`\b(?:United States|USA|UK|Canada|Germany|France|Japan|China)\b`)},

	{LabelPerson, regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z]\. [A-Z][a-z]+\b`)},
	{LabelPerson, regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)},

	{LabelTechnology, regexp.MustCompile(`(?i)\b(?:Python|Java|JavaScript|Go|Rust|React|Vue|Angular|Node\.js|Django|Flask)\b`)},
	{LabelTechnology, regexp.MustCompile(`(?i)\b(?:Machine Learning|AI|Artificial Intelligence|Deep Learning|Neural Networks?)\b`)},
	{LabelTechnology, regexp.MustCompile(`(?i)\b(?:Cloud Computing|AWS|Azure|Google Cloud|Docker|Kubernetes)\b`)},

	{LabelDate, regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December) \d{1,2},? \d{4}\b`)},
	{LabelDate, regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)},
	{LabelDate, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},

	{LabelMoney, regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{2})?\b`)},
	{LabelMoney, regexp.MustCompile(`(?i)\b\d+(?:,\d{3})*(?:\.\d{2})? ?(?:dollars?|USD|euros?|EUR)\b`)},

	{LabelPercent, regexp.MustCompile(`\b\d+(?:\.\d+)?%`)},

	{LabelEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},

	{LabelURL, regexp.MustCompile(`https?://\S+`)},
	{LabelURL, regexp.MustCompile(`\bwww\.\S+`)},
}

// wordRegex tokenizes text for keyphrase extraction.
var wordRegex = regexp.MustCompile(`\b[a-zA-Z]+\b`)

// keyphraseStopWords filter out phrases containing any of these words.
var keyphraseStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "up": true, "about": true,
	"into": true, "through": true, "during": true, "before": true,
	"after": true, "above": true, "below": true, "between": true,
	"among": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "me": true,
	"him": true, "her": true, "us": true, "them": true,
}

// Extractor runs the fixed pattern table over chunk bodies.
type Extractor struct{}

// NewExtractor creates a pattern-based extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns all entities detected in text, unique by
// (text, start, end). First matching label wins for overlapping spans of the
// same text.
func (e *Extractor) Extract(text string) []Entity {
	seen := map[[2]int]bool{}
	var out []Entity

	for _, lp := range patterns {
		for _, loc := range lp.re.FindAllStringIndex(text, -1) {
			span := [2]int{loc[0], loc[1]}
			if seen[span] {
				continue
			}
			seen[span] = true
			out = append(out, Entity{
				Text:       text[loc[0]:loc[1]],
				Label:      lp.label,
				Start:      loc[0],
				End:        loc[1],
				Confidence: DefaultConfidence,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// Keyphrases returns the top recurring bigrams and trigrams of text,
// lowercase, stop-word filtered, most frequent first. Only phrases appearing
// more than once qualify.
func (e *Extractor) Keyphrases(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)

	counts := map[string]int{}
	var order []string
	for n := 2; n <= 3; n++ {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Join(words[i:i+n], " ")
			if isStopPhrase(words[i : i+n]) {
				continue
			}
			if counts[phrase] == 0 {
				order = append(order, phrase)
			}
			counts[phrase]++
		}
	}

	// Sort by frequency, first occurrence breaks ties for determinism.
	firstSeen := make(map[string]int, len(order))
	for i, p := range order {
		firstSeen[p] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})

	var out []string
	for _, phrase := range order {
		if counts[phrase] > 1 {
			out = append(out, phrase)
		}
		if len(out) == maxKeyphrases {
			break
		}
	}
	return out
}

func isStopPhrase(words []string) bool {
	for _, w := range words {
		if keyphraseStopWords[w] {
			return true
		}
	}
	return false
}
