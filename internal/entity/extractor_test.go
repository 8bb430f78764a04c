package entity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelsOf(entities []Entity) map[string][]string {
	out := map[string][]string{}
	for _, e := range entities {
		out[e.Label] = append(out[e.Label], e.Text)
	}
	return out
}

func TestExtractLabels(t *testing.T) {
	text := "Ada Lovelace joined Acme Corp in Berlin. Budget: $1,200.50 or about 15.5% " +
		"of revenue. Contact ada@example.com or https://example.com/notes. " +
		"Deployed with Docker and Kubernetes on 2024-03-15."

	e := NewExtractor()
	got := labelsOf(e.Extract(text))

	assert.Contains(t, got[LabelPerson], "Ada Lovelace")
	assert.Contains(t, got[LabelOrganization], "Acme Corp")
	assert.Contains(t, got[LabelMoney], "$1,200.50")
	assert.Contains(t, got[LabelPercent], "15.5%")
	assert.Contains(t, got[LabelEmail], "ada@example.com")
	assert.Contains(t, got[LabelURL], "https://example.com/notes")
	assert.Contains(t, got[LabelTechnology], "Docker")
	assert.Contains(t, got[LabelTechnology], "Kubernetes")
	assert.Contains(t, got[LabelDate], "2024-03-15")
}

func TestExtractUniqueSpans(t *testing.T) {
	e := NewExtractor()
	got := e.Extract("Grace Hopper and Grace Hopper again")

	// Two distinct spans of the same surface text are both kept.
	people := labelsOf(got)[LabelPerson]
	assert.Len(t, people, 2)

	// Spans never repeat.
	seen := map[[2]int]bool{}
	for _, ent := range got {
		span := [2]int{ent.Start, ent.End}
		assert.False(t, seen[span])
		seen[span] = true
		assert.Equal(t, DefaultConfidence, ent.Confidence)
	}
}

func TestExtractOrderedByPosition(t *testing.T) {
	e := NewExtractor()
	got := e.Extract("Python predates Kubernetes. John Smith wrote about both.")
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Start, got[i-1].Start)
	}
}

func TestExtractEmpty(t *testing.T) {
	e := NewExtractor()
	assert.Empty(t, e.Extract(""))
	assert.Empty(t, e.Extract("nothing interesting here"))
}

func TestKeyphrasesFrequencyGate(t *testing.T) {
	e := NewExtractor()

	text := strings.Repeat("neural networks learn quickly. ", 3) + "single phrase once."
	got := e.Keyphrases(text)

	assert.Contains(t, got, "neural networks")
	// Phrases occurring once never qualify.
	assert.NotContains(t, got, "single phrase")
	assert.LessOrEqual(t, len(got), 20)
}

func TestKeyphrasesStopWordFilter(t *testing.T) {
	e := NewExtractor()
	got := e.Keyphrases(strings.Repeat("the model converges. ", 4))

	for _, phrase := range got {
		assert.NotContains(t, strings.Fields(phrase), "the")
	}
	assert.Contains(t, got, "model converges")
}

func TestKeyphrasesMostFrequentFirst(t *testing.T) {
	e := NewExtractor()
	text := strings.Repeat("gradient descent ", 5) + strings.Repeat("learning rate ", 2)
	got := e.Keyphrases(text)

	require.NotEmpty(t, got)
	assert.Equal(t, "gradient descent", got[0])
}
