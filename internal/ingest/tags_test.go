package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" #AI, Machine Learning; ml ", "AI"})
	assert.Equal(t, []string{"ai", "machine-learning", "ml"}, got)
}

func TestNormalizeTagsIdempotent(t *testing.T) {
	once := NormalizeTags([]string{"#Deep Learning, NLP; nlp"})
	twice := NormalizeTags(once)
	assert.Equal(t, once, twice)

	for _, tag := range once {
		assert.Equal(t, tag, NormalizeTags([]string{tag})[0])
	}
}

func TestNormalizeTagsDropsEmpties(t *testing.T) {
	assert.Empty(t, NormalizeTags([]string{"", " , ; ", "#"}))
	assert.Empty(t, NormalizeTags(nil))
}

func TestTagsFromFrontMatter(t *testing.T) {
	list := TagsFromFrontMatter(map[string]any{"tags": []any{"AI", "ml"}})
	assert.Equal(t, []string{"ai", "ml"}, list)

	str := TagsFromFrontMatter(map[string]any{"tags": "AI, ml"})
	assert.Equal(t, []string{"ai", "ml"}, str)

	single := TagsFromFrontMatter(map[string]any{"tag": "Projects"})
	assert.Equal(t, []string{"projects"}, single)

	assert.Empty(t, TagsFromFrontMatter(map[string]any{}))
}
