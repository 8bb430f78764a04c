package markdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithFrontMatter(t *testing.T) {
	raw := []byte(`---
title: Test Note
tags: [AI, ml]
date: 2024-03-15
---
# Intro
A test.
`)
	doc, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "Test Note", doc.Title)
	assert.Equal(t, "# Intro\nA test.\n", doc.Body)
	require.NotNil(t, doc.CreatedAt)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *doc.CreatedAt)

	tags, ok := doc.FrontMatter["tags"].([]any)
	require.True(t, ok)
	assert.Len(t, tags, 2)
}

func TestParseWithoutFrontMatter(t *testing.T) {
	doc, err := Parse([]byte("# Only Body\ntext\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.FrontMatter)
	assert.Equal(t, "# Only Body\ntext\n", doc.Body)
	assert.Nil(t, doc.CreatedAt)
}

func TestParseUnclosedFence(t *testing.T) {
	raw := []byte("---\ntitle: broken\nbody without closing fence\n")
	doc, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), doc.Body)
}

func TestParseMalformedYAML(t *testing.T) {
	raw := []byte("---\ntitle: [unclosed\n---\nbody\n")
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestCreatedAtKeyPrecedence(t *testing.T) {
	raw := []byte(`---
created: 2023-07-01
created_at: 2020-01-01
---
body
`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	// "date" absent, "created" wins over "created_at".
	require.NotNil(t, doc.CreatedAt)
	assert.Equal(t, 2023, doc.CreatedAt.Year())
}

func TestParseDatePadding(t *testing.T) {
	cases := map[string]time.Time{
		"2024":       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2024-06":    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		"2024-06-09": time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseDate("not a date")
	assert.False(t, ok)
}

func TestParseDateNormalizesToUTC(t *testing.T) {
	got, ok := ParseDate("2024-06-09T12:00:00+02:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 9, 10, 0, 0, 0, time.UTC), got)
}
