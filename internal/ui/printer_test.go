package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notegraph/notegraph/internal/ingest"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/workflow"
)

func plainPrinter() (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewPrinter(&buf, true), &buf
}

func TestSearchResultsPlain(t *testing.T) {
	p, buf := plainPrinter()
	p.SearchResults(&search.Response{
		Query:           "raft leader",
		Class:           "lookup",
		Strategy:        "hybrid",
		TotalCandidates: 3,
		Results: []search.Result{
			{Path: "raft.md", Heading: "Election", Score: 0.91, Snippet: "Raft elects a leader."},
		},
		GeneratedAt: time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, `1 results for "raft leader"`)
	assert.Contains(t, out, "raft.md#Election")
	assert.Contains(t, out, "0.910")
	assert.Contains(t, out, "Raft elects a leader.")
}

func TestSearchResultsEmpty(t *testing.T) {
	p, buf := plainPrinter()
	p.SearchResults(&search.Response{Query: "x", Results: []search.Result{}})
	assert.Contains(t, buf.String(), "no matches")
}

func TestAnswerShowsCitations(t *testing.T) {
	p, buf := plainPrinter()
	p.Answer(&synthesis.Output{
		Content:    "- The collector runs concurrently.",
		Confidence: 0.72,
		Sources: []synthesis.Source{
			{ChunkID: "c1", Path: "gc.md", Heading: "Collector", Score: 0.9},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "The collector runs concurrently.")
	assert.Contains(t, out, "gc.md#Collector")
	assert.Contains(t, out, "confidence: 0.72")
}

func TestFacetsRendering(t *testing.T) {
	p, buf := plainPrinter()
	p.Facets(&store.Facets{
		TopTags:       []store.TagCount{{Tag: "go", Count: 4}},
		TimeHistogram: []store.TimeBucket{{Bucket: "2026-08", Count: 2}},
	})

	out := buf.String()
	assert.Contains(t, out, "go")
	assert.Contains(t, out, "2026-08")
}

func TestIngestBatchSummary(t *testing.T) {
	p, buf := plainPrinter()
	p.IngestBatch(
		&ingest.BatchResult{Successful: 1, Skipped: 1, Failed: 1, Errors: []string{"bad.md: parse error"}},
		[]*ingest.Result{
			{Path: "a.md", Chunks: 2, Entities: 3},
			{Path: "b.md", Skipped: true},
		})

	out := buf.String()
	assert.Contains(t, out, "ok   a.md")
	assert.Contains(t, out, "skip b.md")
	assert.Contains(t, out, "1 ingested, 1 skipped, 1 failed")
	assert.Contains(t, out, "bad.md: parse error")
}

func TestWorkflowStatusRendering(t *testing.T) {
	p, buf := plainPrinter()
	p.WorkflowStatus(&workflow.Status{
		Name:     "nightly",
		Status:   workflow.StatusFailed,
		Progress: 50,
		Steps: []workflow.StepStatus{
			{Name: "ingest", Status: workflow.StepCompleted},
			{Name: "link", Status: workflow.StepFailed, Error: "agent down"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "agent down")
}

func TestErrorRendering(t *testing.T) {
	p, buf := plainPrinter()
	p.Error(errors.New("boom"))
	assert.Contains(t, buf.String(), "error: boom")
}
