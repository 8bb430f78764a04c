// Package ui renders engine output for the terminal. Output auto-degrades to
// plain text when stdout is not a TTY.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/notegraph/notegraph/internal/ingest"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/workflow"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer renders results to a writer.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a printer. Colors are disabled when noColor is set.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, styles: GetStyles(noColor)}
}

// AutoPrinter creates a printer on stdout, with colors only on a TTY.
func AutoPrinter() *Printer {
	return NewPrinter(os.Stdout, !IsTerminal(os.Stdout))
}

func (p *Printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// SearchResults renders a retrieval response.
func (p *Printer) SearchResults(resp *search.Response) {
	s := p.styles
	p.printf("%s\n", s.Header.Render(fmt.Sprintf("%d results for %q", len(resp.Results), resp.Query)))
	p.printf("%s\n\n", s.Label.Render(fmt.Sprintf("strategy: %s (%s), candidates: %d",
		resp.Strategy, resp.Class, resp.TotalCandidates)))

	for i, r := range resp.Results {
		location := r.Path
		if r.Heading != "" {
			location += "#" + r.Heading
		}
		p.printf("%2d. %s  %s\n", i+1,
			s.Path.Render(location),
			s.Score.Render(fmt.Sprintf("%.3f", r.Score)))
		if r.Snippet != "" {
			p.printf("    %s\n", s.Dim.Render(r.Snippet))
		}
	}
	if len(resp.Results) == 0 {
		p.printf("%s\n", s.Dim.Render("no matches"))
	}
}

// Answer renders a synthesized answer with its citations.
func (p *Printer) Answer(out *synthesis.Output) {
	s := p.styles
	p.printf("%s\n\n", out.Content)
	if len(out.Sources) > 0 {
		p.printf("%s\n", s.Label.Render("sources:"))
		for i, src := range out.Sources {
			if i == synthesis.AnswerSourceCount {
				break
			}
			p.printf("  %s\n", s.Path.Render(src.Ref()))
		}
	}
	p.printf("%s\n", s.Dim.Render(fmt.Sprintf("confidence: %.2f", out.Confidence)))
}

// Facets renders tag counts and the monthly histogram.
func (p *Printer) Facets(f *store.Facets) {
	s := p.styles
	p.printf("%s\n", s.Header.Render("Top tags"))
	if len(f.TopTags) == 0 {
		p.printf("%s\n", s.Dim.Render("  none"))
	}
	for _, tc := range f.TopTags {
		p.printf("  %-20s %d\n", s.Path.Render(tc.Tag), tc.Count)
	}

	p.printf("\n%s\n", s.Header.Render("Chunks by month"))
	if len(f.TimeHistogram) == 0 {
		p.printf("%s\n", s.Dim.Render("  none"))
	}
	for _, tb := range f.TimeHistogram {
		p.printf("  %s %s %d\n", s.Label.Render(tb.Bucket),
			s.Score.Render(strings.Repeat("▪", min(tb.Count, 40))), tb.Count)
	}
}

// PendingLinks renders link proposals awaiting review.
func (p *Printer) PendingLinks(links []*store.PendingLinkRecord) {
	s := p.styles
	if len(links) == 0 {
		p.printf("%s\n", s.Dim.Render("no pending links"))
		return
	}
	for _, l := range links {
		p.printf("%s  %s -> %s  %s %.2f\n",
			s.Path.Render(l.ID), l.SourceID, l.TargetID,
			s.Heading.Render(l.Relationship), l.Strength)
		p.printf("  %s\n", s.Dim.Render(l.Rationale))
	}
}

// IngestBatch renders a batch ingestion summary.
func (p *Printer) IngestBatch(batch *ingest.BatchResult, results []*ingest.Result) {
	s := p.styles
	for _, r := range results {
		switch {
		case r.Skipped:
			p.printf("%s %s\n", s.Dim.Render("skip"), r.Path)
		default:
			p.printf("%s %s %s\n", s.Success.Render("ok  "), r.Path,
				s.Label.Render(fmt.Sprintf("(%d chunks, %d entities)", r.Chunks, r.Entities)))
		}
	}
	p.printf("\n%s\n", s.Header.Render(fmt.Sprintf(
		"%d ingested, %d skipped, %d failed", batch.Successful, batch.Skipped, batch.Failed)))
	for _, e := range batch.Errors {
		p.printf("%s %s\n", s.Error.Render("error:"), e)
	}
}

// WorkflowStatus renders one workflow's progress report.
func (p *Printer) WorkflowStatus(st *workflow.Status) {
	s := p.styles
	p.printf("%s  %s  %.0f%%\n",
		s.Path.Render(st.Name), p.statusStyle(st.Status).Render(st.Status), st.Progress)
	for _, step := range st.Steps {
		line := fmt.Sprintf("  %-20s %s", step.Name, p.statusStyle(step.Status).Render(step.Status))
		p.printf("%s\n", line)
		if step.Error != "" {
			p.printf("    %s\n", s.Error.Render(step.Error))
		}
	}
}

func (p *Printer) statusStyle(status string) lipgloss.Style {
	switch status {
	case workflow.StatusCompleted:
		return p.styles.Success
	case workflow.StatusFailed:
		return p.styles.Error
	case workflow.StatusRunning:
		return p.styles.Heading
	default:
		return p.styles.Dim
	}
}

// Error renders an error line.
func (p *Printer) Error(err error) {
	p.printf("%s %s\n", p.styles.Error.Render("error:"), err.Error())
}
