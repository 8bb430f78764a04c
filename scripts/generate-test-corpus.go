//go:build ignore

// Command generate-test-corpus produces a synthetic markdown corpus for
// benchmarking ingestion and retrieval.
// Usage: go run scripts/generate-test-corpus.go -notes 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numNotes  = flag.Int("notes", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"distributed consensus", "write-ahead logging", "vector search",
	"garbage collection", "query planning", "cache invalidation",
	"schema migration", "rate limiting", "service discovery",
	"log compaction", "leader election", "backpressure",
}

var tags = []string{
	"go", "databases", "networking", "notes", "reading", "project",
	"architecture", "performance", "meeting", "draft",
}

var people = []string{
	"Ada Lovelace", "Grace Hopper", "Barbara Liskov", "Leslie Lamport",
}

var orgs = []string{
	"Acme Corp", "Initech Inc", "Globex LLC",
}

var sentences = []string{
	"The %s approach trades write amplification for read latency.",
	"We compared %s against the previous design and the delta was small.",
	"%s only matters once the working set no longer fits in memory.",
	"A follow-up on %s is scheduled after the next release.",
	"%s interacts badly with aggressive timeouts, so budget generously.",
	"The literature on %s assumes a crash-stop failure model.",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < *numNotes; i++ {
		name := fmt.Sprintf("note-%04d.md", i)
		path := filepath.Join(*outputDir, name)
		created := base.Add(time.Duration(rng.Intn(500*24)) * time.Hour)
		if err := os.WriteFile(path, []byte(renderNote(rng, i, created)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	fmt.Printf("generated %d notes in %s\n", *numNotes, *outputDir)
}

func renderNote(rng *rand.Rand, i int, created time.Time) string {
	topic := topics[rng.Intn(len(topics))]
	var b strings.Builder

	fmt.Fprintf(&b, "---\ntitle: Notes on %s\ntags: [%s, %s]\ncreated: %s\n---\n\n",
		topic,
		tags[rng.Intn(len(tags))], tags[rng.Intn(len(tags))],
		created.Format("2006-01-02"))
	fmt.Fprintf(&b, "# Notes on %s\n\n", topic)

	sections := 2 + rng.Intn(3)
	for s := 0; s < sections; s++ {
		other := topics[rng.Intn(len(topics))]
		fmt.Fprintf(&b, "## %s\n\n", headingCase(other))
		paras := 1 + rng.Intn(3)
		for p := 0; p < paras; p++ {
			fmt.Fprintf(&b, sentences[rng.Intn(len(sentences))]+" ", other)
			fmt.Fprintf(&b, sentences[rng.Intn(len(sentences))]+"\n\n", topic)
		}
		// Sprinkle entities and wiki links so extraction and linking
		// have something to chew on.
		if rng.Intn(3) == 0 {
			fmt.Fprintf(&b, "%s from %s presented this at the %s review.\n\n",
				people[rng.Intn(len(people))],
				orgs[rng.Intn(len(orgs))],
				created.Format("2006-01-02"))
		}
		if i > 0 && rng.Intn(2) == 0 {
			fmt.Fprintf(&b, "See also [[note-%04d]].\n\n", rng.Intn(i))
		}
	}
	return b.String()
}

func headingCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
