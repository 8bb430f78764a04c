package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/notegraph/notegraph/internal/objstore"
)

// DefaultDebounceWindow coalesces rapid editor write bursts into one
// re-ingestion.
const DefaultDebounceWindow = 500 * time.Millisecond

// Watcher re-ingests markdown files as they change on disk.
type Watcher struct {
	pipeline *Pipeline
	src      objstore.Store
	root     string
	window   time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher creates a watcher over the corpus directory rooted at root.
func NewWatcher(p *Pipeline, src objstore.Store, root string, window time.Duration) *Watcher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Watcher{
		pipeline: p,
		src:      src,
		root:     root,
		window:   window,
		pending:  map[string]struct{}{},
	}
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	// Watch the whole tree; fsnotify is not recursive on its own.
	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	flush := make(chan struct{}, 1)
	slog.Info("watching corpus", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".md") {
				// New directories need their own watch.
				if event.Op&fsnotify.Create != 0 {
					_ = fsw.Add(event.Name)
				}
				continue
			}
			w.enqueue(event.Name, flush)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.String("error", err.Error()))
		case <-flush:
			w.flush(ctx)
		}
	}
}

// enqueue debounces one changed path.
func (w *Watcher) enqueue(path string, flush chan<- struct{}) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	name := filepath.ToSlash(rel)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		select {
		case flush <- struct{}{}:
		default:
		}
	})
}

// flush ingests every pending path.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	for _, name := range names {
		raw, etag, err := w.src.Get(ctx, name)
		if err != nil {
			slog.Warn("changed file fetch failed",
				slog.String("name", name), slog.String("error", err.Error()))
			continue
		}
		res, err := w.pipeline.Ingest(ctx, Input{
			Path:       name,
			Raw:        raw,
			ETag:       etag,
			ModifiedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Error("re-ingestion failed",
				slog.String("name", name), slog.String("error", err.Error()))
			continue
		}
		slog.Info("re-ingested",
			slog.String("name", name),
			slog.Int("chunks", res.Chunks),
			slog.Bool("skipped", res.Skipped))
	}
}
