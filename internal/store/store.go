// Package store persists files, chunks, tags, embeddings, entities, the
// semantic link graph, and workflow state in a single SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

// Store is the primary index plus the workflow namespace.
// A single writer connection is enforced at the pool level; cross-process
// exclusion uses a sidecar lock file.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	lock   *flock.Flock
	closed bool
}

// Open opens (or creates) the index database at path.
// An empty path opens an in-memory database for testing.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	var lk *flock.Flock
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ngerrors.Wrap(ngerrors.KindDependency, "create index directory", err)
		}

		lk = flock.New(path + ".lock")
		locked, err := lk.TryLock()
		if err != nil {
			return nil, ngerrors.Wrap(ngerrors.KindDependency, "acquire index lock", err)
		}
		if !locked {
			return nil, ngerrors.Newf(ngerrors.KindConflict, "index %s is locked by another process", path)
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, ngerrors.Wrap(ngerrors.KindDependency, "open database", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite, DSN params
	// may be ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lk != nil {
				_ = lk.Unlock()
			}
			return nil, ngerrors.Wrap(ngerrors.KindDependency, "set pragma", err)
		}
	}

	s := &Store{db: db, path: path, lock: lk}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, ngerrors.Wrap(ngerrors.KindDependency, "initialize schema", err)
	}

	slog.Debug("store opened", slog.String("path", path))
	return s, nil
}

// Close closes the database and releases the cross-process lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path        TEXT PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		frontmatter TEXT NOT NULL DEFAULT '{}',
		hash        TEXT NOT NULL,
		etag        TEXT NOT NULL DEFAULT '',
		size        INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT,
		modified_at TEXT
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		path        TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		heading     TEXT NOT NULL DEFAULT '',
		level       INTEGER NOT NULL DEFAULT 0,
		start_line  INTEGER NOT NULL,
		text        TEXT NOT NULL,
		hash        TEXT NOT NULL DEFAULT '',
		hub         INTEGER NOT NULL DEFAULT 0,
		authority   INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT,
		modified_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

	CREATE TABLE IF NOT EXISTS chunk_tags (
		chunk_id TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		tag      TEXT NOT NULL,
		PRIMARY KEY (chunk_id, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_tags_tag ON chunk_tags(tag);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id   TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		vector     BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS entities (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		text        TEXT NOT NULL,
		label       TEXT NOT NULL,
		confidence  REAL NOT NULL DEFAULT 0.8,
		description TEXT NOT NULL DEFAULT '',
		UNIQUE (text, label)
	);

	CREATE TABLE IF NOT EXISTS mentions (
		chunk_id   TEXT NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		entity_id  INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		start_pos  INTEGER NOT NULL,
		end_pos    INTEGER NOT NULL,
		confidence REAL NOT NULL DEFAULT 0.8,
		PRIMARY KEY (chunk_id, entity_id, start_pos, end_pos)
	);
	CREATE INDEX IF NOT EXISTS idx_mentions_entity ON mentions(entity_id);

	CREATE TABLE IF NOT EXISTS semantic_links (
		source_id    TEXT NOT NULL,
		target_id    TEXT NOT NULL,
		relationship TEXT NOT NULL,
		strength     REAL NOT NULL,
		rationale    TEXT NOT NULL DEFAULT '',
		provenance   TEXT NOT NULL DEFAULT 'AUTO',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		PRIMARY KEY (source_id, target_id, relationship)
	);
	CREATE INDEX IF NOT EXISTS idx_links_source ON semantic_links(source_id);
	CREATE INDEX IF NOT EXISTS idx_links_target ON semantic_links(target_id);

	CREATE TABLE IF NOT EXISTS pending_links (
		id           TEXT PRIMARY KEY,
		source_id    TEXT NOT NULL,
		target_id    TEXT NOT NULL,
		relationship TEXT NOT NULL,
		strength     REAL NOT NULL,
		rationale    TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   TEXT NOT NULL,
		decided_at   TEXT
	);

	CREATE TABLE IF NOT EXISTS workflows (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'pending',
		created_by   TEXT NOT NULL DEFAULT '',
		current_step TEXT NOT NULL DEFAULT '',
		context      TEXT NOT NULL DEFAULT '{}',
		created_at   TEXT NOT NULL,
		started_at   TEXT,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS workflow_steps (
		id               TEXT NOT NULL,
		workflow_id      TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		action           TEXT NOT NULL,
		params           TEXT NOT NULL DEFAULT '{}',
		deps             TEXT NOT NULL DEFAULT '[]',
		timeout_secs     REAL NOT NULL DEFAULT 60,
		retry_count      INTEGER NOT NULL DEFAULT 0,
		retry_delay_secs REAL NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'pending',
		result           TEXT NOT NULL DEFAULT '{}',
		error            TEXT NOT NULL DEFAULT '',
		started_at       TEXT,
		completed_at     TEXT,
		PRIMARY KEY (workflow_id, id)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// timeToDB converts an optional UTC instant to its stored representation.
// Second precision keeps the column lexicographically ordered, which the
// candidate window comparisons rely on.
func timeToDB(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// timeFromDB parses a stored instant, nil for NULL.
func timeFromDB(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func mustJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// wrapDB converts a bare database error into a structured one.
func wrapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ngerrors.New(ngerrors.KindNotFound, op)
	}
	return ngerrors.Wrap(ngerrors.KindDependency, fmt.Sprintf("database: %s", op), err)
}
