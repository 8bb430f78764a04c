package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// UpsertFile inserts or replaces the file row keyed by path.
func (s *Store) UpsertFile(ctx context.Context, f *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (path, title, frontmatter, hash, etag, size, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			frontmatter = excluded.frontmatter,
			hash = excluded.hash,
			etag = excluded.etag,
			size = excluded.size,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at`,
		f.Path, f.Title, mustJSON(f.FrontMatter), f.Hash, f.ETag, f.Size,
		timeToDB(f.CreatedAt), timeToDB(f.ModifiedAt))
	return wrapDB("upsert file", err)
}

// GetFile fetches the file row for path.
func (s *Store) GetFile(ctx context.Context, path string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT path, title, frontmatter, hash, etag, size, created_at, modified_at
		FROM files WHERE path = ?`, path)

	var f FileRecord
	var fm string
	var created, modified sql.NullString
	if err := row.Scan(&f.Path, &f.Title, &fm, &f.Hash, &f.ETag, &f.Size, &created, &modified); err != nil {
		return nil, wrapDB("get file "+path, err)
	}
	_ = json.Unmarshal([]byte(fm), &f.FrontMatter)
	f.CreatedAt = timeFromDB(created)
	f.ModifiedAt = timeFromDB(modified)
	return &f, nil
}

// DeleteFile removes a file and, via cascade, its chunks, tags, embeddings
// and mentions.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	return wrapDB("delete file", err)
}

// ListFiles returns all stored file paths with their content hashes.
func (s *Store) ListFiles(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path, hash FROM files`)
	if err != nil {
		return nil, wrapDB("list files", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, wrapDB("scan file row", err)
		}
		out[path] = hash
	}
	return out, wrapDB("list files", rows.Err())
}
