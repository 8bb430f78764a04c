package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// chunkColumns is the scan list shared by chunk queries.
const chunkColumns = `c.id, c.path, c.heading, c.level, c.start_line, c.text,
	c.hash, c.hub, c.authority, c.created_at, c.modified_at`

func scanChunk(scan func(...any) error) (*ChunkRecord, error) {
	var c ChunkRecord
	var created, modified sql.NullString
	err := scan(&c.ID, &c.Path, &c.Heading, &c.Level, &c.StartLine, &c.Text,
		&c.Hash, &c.Hub, &c.Authority, &created, &modified)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = timeFromDB(created)
	c.ModifiedAt = timeFromDB(modified)
	return &c, nil
}

// UpsertChunk inserts or replaces a chunk row. Hub and authority metrics are
// preserved on update.
func (s *Store) UpsertChunk(ctx context.Context, c *ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, path, heading, level, start_line, text, hash, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			heading = excluded.heading,
			level = excluded.level,
			start_line = excluded.start_line,
			text = excluded.text,
			hash = excluded.hash,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at`,
		c.ID, c.Path, c.Heading, c.Level, c.StartLine, c.Text, c.Hash,
		timeToDB(c.CreatedAt), timeToDB(c.ModifiedAt))
	return wrapDB("upsert chunk", err)
}

// GetChunk fetches a single chunk row.
func (s *Store) GetChunk(ctx context.Context, id string) (*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks c WHERE c.id = ?`, id)
	c, err := scanChunk(row.Scan)
	if err != nil {
		return nil, wrapDB("get chunk "+id, err)
	}
	return c, nil
}

// GetChunks fetches multiple chunks, omitting missing ids.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]*ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + chunkColumns + ` FROM chunks c WHERE c.id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, toAny(ids)...)
	if err != nil {
		return nil, wrapDB("get chunks", err)
	}
	defer rows.Close()

	var out []*ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, wrapDB("scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, wrapDB("get chunks", rows.Err())
}

// ChunkIDsForPath returns the ids of all chunks of a file.
func (s *Store) ChunkIDsForPath(ctx context.Context, path string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE path = ? ORDER BY start_line`, path)
	if err != nil {
		return nil, wrapDB("chunk ids for path", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDB("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapDB("chunk ids for path", rows.Err())
}

// DeleteChunksExcept removes chunks of path whose id is not in keep and
// returns the deleted ids. Re-ingestion calls this after upserting the fresh
// chunk set so stale spans disappear; the caller evicts the returned ids from
// the vector index, since the cascade has already dropped their embedding
// rows by the time an orphan scan could see them.
func (s *Store) DeleteChunksExcept(ctx context.Context, path string, keep []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where := ` WHERE path = ?`
	args := []any{path}
	if len(keep) > 0 {
		where += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		args = append(args, toAny(keep)...)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks`+where, args...)
	if err != nil {
		return nil, wrapDB("find stale chunks", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapDB("scan stale chunk", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapDB("find stale chunks", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`+where, args...); err != nil {
		return nil, wrapDB("delete stale chunks", err)
	}
	return ids, nil
}

// ReplaceChunkTags atomically replaces the tag set of a chunk.
func (s *Store) ReplaceChunkTags(ctx context.Context, chunkID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB("begin tag replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_tags WHERE chunk_id = ?`, chunkID); err != nil {
		return wrapDB("delete chunk tags", err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chunk_tags (chunk_id, tag) VALUES (?, ?)`, chunkID, tag); err != nil {
			return wrapDB("insert chunk tag", err)
		}
	}
	return wrapDB("commit tag replace", tx.Commit())
}

// TagsForChunk returns the sorted tag set of a chunk.
func (s *Store) TagsForChunk(ctx context.Context, chunkID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT tag FROM chunk_tags WHERE chunk_id = ? ORDER BY tag`, chunkID)
	if err != nil {
		return nil, wrapDB("tags for chunk", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, wrapDB("scan tag", err)
		}
		tags = append(tags, tag)
	}
	return tags, wrapDB("tags for chunk", rows.Err())
}

// FetchCandidates returns chunk rows matching the filter, up to cap rows.
// Ordering is unspecified at this layer; rerankers sort downstream.
func (s *Store) FetchCandidates(ctx context.Context, filter FilterSpec, dateField DateField, cap int) ([]*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any

	if len(filter.Tags) > 0 {
		in := placeholders(len(filter.Tags))
		if filter.RequireAll {
			conds = append(conds, `c.id IN (
				SELECT chunk_id FROM chunk_tags WHERE tag IN (`+in+`)
				GROUP BY chunk_id HAVING COUNT(DISTINCT tag) = ?)`)
			args = append(args, toAny(filter.Tags)...)
			args = append(args, len(filter.Tags))
		} else {
			conds = append(conds, `c.id IN (
				SELECT chunk_id FROM chunk_tags WHERE tag IN (`+in+`))`)
			args = append(args, toAny(filter.Tags)...)
		}
	}

	col := dateField.column()
	if filter.Since != nil {
		conds = append(conds, col+` >= ?`)
		args = append(args, timeToDB(filter.Since))
	}
	if filter.Until != nil {
		conds = append(conds, col+` < ?`)
		args = append(args, timeToDB(filter.Until))
	}
	if filter.PathPrefix != "" {
		conds = append(conds, `c.path LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(filter.PathPrefix)+"%")
	}

	query := `SELECT ` + chunkColumns + ` FROM chunks c`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	if cap > 0 {
		query += fmt.Sprintf(` LIMIT %d`, cap)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDB("fetch candidates", err)
	}
	defer rows.Close()

	var out []*ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, wrapDB("scan candidate", err)
		}
		out = append(out, c)
	}
	return out, wrapDB("fetch candidates", rows.Err())
}

// FetchFacets aggregates the top 50 tags and a 24-bucket monthly histogram
// over the filtered corpus. Buckets are YYYY-MM, most recent first.
func (s *Store) FetchFacets(ctx context.Context, since, until *time.Time, pathPrefix string) (*Facets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conds := []string{`1=1`}
	var args []any
	col := DateFieldAuto.column()
	if since != nil {
		conds = append(conds, col+` >= ?`)
		args = append(args, timeToDB(since))
	}
	if until != nil {
		conds = append(conds, col+` < ?`)
		args = append(args, timeToDB(until))
	}
	if pathPrefix != "" {
		conds = append(conds, `c.path LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(pathPrefix)+"%")
	}
	where := strings.Join(conds, ` AND `)

	facets := &Facets{TopTags: []TagCount{}, TimeHistogram: []TimeBucket{}}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT t.tag, COUNT(*) AS n
		FROM chunk_tags t JOIN chunks c ON c.id = t.chunk_id
		WHERE `+where+`
		GROUP BY t.tag ORDER BY n DESC, t.tag LIMIT 50`, args...)
	if err != nil {
		return nil, wrapDB("fetch tag facets", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tc TagCount
		if err := tagRows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, wrapDB("scan tag facet", err)
		}
		facets.TopTags = append(facets.TopTags, tc)
	}
	if err := tagRows.Err(); err != nil {
		return nil, wrapDB("fetch tag facets", err)
	}

	histRows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', `+col+`) AS bucket, COUNT(*) AS n
		FROM chunks c
		WHERE `+where+` AND `+col+` IS NOT NULL
		GROUP BY bucket ORDER BY bucket DESC LIMIT 24`, args...)
	if err != nil {
		return nil, wrapDB("fetch time facets", err)
	}
	defer histRows.Close()
	for histRows.Next() {
		var tb TimeBucket
		if err := histRows.Scan(&tb.Bucket, &tb.Count); err != nil {
			return nil, wrapDB("scan time facet", err)
		}
		facets.TimeHistogram = append(facets.TimeHistogram, tb)
	}
	return facets, wrapDB("fetch time facets", histRows.Err())
}

// SetChunkMetrics updates the cached hub and authority counts of a chunk.
func (s *Store) SetChunkMetrics(ctx context.Context, chunkID string, hub, authority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET hub = ?, authority = ? WHERE id = ?`, hub, authority, chunkID)
	return wrapDB("set chunk metrics", err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
