package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertEdge inserts a semantic link or upgrades an existing row when the new
// strength is higher. Weaker duplicates leave the stored row alone.
// Returns (created, upgraded).
func (s *Store) UpsertEdge(ctx context.Context, e *EdgeRecord) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing float64
	err := s.db.QueryRowContext(ctx, `
		SELECT strength FROM semantic_links
		WHERE source_id = ? AND target_id = ? AND relationship = ?`,
		e.SourceID, e.TargetID, e.Relationship).Scan(&existing)

	now := time.Now().UTC().Format(time.RFC3339)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO semantic_links
				(source_id, target_id, relationship, strength, rationale, provenance, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.SourceID, e.TargetID, e.Relationship, e.Strength, e.Rationale, e.Provenance, now, now)
		if err != nil {
			return false, false, wrapDB("insert edge", err)
		}
		return true, false, nil
	case err != nil:
		return false, false, wrapDB("check edge", err)
	case e.Strength > existing:
		_, err = s.db.ExecContext(ctx, `
			UPDATE semantic_links
			SET strength = ?, rationale = ?, provenance = ?, updated_at = ?
			WHERE source_id = ? AND target_id = ? AND relationship = ?`,
			e.Strength, e.Rationale, e.Provenance, now,
			e.SourceID, e.TargetID, e.Relationship)
		if err != nil {
			return false, false, wrapDB("upgrade edge", err)
		}
		return false, true, nil
	default:
		return false, false, nil
	}
}

// EdgesFrom returns all outgoing edges of a chunk, strongest first.
func (s *Store) EdgesFrom(ctx context.Context, sourceID string) ([]*EdgeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relationship, strength, rationale, provenance, created_at, updated_at
		FROM semantic_links WHERE source_id = ? ORDER BY strength DESC`, sourceID)
	if err != nil {
		return nil, wrapDB("edges from", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]*EdgeRecord, error) {
	var out []*EdgeRecord
	for rows.Next() {
		var e EdgeRecord
		var created, updated string
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Relationship, &e.Strength,
			&e.Rationale, &e.Provenance, &created, &updated); err != nil {
			return nil, wrapDB("scan edge", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, &e)
	}
	return out, wrapDB("scan edges", rows.Err())
}

// RefreshMetrics recomputes and caches hub (outgoing) and authority
// (incoming) counts for the given chunks.
func (s *Store) RefreshMetrics(ctx context.Context, chunkIDs ...string) error {
	for _, id := range chunkIDs {
		s.mu.Lock()
		_, err := s.db.ExecContext(ctx, `
			UPDATE chunks SET
				hub = (SELECT COUNT(*) FROM semantic_links WHERE source_id = ?),
				authority = (SELECT COUNT(*) FROM semantic_links WHERE target_id = ?)
			WHERE id = ?`, id, id, id)
		s.mu.Unlock()
		if err != nil {
			return wrapDB("refresh metrics", err)
		}
	}
	return nil
}

// MaxHub returns the largest cached hub count, used to normalize hub scores.
func (s *Store) MaxHub(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(hub) FROM chunks`).Scan(&m); err != nil {
		return 0, wrapDB("max hub", err)
	}
	return int(m.Int64), nil
}

// CreatePendingLink records an edge proposal awaiting approval.
func (s *Store) CreatePendingLink(ctx context.Context, p *PendingLinkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_links (id, source_id, target_id, relationship, strength, rationale, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		p.ID, p.SourceID, p.TargetID, p.Relationship, p.Strength, p.Rationale,
		PendingStatusPending, time.Now().UTC().Format(time.RFC3339))
	return wrapDB("create pending link", err)
}

// GetPendingLink fetches one pending link row by id.
func (s *Store) GetPendingLink(ctx context.Context, id string) (*PendingLinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, target_id, relationship, strength, rationale, status, created_at, decided_at
		FROM pending_links WHERE id = ?`, id)
	return scanPendingLink(row.Scan)
}

// ListPendingLinks returns pending links with the given status, newest first.
// An empty status lists all rows.
func (s *Store) ListPendingLinks(ctx context.Context, status string) ([]*PendingLinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, source_id, target_id, relationship, strength, rationale, status, created_at, decided_at
		FROM pending_links`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDB("list pending links", err)
	}
	defer rows.Close()

	var out []*PendingLinkRecord
	for rows.Next() {
		p, err := scanPendingLink(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapDB("list pending links", rows.Err())
}

func scanPendingLink(scan func(...any) error) (*PendingLinkRecord, error) {
	var p PendingLinkRecord
	var created string
	var decided sql.NullString
	err := scan(&p.ID, &p.SourceID, &p.TargetID, &p.Relationship, &p.Strength,
		&p.Rationale, &p.Status, &created, &decided)
	if err != nil {
		return nil, wrapDB("scan pending link", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	p.DecidedAt = timeFromDB(decided)
	return &p, nil
}

// SetPendingLinkStatus records an approval or rejection decision.
// The row is retained either way.
func (s *Store) SetPendingLinkStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_links SET status = ?, decided_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return wrapDB("set pending link status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrapDB("pending link "+id, sql.ErrNoRows)
	}
	return nil
}

// LinkStatistics summarizes the link graph.
type LinkStatistics struct {
	TotalEdges     int            `json:"total_edges"`
	ByRelationship map[string]int `json:"by_relationship"`
	PendingCount   int            `json:"pending_count"`
}

// Statistics aggregates edge and pending-link counts.
func (s *Store) Statistics(ctx context.Context) (*LinkStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &LinkStatistics{ByRelationship: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT relationship, COUNT(*) FROM semantic_links GROUP BY relationship`)
	if err != nil {
		return nil, wrapDB("link statistics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rel string
		var n int
		if err := rows.Scan(&rel, &n); err != nil {
			return nil, wrapDB("scan link statistic", err)
		}
		stats.ByRelationship[rel] = n
		stats.TotalEdges += n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB("link statistics", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_links WHERE status = ?`, PendingStatusPending).
		Scan(&stats.PendingCount)
	return stats, wrapDB("pending count", err)
}
