package store

import "context"

// UpsertEntity inserts an entity or returns the existing row id for the
// (text, label) pair. Confidence keeps the maximum observed value.
func (s *Store) UpsertEntity(ctx context.Context, text, label string, confidence float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (text, label, confidence)
		VALUES (?, ?, ?)
		ON CONFLICT(text, label) DO UPDATE SET
			confidence = MAX(confidence, excluded.confidence)`,
		text, label, confidence)
	if err != nil {
		return 0, wrapDB("upsert entity", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM entities WHERE text = ? AND label = ?`, text, label).Scan(&id)
	if err != nil {
		return 0, wrapDB("resolve entity id", err)
	}
	return id, nil
}

// ReplaceMentions atomically replaces all entity mentions of a chunk.
func (s *Store) ReplaceMentions(ctx context.Context, chunkID string, mentions []MentionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB("begin mention replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mentions WHERE chunk_id = ?`, chunkID); err != nil {
		return wrapDB("delete mentions", err)
	}
	for _, m := range mentions {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO mentions (chunk_id, entity_id, start_pos, end_pos, confidence)
			VALUES (?, ?, ?, ?, ?)`,
			chunkID, m.EntityID, m.StartPos, m.EndPos, m.Confidence); err != nil {
			return wrapDB("insert mention", err)
		}
	}
	return wrapDB("commit mention replace", tx.Commit())
}

// MentionsForChunk returns the entity mentions of a chunk joined with the
// entity surface text.
func (s *Store) MentionsForChunk(ctx context.Context, chunkID string) ([]EntityMention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.chunk_id, e.text, e.label, m.confidence
		FROM mentions m JOIN entities e ON e.id = m.entity_id
		WHERE m.chunk_id = ?`, chunkID)
	if err != nil {
		return nil, wrapDB("mentions for chunk", err)
	}
	defer rows.Close()

	var out []EntityMention
	for rows.Next() {
		var em EntityMention
		if err := rows.Scan(&em.ChunkID, &em.Text, &em.Label, &em.Confidence); err != nil {
			return nil, wrapDB("scan mention", err)
		}
		out = append(out, em)
	}
	return out, wrapDB("mentions for chunk", rows.Err())
}

// ChunksMentioning resolves an entity surface text to the chunks that mention
// it, excluding one chunk (the query source). Case-insensitive on text.
func (s *Store) ChunksMentioning(ctx context.Context, entityText, excludeChunkID string) ([]EntityMention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.chunk_id, e.text, e.label, m.confidence
		FROM mentions m JOIN entities e ON e.id = m.entity_id
		WHERE LOWER(e.text) = LOWER(?) AND m.chunk_id != ?`, entityText, excludeChunkID)
	if err != nil {
		return nil, wrapDB("chunks mentioning", err)
	}
	defer rows.Close()

	var out []EntityMention
	for rows.Next() {
		var em EntityMention
		if err := rows.Scan(&em.ChunkID, &em.Text, &em.Label, &em.Confidence); err != nil {
			return nil, wrapDB("scan mentioning chunk", err)
		}
		out = append(out, em)
	}
	return out, wrapDB("chunks mentioning", rows.Err())
}
