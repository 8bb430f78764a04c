package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
)

// SaveEmbedding persists a chunk vector and its metadata sidecar, replacing
// any previous vector for the chunk.
func (s *Store) SaveEmbedding(ctx context.Context, e *EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimensions, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimensions = excluded.dimensions,
			metadata = excluded.metadata`,
		e.ChunkID, encodeVector(e.Vector), len(e.Vector), mustJSON(e.Metadata))
	return wrapDB("save embedding", err)
}

// GetEmbedding fetches the stored vector for a chunk.
func (s *Store) GetEmbedding(ctx context.Context, chunkID string) (*EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, vector, dimensions, metadata FROM embeddings WHERE chunk_id = ?`, chunkID)

	var e EmbeddingRecord
	var blob []byte
	var meta string
	if err := row.Scan(&e.ChunkID, &blob, &e.Dimensions, &meta); err != nil {
		return nil, wrapDB("get embedding "+chunkID, err)
	}
	e.Vector = decodeVector(blob)
	_ = json.Unmarshal([]byte(meta), &e.Metadata)
	return &e, nil
}

// AllEmbeddings streams every stored embedding to fn, used to rebuild the
// in-memory vector index at startup.
func (s *Store) AllEmbeddings(ctx context.Context, fn func(*EmbeddingRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, vector, dimensions, metadata FROM embeddings`)
	if err != nil {
		return wrapDB("list embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e EmbeddingRecord
		var blob []byte
		var meta string
		if err := rows.Scan(&e.ChunkID, &blob, &e.Dimensions, &meta); err != nil {
			return wrapDB("scan embedding", err)
		}
		e.Vector = decodeVector(blob)
		_ = json.Unmarshal([]byte(meta), &e.Metadata)
		if err := fn(&e); err != nil {
			return err
		}
	}
	return wrapDB("list embeddings", rows.Err())
}

// DeleteEmbedding drops the stored vector of a chunk.
func (s *Store) DeleteEmbedding(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id = ?`, chunkID)
	return wrapDB("delete embedding", err)
}

// encodeVector packs float32s little-endian into an opaque blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
