package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds an embedding for an entry.
type VectorRecord struct {
	EntryID    string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for an entry.
func (db *DB) SaveVector(ctx context.Context, entryID string, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := db.ExecContext(ctx, `
		INSERT INTO entry_vectors (entry_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			created_at = excluded.created_at
	`, entryID, blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for an entry, or nil if not found.
func (db *DB) GetVector(ctx context.Context, entryID string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRowContext(ctx, `
		SELECT entry_id, embedding, model, dimensions, created_at
		FROM entry_vectors WHERE entry_id = ?
	`, entryID).Scan(&v.EntryID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// OwnerVectors returns the stored embeddings of an owner's entries keyed by
// entry ID.
func (db *DB) OwnerVectors(ctx context.Context, owner string) (map[string]VectorRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT v.entry_id, v.embedding, v.model, v.dimensions, v.created_at
		FROM entry_vectors v
		JOIN entries e ON e.id = v.entry_id
		WHERE e.owner_id = ?
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("owner vectors: %w", err)
	}
	defer rows.Close()

	records := make(map[string]VectorRecord)
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.EntryID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records[v.EntryID] = v
	}
	return records, rows.Err()
}
