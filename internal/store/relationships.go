package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Relationship is an undirected weighted edge between two entries of one
// owner. Source and target record the order the pair was scored in.
type Relationship struct {
	ID        string
	OwnerID   string
	SourceID  string
	TargetID  string
	Strength  float64
	Type      string
	Reasons   []string
	CreatedAt time.Time
}

func pairKey(a, b string) (lo, hi string) {
	if a <= b {
		return a, b
	}
	return b, a
}

const relColumns = `id, owner_id, source_id, target_id, strength, rel_type, reasons, created_at`

func scanRelationship(s scanner) (*Relationship, error) {
	var r Relationship
	var reasons string
	var created int64
	if err := s.Scan(&r.ID, &r.OwnerID, &r.SourceID, &r.TargetID, &r.Strength, &r.Type, &reasons, &created); err != nil {
		return nil, err
	}
	r.Reasons = decodeStrings(reasons)
	r.CreatedAt = time.UnixMilli(created).UTC()
	return &r, nil
}

func (r *Relationship) fill(owner string, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.OwnerID = owner
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRelationship(ctx context.Context, ex execer, r *Relationship, onConflict string) (int64, error) {
	lo, hi := pairKey(r.SourceID, r.TargetID)
	res, err := ex.ExecContext(ctx, `
		INSERT INTO relationships (`+relColumns+`, pair_lo, pair_hi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, pair_lo, pair_hi) `+onConflict,
		r.ID, r.OwnerID, r.SourceID, r.TargetID, r.Strength, r.Type,
		encodeStrings(r.Reasons), r.CreatedAt.UnixMilli(), lo, hi)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReplaceRelationships atomically swaps an owner's whole edge set for rels.
// A row that fails to insert is logged and skipped; the rest still commit.
// It returns the rows actually inserted.
func (db *DB) ReplaceRelationships(ctx context.Context, owner string, rels []Relationship) ([]Relationship, error) {
	var inserted []Relationship
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM relationships WHERE owner_id = ?", owner); err != nil {
			return fmt.Errorf("clear relationships: %w", err)
		}
		inserted = insertAll(ctx, tx, owner, rels)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace relationships: %w", err)
	}
	return inserted, nil
}

// InsertMissingRelationships adds only those rels whose pair has no edge
// yet and returns the rows actually inserted.
func (db *DB) InsertMissingRelationships(ctx context.Context, owner string, rels []Relationship) ([]Relationship, error) {
	var inserted []Relationship
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		inserted = insertAll(ctx, tx, owner, rels)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert relationships: %w", err)
	}
	return inserted, nil
}

func insertAll(ctx context.Context, tx *sql.Tx, owner string, rels []Relationship) []Relationship {
	var inserted []Relationship
	now := time.Now().UTC()
	for i := range rels {
		rels[i].fill(owner, now)
		n, err := insertRelationship(ctx, tx, &rels[i], "DO NOTHING")
		if err != nil {
			log.Warn().Err(err).Str("owner", owner).
				Str("source", rels[i].SourceID).Str("target", rels[i].TargetID).
				Msg("skipping relationship")
			continue
		}
		if n > 0 {
			inserted = append(inserted, rels[i])
		}
	}
	return inserted
}

// UpsertRelationship stores r, replacing any existing edge for the same pair.
func (db *DB) UpsertRelationship(ctx context.Context, r *Relationship) error {
	if r.OwnerID == "" {
		return fmt.Errorf("upsert relationship: owner is required")
	}
	r.fill(r.OwnerID, time.Now().UTC())
	_, err := insertRelationship(ctx, db, r, `DO UPDATE SET
			id = excluded.id,
			source_id = excluded.source_id,
			target_id = excluded.target_id,
			strength = excluded.strength,
			rel_type = excluded.rel_type,
			reasons = excluded.reasons,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("upsert relationship: %w", err)
	}
	return nil
}

// ListRelationships returns an owner's edges with strength >= minStrength,
// strongest first.
func (db *DB) ListRelationships(ctx context.Context, owner string, minStrength float64) ([]Relationship, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+relColumns+` FROM relationships
		WHERE owner_id = ? AND strength >= ?
		ORDER BY strength DESC, pair_lo ASC, pair_hi ASC
	`, owner, minStrength)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, *r)
	}
	return rels, rows.Err()
}

// CountRelationships returns the number of edges an owner has.
func (db *DB) CountRelationships(ctx context.Context, owner string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relationships WHERE owner_id = ?", owner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count relationships: %w", err)
	}
	return n, nil
}
