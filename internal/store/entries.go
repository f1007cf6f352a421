package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Moods an entry can carry. Anything else is stored as MoodNeutral.
const (
	MoodHappy   = "Happy"
	MoodSad     = "Sad"
	MoodAngry   = "Angry"
	MoodCalm    = "Calm"
	MoodNeutral = "Neutral"
)

// NormalizeMood maps free-form input onto one of the known moods.
func NormalizeMood(mood string) string {
	switch strings.ToLower(strings.TrimSpace(mood)) {
	case "happy":
		return MoodHappy
	case "sad":
		return MoodSad
	case "angry":
		return MoodAngry
	case "calm":
		return MoodCalm
	default:
		return MoodNeutral
	}
}

// Entry is one journal entry belonging to an owner.
type Entry struct {
	ID        string
	OwnerID   string
	Content   string
	Mood      string
	Tags      []string
	Entities  []string // nil until extracted; empty slice means extracted, none found
	CreatedAt time.Time
	UpdatedAt time.Time
}

const entryColumns = `id, owner_id, content, mood, tags, entities, created_at, updated_at`

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var tags string
	var entities sql.NullString
	var created, updated int64
	if err := s.Scan(&e.ID, &e.OwnerID, &e.Content, &e.Mood, &tags, &entities, &created, &updated); err != nil {
		return nil, err
	}
	e.Tags = decodeStrings(tags)
	if entities.Valid {
		e.Entities = decodeStrings(entities.String)
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return &e, nil
}

// CreateEntry inserts a new entry. ID, timestamps and mood are filled in
// when empty.
func (db *DB) CreateEntry(ctx context.Context, e *Entry) error {
	if e.OwnerID == "" {
		return fmt.Errorf("create entry: owner is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Mood = NormalizeMood(e.Mood)
	if e.Tags == nil {
		e.Tags = []string{}
	}

	var entities any
	if e.Entities != nil {
		entities = encodeStrings(e.Entities)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OwnerID, e.Content, e.Mood, encodeStrings(e.Tags), entities,
		e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

// GetEntry returns an owner's entry by ID, or nil if not found.
func (db *DB) GetEntry(ctx context.Context, owner, id string) (*Entry, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE owner_id = ? AND id = ?`, owner, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns an owner's entries created at or after since, oldest
// first. A zero since returns everything.
func (db *DB) ListEntries(ctx context.Context, owner string, since time.Time) ([]Entry, error) {
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE owner_id = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC
	`, owner, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// CountEntries returns the number of entries an owner has.
func (db *DB) CountEntries(ctx context.Context, owner string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE owner_id = ?", owner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// UpdateEntryContent replaces an entry's text and reports whether the entry
// exists. Cached entities and the stored embedding are dropped.
func (db *DB) UpdateEntryContent(ctx context.Context, owner, id, content string) (bool, error) {
	var found bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entries SET content = ?, entities = NULL, updated_at = ?
			WHERE owner_id = ? AND id = ?
		`, content, time.Now().UnixMilli(), owner, id)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		found = true
		if _, err := tx.ExecContext(ctx, "DELETE FROM entry_vectors WHERE entry_id = ?", id); err != nil {
			return fmt.Errorf("drop stale vector: %w", err)
		}
		return nil
	})
	return found, err
}

// SaveEntities caches the extracted entity set for an entry.
func (db *DB) SaveEntities(ctx context.Context, owner, id string, entities []string) error {
	_, err := db.ExecContext(ctx, "UPDATE entries SET entities = ? WHERE owner_id = ? AND id = ?",
		encodeStrings(entities), owner, id)
	if err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry along with its vector and relationships.
// It reports whether anything was deleted.
func (db *DB) DeleteEntry(ctx context.Context, owner, id string) (bool, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM entries WHERE owner_id = ? AND id = ?", owner, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return n > 0, nil
}
