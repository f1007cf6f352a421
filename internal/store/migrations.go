package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "entries: owner-scoped journal entries",
		SQL: `
CREATE TABLE entries (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    content     TEXT NOT NULL,
    mood        TEXT NOT NULL DEFAULT 'Neutral' CHECK (mood IN ('Happy', 'Sad', 'Angry', 'Calm', 'Neutral')),
    tags        TEXT NOT NULL DEFAULT '[]',
    entities    TEXT,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_entries_owner   ON entries(owner_id);
CREATE INDEX idx_entries_created ON entries(owner_id, created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "entry_vectors: embeddings for semantic similarity",
		SQL: `
CREATE TABLE entry_vectors (
    entry_id   TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (entry_id) REFERENCES entries(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "relationships: weighted undirected edges between entries",
		SQL: `
CREATE TABLE relationships (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    pair_lo     TEXT NOT NULL,
    pair_hi     TEXT NOT NULL,
    strength    REAL NOT NULL CHECK (strength >= 0 AND strength <= 1),
    rel_type    TEXT NOT NULL CHECK (rel_type IN ('semantic', 'temporal', 'entity_based', 'manual', 'related')),
    reasons     TEXT NOT NULL DEFAULT '[]',
    created_at  INTEGER NOT NULL,
    FOREIGN KEY (source_id) REFERENCES entries(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES entries(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX idx_rel_pair   ON relationships(owner_id, pair_lo, pair_hi);
CREATE INDEX idx_rel_strength      ON relationships(owner_id, strength DESC);
`,
	},
	{
		Version:     4,
		Description: "clusters: thematic groups of entries",
		SQL: `
CREATE TABLE clusters (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL,
    name          TEXT NOT NULL,
    theme         TEXT NOT NULL,
    member_ids    TEXT NOT NULL,
    keywords      TEXT NOT NULL DEFAULT '[]',
    summary       TEXT NOT NULL,
    dominant_mood TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE INDEX idx_clusters_owner ON clusters(owner_id);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
