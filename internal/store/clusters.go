package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Cluster is a persisted thematic group of an owner's entries.
type Cluster struct {
	ID           string
	OwnerID      string
	Name         string
	Theme        string
	MemberIDs    []string
	Keywords     []string
	Summary      string
	DominantMood string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const clusterColumns = `id, owner_id, name, theme, member_ids, keywords, summary, dominant_mood, created_at, updated_at`

// ReplaceClusters deletes all of an owner's clusters and inserts the given
// set in one transaction. A cluster that fails to insert is logged and
// skipped. IDs and timestamps are filled in on the passed slice.
func (db *DB) ReplaceClusters(ctx context.Context, owner string, clusters []Cluster) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM clusters WHERE owner_id = ?", owner); err != nil {
			return fmt.Errorf("clear clusters: %w", err)
		}
		now := time.Now().UTC()
		for i := range clusters {
			c := &clusters[i]
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			c.OwnerID = owner
			c.CreatedAt = now
			c.UpdatedAt = now
			_, err := tx.ExecContext(ctx, `
				INSERT INTO clusters (`+clusterColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, c.ID, owner, c.Name, c.Theme, encodeStrings(c.MemberIDs), encodeStrings(c.Keywords),
				c.Summary, c.DominantMood, now.UnixMilli(), now.UnixMilli())
			if err != nil {
				log.Warn().Err(err).Str("owner", owner).Str("cluster", c.Name).Msg("skipping cluster")
				continue
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace clusters: %w", err)
	}
	return nil
}

// ListClusters returns an owner's clusters in insertion order.
func (db *DB) ListClusters(ctx context.Context, owner string) ([]Cluster, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+clusterColumns+` FROM clusters
		WHERE owner_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		var members, keywords string
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Theme, &members, &keywords,
			&c.Summary, &c.DominantMood, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		c.MemberIDs = decodeStrings(members)
		c.Keywords = decodeStrings(keywords)
		c.CreatedAt = time.UnixMilli(created).UTC()
		c.UpdatedAt = time.UnixMilli(updated).UTC()
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}
