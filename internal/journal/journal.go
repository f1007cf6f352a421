// Package journal reads JSONL journal exports into entries.
//
// Each line is one object:
//
//	{"id":"...","text":"...","mood":"Happy","tags":["a","b"],"created_at":"2024-05-01T10:00:00Z"}
//
// "content" is accepted for "text", tags may be a comma-separated string,
// and created_at may be RFC 3339, a plain date, or unix seconds.
package journal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/lazypower/constellation/internal/store"
)

type line struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Content   string          `json:"content"`
	Mood      string          `json:"mood"`
	Tags      json.RawMessage `json:"tags"`
	CreatedAt json.RawMessage `json:"created_at"`
}

// Result summarizes one parse.
type Result struct {
	Entries []store.Entry
	Skipped int // malformed or empty lines
}

// Parse reads r line by line. Malformed lines are logged and counted, not
// returned as errors; only read failures are.
func Parse(r io.Reader) (*Result, error) {
	res := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		e, err := parseLine([]byte(raw))
		if err != nil {
			log.Debug().Err(err).Int("line", n).Msg("skipping journal line")
			res.Skipped++
			continue
		}
		res.Entries = append(res.Entries, *e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return res, nil
}

func parseLine(raw []byte) (*store.Entry, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(l.Text)
	if text == "" {
		text = strings.TrimSpace(l.Content)
	}
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	created, err := parseTime(l.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &store.Entry{
		ID:        strings.TrimSpace(l.ID),
		Content:   text,
		Mood:      store.NormalizeMood(l.Mood),
		Tags:      parseTags(l.Tags),
		CreatedAt: created,
	}, nil
}

// parseTags handles the polymorphic tags field: an array of strings or a
// comma-separated string.
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return []string{}
		}
		list = strings.Split(s, ",")
	}

	tags := make([]string, 0, len(list))
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("created_at: %s", raw)
		}
		return time.UnixMilli(int64(secs * 1000)).UTC(), nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at: unrecognised time %q", s)
}

// Import stores entries for owner. An entry whose insert fails (usually a
// duplicate id) is logged and skipped.
func Import(ctx context.Context, db *store.DB, owner string, entries []store.Entry) (int, error) {
	imported := 0
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		e := entries[i]
		e.OwnerID = owner
		if err := db.CreateEntry(ctx, &e); err != nil {
			log.Warn().Err(err).Str("owner", owner).Str("entry", e.ID).Msg("skipping journal entry")
			continue
		}
		imported++
	}
	log.Info().Str("owner", owner).Int("count", imported).Msg("journal imported")
	return imported, nil
}
