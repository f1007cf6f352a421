package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/constellation/internal/engine"
	"github.com/lazypower/constellation/internal/journal"
	"github.com/lazypower/constellation/internal/store"
)

var (
	entryMood  string
	entryTags  []string
	entryAt    string
	entryRange string
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage journal entries",
}

var entryAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a journal entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		e := &store.Entry{
			OwnerID: flagOwner,
			Content: strings.Join(args, " "),
			Mood:    entryMood,
			Tags:    entryTags,
		}
		if entryAt != "" {
			t, err := time.Parse(time.RFC3339, entryAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			e.CreatedAt = t.UTC()
		}
		if err := db.CreateEntry(cmd.Context(), e); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), e.ID)
		return nil
	},
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		_, window := engine.ParseTimeRange(entryRange)
		var since time.Time
		if window > 0 {
			since = time.Now().Add(-window)
		}
		entries, err := db.ListEntries(cmd.Context(), flagOwner, since)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s  %-7s  %s\n", e.ID, e.CreatedAt.Format("2006-01-02"), e.Mood, engine.Preview(e.Content, 60))
		}
		fmt.Fprintf(out, "%d entries\n", len(entries))
		return nil
	},
}

var entryImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import entries from a JSONL journal export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer f.Close()

		res, err := journal.Parse(f)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := journal.Import(cmd.Context(), db, flagOwner, res.Entries)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries (%d lines skipped)\n", n, res.Skipped)
		return nil
	},
}

func init() {
	entryAddCmd.Flags().StringVarP(&entryMood, "mood", "m", store.MoodNeutral, "Happy, Sad, Angry, Calm or Neutral")
	entryAddCmd.Flags().StringSliceVarP(&entryTags, "tag", "t", nil, "tag (repeatable)")
	entryAddCmd.Flags().StringVar(&entryAt, "at", "", "creation time, RFC 3339 (default now)")
	entryListCmd.Flags().StringVar(&entryRange, "range", "all", "all, week, month or year")

	entryCmd.AddCommand(entryAddCmd)
	entryCmd.AddCommand(entryListCmd)
	entryCmd.AddCommand(entryImportCmd)
}
