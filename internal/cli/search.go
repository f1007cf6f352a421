package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/constellation/internal/engine"
)

var (
	searchLimit  int
	searchMinSim float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Rank entries by similarity to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := newEngine(cmd.Context(), db, nil).Search(cmd.Context(), flagOwner, strings.Join(args, " "),
			engine.SearchOpts{Limit: searchLimit, MinSimilarity: searchMinSim})
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), res)
		return nil
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "List the entries most similar to an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := newEngine(cmd.Context(), db, nil).Related(cmd.Context(), flagOwner, args[0],
			engine.SearchOpts{Limit: searchLimit, MinSimilarity: searchMinSim})
		if err != nil {
			return err
		}
		printResults(cmd.OutOrStdout(), res)
		return nil
	},
}

func printResults(w io.Writer, res []engine.SearchResult) {
	if len(res) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	for _, r := range res {
		fmt.Fprintf(w, "%.3f  %s  %s\n", r.Similarity, r.Entry.ID, engine.Preview(r.Entry.Content, 60))
	}
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, relatedCmd} {
		c.Flags().IntVar(&searchLimit, "limit", 0, "max results (0 uses the default)")
		c.Flags().Float64Var(&searchMinSim, "min-similarity", 0, "only show results scoring above this")
	}
}
