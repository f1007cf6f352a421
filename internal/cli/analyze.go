package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lazypower/constellation/internal/engine"
)

var (
	analyzeForce bool

	graphMinStrength float64
	graphRange       string
	graphClusters    bool

	relateType     string
	relateStrength float64
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score entry pairs and store relationships",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := newEngine(cmd.Context(), db, nil).AnalyzeRelationships(cmd.Context(), flagOwner, analyzeForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d relationships (%d strong, %d existed before)\n", res.Created, res.Strong, res.Existing)
		if analyzeForce {
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d clusters\n", res.Clusters)
		}
		return nil
	},
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Detect and summarize clusters of related entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		clusters, err := newEngine(cmd.Context(), db, nil).DetectClusters(cmd.Context(), flagOwner)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), clusters)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the relationship graph as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		view, err := engine.New(db, cfg.Engine).Graph(cmd.Context(), flagOwner, engine.GraphOpts{
			MinStrength:     graphMinStrength,
			IncludeClusters: graphClusters,
			TimeRange:       graphRange,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), view)
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <source-id> <target-id>",
	Short: "Find the strongest chain of memories between two entries",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := engine.New(db, cfg.Engine).FindPath(cmd.Context(), args[0], args[1], flagOwner)
		if errors.Is(err, engine.ErrNoPath) {
			fmt.Fprintln(cmd.OutOrStdout(), "No path found between these memories")
			return nil
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, e := range res.Entries {
			fmt.Fprintf(out, "%d. %s  %s\n", i+1, e.ID, engine.Preview(e.Content, 50))
		}
		fmt.Fprintf(out, "distance: %d\n", res.Distance)
		return nil
	},
}

var relateCmd = &cobra.Command{
	Use:   "relate <source-id> <target-id>",
	Short: "Manually relate two entries",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := engine.ParseRelationType(relateType)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rel, err := engine.New(db, cfg.Engine).Relate(cmd.Context(), flagOwner, args[0], args[1], rt, relateStrength)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s  %s  %s\n", rel.SourceID, rel.TargetID, rel.Type,
			strconv.FormatFloat(rel.Strength, 'f', 2, 64))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "replace all relationships and rebuild clusters")

	graphCmd.Flags().Float64Var(&graphMinStrength, "min-strength", engine.DefaultMinScore, "hide weaker relationships")
	graphCmd.Flags().StringVar(&graphRange, "range", engine.RangeAll, "all, week, month or year")
	graphCmd.Flags().BoolVar(&graphClusters, "clusters", true, "include clusters")

	relateCmd.Flags().StringVar(&relateType, "type", string(engine.RelationManual), "relationship type")
	relateCmd.Flags().Float64Var(&relateStrength, "strength", engine.DefaultManualStrength, "strength in [0, 1]")
}
