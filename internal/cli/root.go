package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lazypower/constellation/internal/config"
	"github.com/lazypower/constellation/internal/logging"
)

var (
	flagOwner  string
	flagConfig string
	flagDB     string

	// cfg is resolved once per invocation before any command runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "constellation",
	Short: "Relationship graph for journal memories",
	Long: "Constellation scores how journal entries relate, clusters them into themes, " +
		"and finds the chain of memories linking any two entries.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", envOr("CONSTELLATION_OWNER", "default"), "owner whose entries are used")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.constellation/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(relatedCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path := flagConfig
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".constellation", "config.toml")
		}
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	c.ApplyEnv()
	if flagDB != "" {
		c.Database.Path = flagDB
	}
	if flagOwner == "" {
		return fmt.Errorf("--owner must not be empty")
	}

	cfg = c
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
