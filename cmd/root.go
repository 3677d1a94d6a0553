package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/config"
	"github.com/sells-group/landcover-cli/internal/normalize"
	"github.com/sells-group/landcover-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "landcover",
	Short: "Land-cover label preparation and classifier visualization",
	Long:  "Harmonizes land-cover labels across survey files, clips imagery to a label bounding box, and plots classifier decision boundaries over tabular data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore opens and migrates the run ledger.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// loadVocabulary returns the vocabulary at path, the configured file, or the
// built-in defaults, in that order.
func loadVocabulary(path string) (*normalize.Vocabulary, error) {
	if path == "" {
		path = cfg.Labels.VocabularyPath
	}
	return normalize.LoadVocabulary(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
