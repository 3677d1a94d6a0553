package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/landcover-cli/internal/classify"
	"github.com/sells-group/landcover-cli/internal/store"
	"github.com/sells-group/landcover-cli/internal/table"
	"github.com/sells-group/landcover-cli/internal/visualize"
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize",
	Short: "Plot a classifier's decision surface over two table columns",
	Long: `Encodes --x, --y and --target ordinally, fits --model, prints the
training accuracy and writes the decision surface with the jittered points.
Without --data the built-in sample table is used.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("visualize"); err != nil {
			return err
		}

		data, _ := cmd.Flags().GetString("data")
		sheet, _ := cmd.Flags().GetString("sheet")
		out, _ := cmd.Flags().GetString("out")

		opts, err := visualizeOptions()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("model"); v != "" {
			if opts.Kind, err = classify.ParseKind(v); err != nil {
				return err
			}
		}
		if v, _ := cmd.Flags().GetString("x"); v != "" {
			opts.FeatureX = v
		}
		if v, _ := cmd.Flags().GetString("y"); v != "" {
			opts.FeatureY = v
		}
		if v, _ := cmd.Flags().GetString("target"); v != "" {
			opts.Target = v
		}
		if cmd.Flags().Changed("jitter") {
			opts.Jitter, _ = cmd.Flags().GetFloat64("jitter")
		}
		if cmd.Flags().Changed("grid") {
			opts.GridSize, _ = cmd.Flags().GetInt("grid")
		}
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetInt64("seed")
			opts.Params.Seed = seed
			opts.Rand = rand.New(rand.NewSource(seed)) //nolint:gosec
		}
		opts.OutputPath = out
		opts.Stdout = cmd.OutOrStdout()

		var tbl *table.Table
		if sheet != "" {
			tbl, err = table.ReadXLSX(data, sheet)
		} else {
			tbl, err = table.ReadFile(ctx, data)
		}
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		input := fmt.Sprintf("%s %s(%s, %s) -> %s", dataName(data), opts.Kind, opts.FeatureX, opts.FeatureY, opts.Target)
		run, err := store.Track(ctx, st, store.KindVisualize, input, func() (any, error) {
			res, err := visualize.Visualize(ctx, tbl, opts)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"model":   res.Kind,
				"score":   res.Score,
				"classes": res.Classes,
				"output":  out,
			}, nil
		})
		if err != nil {
			return err
		}
		zap.L().Debug("visualize run recorded", zap.String("run_id", run.ID))
		return nil
	},
}

// visualizeOptions maps the visualize and models config onto options.
func visualizeOptions() (visualize.Options, error) {
	opts := visualize.DefaultOptions()
	kind, err := classify.ParseKind(cfg.Visualize.Model)
	if err != nil {
		return opts, err
	}
	opts.Kind = kind
	opts.FeatureX = cfg.Visualize.X
	opts.FeatureY = cfg.Visualize.Y
	opts.Target = cfg.Visualize.Target
	opts.Jitter = cfg.Visualize.Jitter
	opts.GridSize = cfg.Visualize.GridSize
	opts.Width = vg.Length(cfg.Visualize.WidthIn) * vg.Inch
	opts.Height = vg.Length(cfg.Visualize.HeightIn) * vg.Inch
	opts.Params = classify.Params{
		KMeansClusters:  cfg.Models.KMeansClusters,
		ForestTrees:     cfg.Models.ForestTrees,
		LogisticMaxIter: cfg.Models.LogisticMaxIter,
		Seed:            cfg.Visualize.Seed,
	}
	if cfg.Visualize.Seed != 0 {
		opts.Rand = rand.New(rand.NewSource(cfg.Visualize.Seed)) //nolint:gosec
	}
	return opts, nil
}

func dataName(path string) string {
	if path == "" {
		return "sample"
	}
	return path
}

func init() {
	visualizeCmd.Flags().String("model", "", "model kind (default from config)")
	visualizeCmd.Flags().String("x", "", "x feature column")
	visualizeCmd.Flags().String("y", "", "y feature column")
	visualizeCmd.Flags().String("target", "", "target column")
	visualizeCmd.Flags().String("data", "", "CSV or XLSX table (default: built-in sample)")
	visualizeCmd.Flags().String("sheet", "", "XLSX sheet name")
	visualizeCmd.Flags().String("out", "decision_surface.png", "output image (png, svg, pdf, eps, jpg, tif)")
	visualizeCmd.Flags().Int64("seed", 0, "seed for jitter and model randomness")
	visualizeCmd.Flags().Float64("jitter", visualize.DefaultJitter, "scale of the point jitter")
	visualizeCmd.Flags().Int("grid", visualize.DefaultGridSize, "decision surface resolution per axis")
	rootCmd.AddCommand(visualizeCmd)
}
