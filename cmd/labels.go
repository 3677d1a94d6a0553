package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/db"
	"github.com/sells-group/landcover-cli/internal/geo"
	"github.com/sells-group/landcover-cli/internal/labels"
	"github.com/sells-group/landcover-cli/internal/normalize"
	"github.com/sells-group/landcover-cli/internal/store"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Normalize and export land-cover label files",
}

// -- labels normalize --

var labelsNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Harmonize label files into the canonical vocabulary",
	Long: `Reads every --in file, takes each file's category from its own field
(--field for all, --field-for file=field per file), drops unusable answers,
relabels everything outside the keep-list as other, folds synonyms, optionally
clips to the bounds of --bbox, encodes categories and writes --out.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}

		inputs, _ := cmd.Flags().GetStringSlice("in")
		out, _ := cmd.Flags().GetString("out")
		field, _ := cmd.Flags().GetString("field")
		fieldFor, _ := cmd.Flags().GetStringToString("field-for")
		vocabPath, _ := cmd.Flags().GetString("vocab")
		bboxPath, _ := cmd.Flags().GetString("bbox")
		srid, _ := cmd.Flags().GetInt("srid")
		if field == "" {
			field = cfg.Labels.CategoryField
		}

		vocab, err := loadVocabulary(vocabPath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := store.Track(ctx, st, store.KindNormalize, strings.Join(inputs, ","), func() (any, error) {
			sources := make([]*labels.Source, 0, len(inputs))
			for _, in := range inputs {
				f := field
				if override, ok := fieldFor[in]; ok {
					f = override
				}
				src, err := labels.Read(ctx, in, labels.ReadOptions{SRID: srid, CategoryField: f})
				if err != nil {
					return nil, err
				}
				sources = append(sources, src)
			}

			var bbox *geo.BBox
			if bboxPath != "" {
				b, err := readBBox(ctx, bboxPath, sources[0].SRID)
				if err != nil {
					return nil, err
				}
				bbox = &b
			}

			res, err := normalize.Run(ctx, sources, vocab, bbox)
			if err != nil {
				return nil, err
			}
			if err := writeLabels(ctx, out, res.Collection); err != nil {
				return nil, err
			}
			printStats(cmd.OutOrStdout(), res)
			return res.Stats, nil
		})
		if err != nil {
			return err
		}
		zap.L().Info("labels normalized", zap.String("run_id", run.ID), zap.String("out", out))
		return nil
	},
}

// -- labels export --

var labelsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy a normalized label file to another format or to PostGIS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in, _ := cmd.Flags().GetString("in")
		out, _ := cmd.Flags().GetString("out")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, err = store.Track(ctx, st, store.KindExport, in+" -> "+redactURL(out), func() (any, error) {
			src, err := labels.Read(ctx, in, labels.ReadOptions{})
			if err != nil {
				return nil, err
			}
			coll, err := labels.FromSource(src)
			if err != nil {
				return nil, err
			}
			coll, _ = normalize.Encode(coll)
			if err := writeLabels(ctx, out, coll); err != nil {
				return nil, err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d features to %s\n", coll.Len(), redactURL(out))
			return map[string]int{"features": coll.Len()}, nil
		})
		return err
	},
}

func isPostgresURL(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// redactURL hides the password of a database URL for logs and the ledger.
func redactURL(s string) string {
	if !isPostgresURL(s) {
		return s
	}
	scheme, rest, _ := strings.Cut(s, "://")
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return s
	}
	user, _, _ := strings.Cut(userinfo, ":")
	return scheme + "://" + user + ":***@" + host
}

// writeLabels writes coll to a vector file, or COPYs it into PostGIS when
// dest is a postgres URL.
func writeLabels(ctx context.Context, dest string, coll *labels.Collection) error {
	if dest == "" {
		dest = cfg.PostGIS.DatabaseURL
	}
	if dest == "" {
		return eris.New("labels: no output given (--out or postgis.database_url)")
	}
	if !isPostgresURL(dest) {
		return labels.Write(ctx, dest, coll)
	}

	pool, err := db.Connect(ctx, dest)
	if err != nil {
		return err
	}
	defer pool.Close()
	n, err := labels.ExportPostGIS(ctx, pool, cfg.PostGIS.Schema, cfg.PostGIS.Table, coll)
	if err != nil {
		return err
	}
	zap.L().Info("labels exported to postgis",
		zap.String("table", cfg.PostGIS.Schema+"."+cfg.PostGIS.Table),
		zap.Int64("rows", n),
	)
	return nil
}

// readBBox returns the bounds of every geometry in a vector file,
// reprojected to srid when the file is in another CRS.
func readBBox(ctx context.Context, path string, srid int) (geo.BBox, error) {
	src, err := labels.Read(ctx, path, labels.ReadOptions{})
	if err != nil {
		return geo.BBox{}, err
	}
	gs := make([]geom.T, len(src.Records))
	for i, r := range src.Records {
		gs[i] = r.Geometry
	}
	b, err := geo.TotalBounds(gs...)
	if err != nil {
		return geo.BBox{}, eris.Wrapf(err, "bbox %s", path)
	}
	if b.SRID == 0 {
		b.SRID = src.SRID
	}
	if srid != 0 && b.SRID != srid {
		return b.Reproject(srid)
	}
	return b, nil
}

func printStats(w io.Writer, res *normalize.Result) {
	s := res.Stats
	fmt.Fprintf(w, "Input: %d  Dropped: %d  Relabeled: %d  Folded: %d  Clipped: %d  Output: %d\n",
		s.Input, s.Dropped, s.Relabeled, s.Folded, s.Clipped, s.Output)
	for code, name := range res.Encoder.Classes() {
		fmt.Fprintf(w, "  %2d  %-12s %d\n", code, name, s.Categories[name])
	}
}

func init() {
	labelsNormalizeCmd.Flags().StringSlice("in", nil, "input label files (.shp, .geojson, .gpkg)")
	labelsNormalizeCmd.Flags().String("out", "", "output file or postgres:// URL")
	labelsNormalizeCmd.Flags().String("field", "", "category field in every input (default from config)")
	labelsNormalizeCmd.Flags().StringToString("field-for", nil, "per-file category field, file=field")
	labelsNormalizeCmd.Flags().String("vocab", "", "vocabulary YAML (default from config, else built in)")
	labelsNormalizeCmd.Flags().String("bbox", "", "vector file whose bounds clip the labels")
	labelsNormalizeCmd.Flags().Int("srid", 0, "EPSG code of the inputs when they carry none")
	_ = labelsNormalizeCmd.MarkFlagRequired("in")

	labelsExportCmd.Flags().String("in", "", "normalized label file")
	labelsExportCmd.Flags().String("out", "", "output file or postgres:// URL (default postgis.database_url)")
	_ = labelsExportCmd.MarkFlagRequired("in")

	labelsCmd.AddCommand(labelsNormalizeCmd, labelsExportCmd)
	rootCmd.AddCommand(labelsCmd)
}

