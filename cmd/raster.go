package main

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/raster"
	"github.com/sells-group/landcover-cli/internal/store"
)

var rasterCmd = &cobra.Command{
	Use:   "raster",
	Short: "Work with GeoTIFF imagery bands",
}

var rasterClipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Clip every band matching --glob in --dir to the bounds of a label file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("raster"); err != nil {
			return err
		}

		bboxPath, _ := cmd.Flags().GetString("bbox")
		dir, _ := cmd.Flags().GetString("dir")
		pattern, _ := cmd.Flags().GetString("glob")
		out, _ := cmd.Flags().GetString("out")
		epsg, _ := cmd.Flags().GetInt("epsg")
		if pattern == "" {
			pattern = cfg.Raster.Glob
		}
		if epsg == 0 {
			epsg = cfg.Raster.EPSG
		}

		paths, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return eris.Wrapf(err, "raster: bad glob %q", pattern)
		}
		if len(paths) == 0 {
			return eris.Errorf("raster: no bands match %s in %s", pattern, dir)
		}
		slices.Sort(paths)

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := store.Track(ctx, st, store.KindRasterClip, bboxPath, func() (any, error) {
			bbox, err := readBBox(ctx, bboxPath, epsg)
			if err != nil {
				return nil, err
			}
			zap.L().Info("raster: clipping", zap.Stringer("bbox", bbox), zap.Int("bands", len(paths)))
			written, err := raster.ClipAll(ctx, paths, bbox, out, cfg.Raster.Concurrency)
			if err != nil {
				return nil, err
			}
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return map[string]any{"bbox": bbox, "bands": written}, nil
		})
		if err != nil {
			return err
		}
		zap.L().Info("raster clip complete", zap.String("run_id", run.ID))
		return nil
	},
}

func init() {
	rasterClipCmd.Flags().String("bbox", "", "vector file whose bounds define the window")
	rasterClipCmd.Flags().String("dir", ".", "directory holding the bands")
	rasterClipCmd.Flags().String("glob", "", "band file pattern (default from config)")
	rasterClipCmd.Flags().String("out", "clipped", "output directory")
	rasterClipCmd.Flags().Int("epsg", 0, "CRS of the bands (default from config)")
	_ = rasterClipCmd.MarkFlagRequired("bbox")

	rasterCmd.AddCommand(rasterClipCmd)
	rootCmd.AddCommand(rasterCmd)
}
