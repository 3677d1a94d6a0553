package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/landcover-cli/internal/labels"
)

var bboxCmd = &cobra.Command{
	Use:   "bbox",
	Short: "Write the bounding box of a label file as a one-feature polygon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in, _ := cmd.Flags().GetString("in")
		out, _ := cmd.Flags().GetString("out")
		epsg, _ := cmd.Flags().GetInt("epsg")

		b, err := readBBox(ctx, in, epsg)
		if err != nil {
			return err
		}
		coll := labels.NewCollection(b.SRID, []labels.Feature{{
			Category: "bbox",
			Geometry: b.Polygon(),
			Source:   in,
		}})
		if err := labels.Write(ctx, out, coll); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
		return nil
	},
}

func init() {
	bboxCmd.Flags().String("in", "", "label file")
	bboxCmd.Flags().String("out", "bbox.geojson", "output vector file")
	bboxCmd.Flags().Int("epsg", 0, "reproject the box to this EPSG code")
	_ = bboxCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(bboxCmd)
}
