package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landcover-cli/internal/geo"
	"github.com/sells-group/landcover-cli/internal/labels"
)

var reprojectCmd = &cobra.Command{
	Use:   "reproject",
	Short: "Reproject a label file to another CRS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in, _ := cmd.Flags().GetString("in")
		out, _ := cmd.Flags().GetString("out")
		from, _ := cmd.Flags().GetInt("from")
		to, _ := cmd.Flags().GetInt("to")

		src, err := labels.Read(ctx, in, labels.ReadOptions{SRID: from})
		if err != nil {
			return err
		}
		if src.SRID == 0 {
			return eris.Errorf("reproject: %s has no CRS; pass --from", in)
		}
		coll, err := labels.FromSource(src)
		if err != nil {
			return err
		}
		tr, err := geo.NewTransformer(src.SRID, to)
		if err != nil {
			return err
		}
		features := coll.Features()
		for i := range features {
			g, err := tr.Geometry(features[i].Geometry)
			if err != nil {
				return eris.Wrapf(err, "reproject: feature %d", i)
			}
			features[i].Geometry = g
		}
		if err := labels.Write(ctx, out, labels.NewCollection(to, features)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reprojected %d features EPSG:%d -> EPSG:%d\n", len(features), src.SRID, to)
		return nil
	},
}

func init() {
	reprojectCmd.Flags().String("in", "", "label file")
	reprojectCmd.Flags().String("out", "", "output vector file")
	reprojectCmd.Flags().Int("from", 0, "source EPSG code when the file carries none")
	reprojectCmd.Flags().Int("to", geo.WGS84, "target EPSG code")
	_ = reprojectCmd.MarkFlagRequired("in")
	_ = reprojectCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(reprojectCmd)
}
