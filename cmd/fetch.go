package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/landcover-cli/internal/fetcher"
	"github.com/sells-group/landcover-cli/internal/resilience"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Download imagery or label archives over HTTP(S) or FTP",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		extract, _ := cmd.Flags().GetBool("extract")
		shapefiles, _ := cmd.Flags().GetBool("shapefile")

		var exts []string
		if shapefiles {
			extract = true
			exts = fetcher.ShapefileExts
		}

		paths, err := fetcher.Mirror(cmd.Context(), newRouter(), args, fetcher.MirrorOptions{
			Dir:         out,
			Concurrency: cfg.Fetch.Concurrency,
			Extract:     extract,
			ExtractExts: exts,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

// newRouter builds the HTTP and FTP fetchers from the fetch config.
func newRouter() fetcher.Router {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return fetcher.Router{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Fetch.UserAgent,
			Timeout:     timeout,
			Retry:       resilience.FromRetryConfig(cfg.Fetch.MaxRetries, 0, 0),
			RatePerHost: rate.Limit(cfg.Fetch.RatePerHost),
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}
}

func init() {
	fetchCmd.Flags().String("out", "downloads", "output directory")
	fetchCmd.Flags().Bool("extract", false, "unpack .zip downloads")
	fetchCmd.Flags().Bool("shapefile", false, "unpack only shapefile members (.shp .shx .dbf .prj .cpg) of .zip downloads")
	rootCmd.AddCommand(fetchCmd)
}
