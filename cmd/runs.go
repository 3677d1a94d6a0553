package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landcover-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run ledger",
	Long:  "Commands for listing, viewing, and summarizing normalize, visualize, clip and export runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Kind:   store.RunKind(kind),
			Status: store.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run counts per kind",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("kind", "", "filter by kind (normalize, visualize, raster_clip, export)")
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// kindStats counts the runs of one kind.
type kindStats struct {
	Kind       store.RunKind
	Total      int
	Complete   int
	Failed     int
	AvgDurSecs float64
}

// computeRunStats groups runs by kind, sorted by kind name.
func computeRunStats(runs []store.Run) []kindStats {
	byKind := make(map[store.RunKind]*kindStats)
	durs := make(map[store.RunKind]time.Duration)
	for _, r := range runs {
		s, ok := byKind[r.Kind]
		if !ok {
			s = &kindStats{Kind: r.Kind}
			byKind[r.Kind] = s
		}
		s.Total++
		switch r.Status {
		case store.RunStatusComplete:
			s.Complete++
			durs[r.Kind] += r.UpdatedAt.Sub(r.CreatedAt)
		case store.RunStatusFailed:
			s.Failed++
		}
	}

	out := make([]kindStats, 0, len(byKind))
	for k, s := range byKind {
		if s.Complete > 0 {
			s.AvgDurSecs = durs[k].Seconds() / float64(s.Complete)
		}
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b kindStats) int {
		switch {
		case a.Kind < b.Kind:
			return -1
		case a.Kind > b.Kind:
			return 1
		}
		return 0
	})
	return out
}

// formatRunsList writes a table of runs to out.
func formatRunsList(out io.Writer, runs []store.Run) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"ID", "Kind", "Status", "Input", "Created", "Duration"})

	for _, r := range runs {
		input := r.Input
		if len(input) > 40 {
			input = input[:37] + "..."
		}
		tw.AppendRow(table.Row{
			truncateID(r.ID),
			r.Kind,
			r.Status,
			input,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Millisecond).String(),
		})
	}
	tw.Render()
}

// formatRunStats writes per-kind counts to out.
func formatRunStats(out io.Writer, stats []kindStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"Kind", "Total", "Complete", "Failed", "Avg duration"})

	var total int
	for _, s := range stats {
		tw.AppendRow(table.Row{s.Kind, s.Total, s.Complete, s.Failed, fmt.Sprintf("%.1fs", s.AvgDurSecs)})
		total += s.Total
	}
	tw.AppendFooter(table.Row{"", total, "", "", ""})
	tw.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
