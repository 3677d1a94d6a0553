package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/sells-group/landcover-cli/internal/labels"
	"github.com/sells-group/landcover-cli/internal/normalize"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Inspect the category vocabulary",
}

var vocabShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective vocabulary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("vocab")
		asYAML, _ := cmd.Flags().GetBool("yaml")

		v, err := loadVocabulary(path)
		if err != nil {
			return err
		}
		if asYAML {
			out, err := v.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}
		renderVocabulary(cmd.OutOrStdout(), v)
		return nil
	},
}

var vocabCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the vocabulary and optionally a normalized label file against it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("vocab")
		in, _ := cmd.Flags().GetString("labels")

		v, err := loadVocabulary(path)
		if err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			return err
		}
		if in == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Vocabulary OK")
			return nil
		}

		src, err := labels.Read(cmd.Context(), in, labels.ReadOptions{})
		if err != nil {
			return err
		}
		coll, err := labels.FromSource(src)
		if err != nil {
			return err
		}
		if err := normalize.Verify(coll, v); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d features, all categories canonical\n", in, coll.Len())
		return nil
	},
}

// renderVocabulary prints the rule table: one row per canonical category and
// the raw values that fold into it, then the drop-list.
func renderVocabulary(w io.Writer, v *normalize.Vocabulary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"Category", "Synonyms"})

	folds := make(map[string][]string)
	for _, from := range slices.Sorted(maps.Keys(v.Synonyms)) {
		to := v.Synonyms[from]
		folds[to] = append(folds[to], from)
	}
	for _, c := range v.Canonical() {
		tw.AppendRow(table.Row{c, strings.Join(folds[c], ", ")})
	}
	tw.Render()

	drops := make([]string, len(v.Drop))
	for i, d := range v.Drop {
		drops[i] = fmt.Sprintf("%q", d)
	}
	fmt.Fprintf(w, "Dropped: %s\n", strings.Join(drops, ", "))
	fmt.Fprintf(w, "Sentinel: %s\n", v.Sentinel)
}

func init() {
	vocabCmd.PersistentFlags().String("vocab", "", "vocabulary YAML (default from config, else built in)")
	vocabShowCmd.Flags().Bool("yaml", false, "print as YAML")
	vocabCheckCmd.Flags().String("labels", "", "normalized label file to verify")

	vocabCmd.AddCommand(vocabShowCmd, vocabCheckCmd)
	rootCmd.AddCommand(vocabCmd)
}
