package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base and search behavior statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Vectors != nil {
				vs, err := a.Vectors.Stats(ctx)
				if err != nil {
					return fmt.Errorf("reading index stats: %w", err)
				}
				fmt.Fprintf(out, "Vector index:\n")
				fmt.Fprintf(out, "  vectors:   %d\n", vs.Count)
				fmt.Fprintf(out, "  dimension: %d\n", vs.Dimension)
			} else {
				fmt.Fprintln(out, "Vector index: unavailable")
			}

			ts := a.Tracker.Stats()
			fmt.Fprintf(out, "Search behavior:\n")
			fmt.Fprintf(out, "  queries:            %d\n", ts.TotalQueries)
			fmt.Fprintf(out, "  avg searches/query: %.2f\n", ts.AvgSearchesPerQuery)
			fmt.Fprintf(out, "  multi-search rate:  %.1f%%\n", ts.MultiSearchRate*100)
			fmt.Fprintf(out, "  no-search rate:     %.1f%%\n", ts.NoSearchRate*100)
			fmt.Fprintf(out, "  context completion: %.1f%%\n", ts.ContextCompletionRate*100)
			return nil
		},
	}
}
