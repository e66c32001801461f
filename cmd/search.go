package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coursekb/coursekb/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		week      string
		topK      int
		minScore  float32
		asContext bool
		related   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query> [query...]",
		Short: "Search the knowledge base",
		Long: `Searches the vector index for the given query. With multiple
queries the results are merged, de-duplicated and re-ranked by score.
--context prints the results as a single formatted context block,
--related treats the query text as a document and finds its neighbors.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireRetrieval(a); err != nil {
				return err
			}

			switch {
			case related:
				results, err := a.Search.GetRelatedDocuments(ctx, args[0], topK)
				if err != nil {
					return err
				}
				printResults(out, results)

			case asContext:
				context, err := a.Search.SearchKnowledgeAsContext(ctx, args[0], search.Options{
					TopK:     topK,
					MinScore: minScore,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, context)

			case len(args) > 1:
				results, err := a.Search.MultiQuerySearch(ctx, args, topK)
				if err != nil {
					return err
				}
				printResults(out, results)

			case week != "":
				results, err := a.Search.SearchByWeek(ctx, args[0], week, topK)
				if err != nil {
					return err
				}
				printResults(out, results)

			default:
				results, err := a.Search.SearchKnowledge(ctx, args[0], search.Options{
					TopK:     topK,
					MinScore: minScore,
				})
				if err != nil {
					return err
				}
				printResults(out, results)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&week, "week", "", "restrict results to one week (e.g. week-3)")
	cmd.Flags().IntVar(&topK, "top-k", search.DefaultTopK, "maximum number of results")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "minimum similarity score to keep")
	cmd.Flags().BoolVar(&asContext, "context", false, "print results as one context block")
	cmd.Flags().BoolVar(&related, "related", false, "find documents related to the query text")
	return cmd
}

func printResults(w io.Writer, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.3f] %s", i+1, r.Score, r.Source)
		if r.Week != "" {
			fmt.Fprintf(w, " (%s)", r.Week)
		}
		fmt.Fprintf(w, "\n   %s\n", snippet(r.Text, 160))
	}
}

// snippet truncates s to at most n bytes on a rune boundary.
func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n] + "..."
}
