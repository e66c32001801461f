package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coursekb/coursekb/internal/chunk"
	"github.com/coursekb/coursekb/internal/ingest"
)

// weekDirPattern matches course week directories like "week-1".
var weekDirPattern = regexp.MustCompile(`^week-\d+$`)

func newIngestCmd() *cobra.Command {
	var (
		showProgress bool
		clearFirst   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <directory>",
		Short: "Ingest course material into the knowledge base",
		Long: `Walks the given directory for markdown files, splits them into
chunks, embeds the chunks and stores the vectors. Files under week-N
directories are tagged with that week so searches can filter on it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := requireRetrieval(a); err != nil {
				return err
			}

			docs, err := collectDocuments(args[0])
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no markdown files found under %s", args[0])
			}

			if clearFirst {
				if err := a.Vectors.DeleteAll(ctx); err != nil {
					return fmt.Errorf("clearing index: %w", err)
				}
				a.Logger.Info("cleared existing vectors")
			}

			var result ingest.Result
			if showProgress {
				result = a.Pipeline.IngestDocumentsWithProgress(ctx, docs,
					func(current, total, percentage int) {
						fmt.Fprintf(cmd.OutOrStdout(), "  [%d/%d] %d%%\n", current, total, percentage)
					})
			} else {
				result = a.Pipeline.IngestDocuments(ctx, docs)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Ingested %d documents: %d chunks, %d vectors stored\n",
				result.TotalDocuments, result.TotalChunks, result.TotalVectors)
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
			}
			if !result.Success {
				return fmt.Errorf("ingestion finished with %d error(s)", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", false, "print per-document progress")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "delete all existing vectors before ingesting")
	return cmd
}

// collectDocuments reads every .md file under root into an ingest
// document. The source is the slash-separated path relative to root,
// the week is taken from the nearest week-N ancestor directory.
func collectDocuments(root string) ([]ingest.Document, error) {
	var docs []ingest.Document

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		docs = append(docs, ingest.Document{
			Text: string(data),
			Metadata: chunk.Metadata{
				Source:   rel,
				Week:     weekFromPath(rel),
				Filename: filepath.Base(path),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// weekFromPath returns the week-N path element closest to the file, or
// "" when none exists.
func weekFromPath(rel string) string {
	parts := strings.Split(rel, "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if weekDirPattern.MatchString(parts[i]) {
			return parts[i]
		}
	}
	return ""
}
