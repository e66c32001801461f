// Package search answers natural-language queries against the vector
// index. It embeds the query, ranks stored chunks by cosine similarity,
// and renders results either as structured values or as a context block
// ready for prompt injection.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/coursekb/coursekb/internal/vector"
)

// DefaultTopK is how many results a search returns unless overridden.
const DefaultTopK = 5

// RelatedMinScore gates GetRelatedDocuments to moderately related chunks.
const RelatedMinScore = 0.5

// EmptyContextMessage is returned by SearchKnowledgeAsContext when no
// result clears the score threshold. Callers compare against it.
const EmptyContextMessage = "No relevant information found in the knowledge base."

// contextSeparator joins rendered result blocks.
const contextSeparator = "\n\n---\n\n"

// Embedder produces one query embedding. *embedding.Service satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index runs ranked similarity queries. *vector.Store satisfies it.
type Index interface {
	Query(ctx context.Context, embedding []float32, topK int, filter map[string]string) ([]vector.Match, error)
}

// Result is one scored chunk. Metadata fields missing from the stored
// record come back as "unknown" rather than empty.
type Result struct {
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	Source     string  `json:"source"`
	Week       string  `json:"week"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunkIndex"`
}

// Options tunes a single search. The zero value means TopK results
// (default 5) with no score threshold and no metadata filter.
type Options struct {
	TopK     int
	MinScore float32
	Filter   map[string]string
}

// Engine is the read path of the knowledge base.
type Engine struct {
	embedder Embedder
	index    Index
	logger   *slog.Logger
}

// New creates an Engine. Both collaborators are required.
func New(embedder Embedder, index Index, logger *slog.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, index: index, logger: logger}, nil
}

// SearchKnowledge embeds the query, runs a ranked similarity query, and
// keeps results scoring at or above opts.MinScore. Output order is the
// index's descending-similarity order; filtering only removes entries.
func (e *Engine) SearchKnowledge(ctx context.Context, query string, opts Options) ([]Result, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryEmbedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embedding query: %w", err)
	}

	matches, err := e.index.Query(ctx, queryEmbedding, topK, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("search: querying index: %w", err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Score < opts.MinScore {
			continue
		}
		results = append(results, Result{
			Text:       m.Metadata.Text,
			Score:      m.Score,
			Source:     orUnknown(m.Metadata.Source),
			Week:       orUnknown(m.Metadata.Week),
			Filename:   orUnknown(m.Metadata.Filename),
			ChunkIndex: m.Metadata.ChunkIndex,
		})
	}

	e.logger.Debug("knowledge search", "query", query, "topK", topK, "results", len(results))
	return results, nil
}

// SearchKnowledgeAsContext renders search results as a numbered context
// block for prompt injection, or EmptyContextMessage when nothing matches.
func (e *Engine) SearchKnowledgeAsContext(ctx context.Context, query string, opts Options) (string, error) {
	results, err := e.SearchKnowledge(ctx, query, opts)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return EmptyContextMessage, nil
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		header := fmt.Sprintf("[%d] Source: %s (%s) | Score: %.3f", i+1, r.Source, r.Week, r.Score)
		blocks[i] = header + "\n" + strings.TrimSpace(r.Text)
	}
	return strings.Join(blocks, contextSeparator), nil
}

// SearchByWeek restricts a search to chunks from one course week.
func (e *Engine) SearchByWeek(ctx context.Context, query, week string, topK int) ([]Result, error) {
	return e.SearchKnowledge(ctx, query, Options{
		TopK:   topK,
		Filter: map[string]string{"week": week},
	})
}

// MultiQuerySearch runs one search per query sequentially, deduplicates by
// exact text (the first occurrence keeps its score), and re-sorts the
// merged set by descending score. This is the only path that re-ranks
// across queries.
func (e *Engine) MultiQuerySearch(ctx context.Context, queries []string, topKPerQuery int) ([]Result, error) {
	var merged []Result
	seen := make(map[string]bool)

	for _, query := range queries {
		results, err := e.SearchKnowledge(ctx, query, Options{TopK: topKPerQuery})
		if err != nil {
			return nil, fmt.Errorf("multi-query search %q: %w", query, err)
		}
		for _, r := range results {
			if seen[r.Text] {
				continue
			}
			seen[r.Text] = true
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged, nil
}

// GetRelatedDocuments finds chunks related to a piece of source text, for
// "see also" surfaces. It requests one extra result so callers can drop a
// likely self-match, and only returns moderately related chunks.
func (e *Engine) GetRelatedDocuments(ctx context.Context, sourceText string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return e.SearchKnowledge(ctx, sourceText, Options{
		TopK:     topK + 1,
		MinScore: RelatedMinScore,
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
