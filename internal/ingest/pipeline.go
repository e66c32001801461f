// Package ingest writes documents into the vector index: chunk, embed in
// batches, upsert. Chunk order is preserved end to end, so stored vector
// order matches document order.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coursekb/coursekb/internal/chunk"
	"github.com/coursekb/coursekb/internal/vector"
)

// Embedder turns chunk texts into vectors. *embedding.Service satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index persists vector records. *vector.Store satisfies it.
type Index interface {
	Upsert(ctx context.Context, records []vector.Record) error
}

// Document is one source document queued for ingestion. ChunkIndex and
// TotalChunks on the metadata are assigned during splitting.
type Document struct {
	Text     string
	Metadata chunk.Metadata
}

// Result reports a batch ingestion. On failure the counts are best-effort
// progress markers for telemetry, not a statement of what is stored.
type Result struct {
	Success        bool     `json:"success"`
	TotalDocuments int      `json:"totalDocuments"`
	TotalChunks    int      `json:"totalChunks"`
	TotalVectors   int      `json:"totalVectors"`
	Errors         []string `json:"errors,omitempty"`
}

// ProgressFunc receives per-document progress. percentage is 0-100.
type ProgressFunc func(current, total, percentage int)

// Pipeline is the write path of the knowledge base.
type Pipeline struct {
	splitter *chunk.Splitter
	embedder Embedder
	index    Index
	logger   *slog.Logger
	newID    func() string
}

// New creates a Pipeline using the given splitter options.
func New(opts chunk.Options, embedder Embedder, index Index, logger *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	splitter, err := chunk.New(opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		index:    index,
		logger:   logger,
		newID:    uuid.NewString,
	}, nil
}

// IngestDocument chunks one document, embeds all chunks in one batched
// call, and upserts one record per chunk under a freshly generated id.
// Returns the generated ids in chunk order.
func (p *Pipeline) IngestDocument(ctx context.Context, text string, meta chunk.Metadata) ([]string, error) {
	chunks := p.splitter.CreateDocumentChunks(text, meta)
	if len(chunks) == 0 {
		return nil, nil
	}
	p.logger.Debug("document chunked", "source", meta.Source, "chunks", len(chunks))

	records, err := p.buildRecords(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := p.index.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("ingest: storing vectors: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids, nil
}

// IngestDocuments chunks across all documents first, then runs a single
// cross-document embedding batch and a single upsert. Fastest path, but a
// failure anywhere aborts the whole call; nothing from this call should be
// assumed stored when Success is false.
func (p *Pipeline) IngestDocuments(ctx context.Context, docs []Document) Result {
	result := Result{TotalDocuments: len(docs)}

	chunkDocs := make([]chunk.Document, len(docs))
	for i, d := range docs {
		chunkDocs[i] = chunk.Document{Text: d.Text, Metadata: d.Metadata}
	}
	chunks := p.splitter.SplitDocuments(chunkDocs)
	result.TotalChunks = len(chunks)
	if len(chunks) == 0 {
		result.Success = true
		return result
	}
	p.logger.Info("batch ingest started", "documents", len(docs), "chunks", len(chunks))

	records, err := p.buildRecords(ctx, chunks)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if err := p.index.Upsert(ctx, records); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("storing vectors: %v", err))
		return result
	}

	result.TotalVectors = len(records)
	result.Success = true
	p.logger.Info("batch ingest completed", "vectors", result.TotalVectors)
	return result
}

// IngestDocumentsWithProgress ingests documents one at a time, invoking
// onProgress after each. Slower than IngestDocuments, but a failure in a
// later document leaves earlier documents stored.
func (p *Pipeline) IngestDocumentsWithProgress(ctx context.Context, docs []Document, onProgress ProgressFunc) Result {
	result := Result{TotalDocuments: len(docs)}

	for i, doc := range docs {
		ids, err := p.IngestDocument(ctx, doc.Text, doc.Metadata)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("document %d (%s): %v", i, doc.Metadata.Source, err))
			return result
		}
		result.TotalChunks += len(ids)
		result.TotalVectors += len(ids)

		current := i + 1
		percentage := current * 100 / len(docs)
		if onProgress != nil {
			onProgress(current, len(docs), percentage)
		}
		p.logger.Debug("ingest progress", "current", current, "total", len(docs), "percentage", percentage)
	}

	result.Success = true
	return result
}

// buildRecords embeds chunk texts in one batched call and pairs each
// embedding with its chunk, preserving order.
func (p *Pipeline) buildRecords(ctx context.Context, chunks []chunk.DocumentChunk) ([]vector.Record, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest: embedding chunks: %w", err)
	}

	now := time.Now()
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:        p.newID(),
			Embedding: embeddings[i],
			Metadata: vector.Metadata{
				Text:        c.Text,
				Source:      c.Metadata.Source,
				Week:        c.Metadata.Week,
				Filename:    c.Metadata.Filename,
				ChunkIndex:  c.Metadata.ChunkIndex,
				TotalChunks: c.Metadata.TotalChunks,
				CreatedAt:   now,
				Extra:       c.Metadata.Extra,
			},
		}
	}
	return records, nil
}
