// Package embedding turns text into fixed-dimension vectors via a Genkit
// embedder, batching large inputs within the provider's request limit.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

const (
	// Dimension is the fixed embedding dimension. It must match the
	// vector(768) column of the index; every write and read fails
	// otherwise.
	Dimension = 768

	// MaxBatchSize is the provider's request limit. EmbedBatch splits
	// larger inputs into sequential sub-batches of this size.
	MaxBatchSize = 100
)

var (
	// ErrEmptyInput indicates blank text was passed to an embed call.
	ErrEmptyInput = errors.New("text must not be blank")

	// ErrDimensionMismatch indicates two vectors of different lengths.
	ErrDimensionMismatch = errors.New("vectors must have the same length")
)

// Service generates embeddings through a Genkit ai.Embedder.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Service. The embedder is required; a nil logger falls back
// to slog.Default().
func New(embedder ai.Embedder, logger *slog.Logger) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, logger: logger}, nil
}

// Embed generates a Dimension-length vector for text.
// Returns ErrEmptyInput for blank text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vecs, err := s.embedDocs(ctx, []*ai.Document{ai.DocumentFromText(text, nil)})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch generates one vector per input text, in input order.
//
// Inputs beyond MaxBatchSize are embedded in sequential sub-batches. The
// call is all-or-nothing: a failure in any sub-batch aborts the whole call
// and no partial result is returned. Blank texts are rejected up front so
// output positions always pair with input positions.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", ErrEmptyInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text at position %d", ErrEmptyInput, i)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		docs := make([]*ai.Document, 0, end-start)
		for _, t := range texts[start:end] {
			docs = append(docs, ai.DocumentFromText(t, nil))
		}

		vecs, err := s.embedDocs(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}

	s.logger.Debug("embedded batch", "texts", len(texts))
	return out, nil
}

// embedDocs issues one provider call and validates the response shape.
func (s *Service) embedDocs(ctx context.Context, docs []*ai.Document) ([][]float32, error) {
	dim := int32(Dimension)
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(docs) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Embeddings), len(docs))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != Dimension {
			return nil, fmt.Errorf("provider returned %d-dimension embedding, want %d", len(e.Embedding), Dimension)
		}
		vecs[i] = e.Embedding
	}
	return vecs, nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// It is symmetric, returns 1 for any nonzero vector with itself, and 0
// when either vector has zero norm. Vectors of different lengths produce
// ErrDimensionMismatch.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, nil
	}
	return float32(dot / denom), nil
}
