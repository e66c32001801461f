package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// UpsertBatchSize is how many records go into one database round-trip.
// Each batch is fully applied before the next one is issued.
const UpsertBatchSize = 100

// Querier is the database surface Store needs. *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const upsertSQL = `INSERT INTO vectors (id, embedding, metadata, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`

// Cosine similarity is 1 minus pgvector's cosine distance. Ordering by the
// raw distance lets the index drive the scan; similarity is derived per row.
const querySQL = `SELECT id, metadata, 1 - (embedding <=> $1) AS similarity
	FROM vectors
	ORDER BY embedding <=> $1
	LIMIT $2`

const queryFilteredSQL = `SELECT id, metadata, 1 - (embedding <=> $1) AS similarity
	FROM vectors
	WHERE metadata @> $2
	ORDER BY embedding <=> $1
	LIMIT $3`

// Store manages vector records in PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db        Querier
	dimension int
	logger    *slog.Logger
}

// New creates a Store bound to a fixed embedding dimension. Every write
// and query embedding must match it or the call fails before reaching the
// database.
func New(db Querier, dimension int, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database querier is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dimension: dimension, logger: logger}, nil
}

// Upsert writes records in batches of UpsertBatchSize, overwriting any
// existing record with the same id. Records in a batch become queryable
// only once the whole call returns; a failure aborts at the failing batch.
func (s *Store) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record %d has empty id", i)
		}
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("record %q: %w: got %d, want %d", r.ID, ErrDimensionMismatch, len(r.Embedding), s.dimension)
		}
		if err := r.Metadata.Validate(); err != nil {
			return fmt.Errorf("record %q: %w", r.ID, err)
		}
	}

	for start := 0; start < len(records); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}

		batch := &pgx.Batch{}
		for _, r := range records[start:end] {
			metadataJSON, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling metadata for %q: %w", r.ID, err)
			}
			createdAt := r.Metadata.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			vec := pgvector.NewVector(r.Embedding)
			batch.Queue(upsertSQL, r.ID, &vec, metadataJSON, createdAt)
		}

		if err := s.sendBatch(ctx, batch); err != nil {
			return fmt.Errorf("vector upsert batch %d-%d: %w", start, end, err)
		}
	}

	s.logger.Debug("upserted vectors", "count", len(records))
	return nil
}

// sendBatch executes a batch and drains every result so errors surface.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.db.SendBatch(ctx, batch)
	defer func() {
		_ = br.Close()
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

// Query returns up to topK records ranked by descending cosine similarity
// to the given embedding. A non-empty filter restricts results to records
// whose metadata contains every given key/value pair.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filter map[string]string) ([]Match, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("vector query: %w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dimension)
	}
	if topK < 1 {
		return nil, fmt.Errorf("vector query: topK must be positive, got %d", topK)
	}

	vec := pgvector.NewVector(embedding)

	var rows pgx.Rows
	var err error
	if len(filter) > 0 {
		// Filter JSON always comes from json.Marshal, and the containment
		// operator runs through a bind parameter, so no injection path.
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("vector query: marshaling filter: %w", marshalErr)
		}
		rows, err = s.db.Query(ctx, queryFilteredSQL, &vec, filterJSON, topK)
	} else {
		rows, err = s.db.Query(ctx, querySQL, &vec, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id string
		var metadataJSON []byte
		var similarity float64
		if err := rows.Scan(&id, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("vector query: scanning row: %w", err)
		}

		var meta Metadata
		if err := json.Unmarshal(metadataJSON, &meta); err != nil {
			s.logger.Warn("failed to parse vector metadata", "id", id, "error", err)
		}
		matches = append(matches, Match{ID: id, Score: float32(similarity), Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return matches, nil
}

// Delete removes records by id. Unknown ids are no-ops.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM vectors WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	s.logger.Debug("deleted vectors", "count", len(ids))
	return nil
}

// DeleteAll irreversibly clears the index.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `TRUNCATE vectors`); err != nil {
		return fmt.Errorf("vector delete all: %w", err)
	}
	s.logger.Info("cleared vector index")
	return nil
}

// Stats reports index size for observability. Fullness is always 0 on
// PostgreSQL; the field exists for parity with capacity-bounded indexes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM vectors`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("vector stats: %w", err)
	}
	return Stats{Count: count, Dimension: s.dimension}, nil
}
