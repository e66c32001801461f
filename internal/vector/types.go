// Package vector stores and queries fixed-dimension embeddings in
// PostgreSQL with the pgvector extension. Records are keyed by an opaque
// id and carry a flat JSONB metadata document so similarity queries can
// filter on metadata equality with the @> containment operator.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDimensionMismatch indicates an embedding whose length does not match
// the index dimension. The dimension is fixed for the lifetime of an index.
var ErrDimensionMismatch = errors.New("embedding dimension does not match index")

// Metadata describes a stored vector. The required fields are explicit;
// Extra carries any additional provider-specific keys. Everything is
// serialized flat into one JSONB document so filters address top-level keys.
type Metadata struct {
	Text        string
	Source      string
	Week        string
	Filename    string
	ChunkIndex  int
	TotalChunks int
	CreatedAt   time.Time
	Extra       map[string]string
}

// reserved JSONB keys owned by the struct fields.
var reservedKeys = map[string]bool{
	"text": true, "source": true, "week": true, "filename": true,
	"chunkIndex": true, "totalChunks": true, "createdAt": true,
}

// Validate rejects metadata whose extension map collides with a required
// field. Called at ingestion time.
func (m Metadata) Validate() error {
	for k := range m.Extra {
		if reservedKeys[k] {
			return fmt.Errorf("metadata extra key %q collides with a required field", k)
		}
	}
	return nil
}

// MarshalJSON flattens the struct fields and the extension map into a
// single JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 7+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}
	out["text"] = m.Text
	out["source"] = m.Source
	out["week"] = m.Week
	out["filename"] = m.Filename
	out["chunkIndex"] = m.ChunkIndex
	out["totalChunks"] = m.TotalChunks
	if !m.CreatedAt.IsZero() {
		out["createdAt"] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object back into required fields and
// the extension map. Unknown non-string values are dropped rather than
// failing the read.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(key string) string {
		var s string
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &s)
		}
		return s
	}
	num := func(key string) int {
		var n int
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &n)
		}
		return n
	}

	m.Text = str("text")
	m.Source = str("source")
	m.Week = str("week")
	m.Filename = str("filename")
	m.ChunkIndex = num("chunkIndex")
	m.TotalChunks = num("totalChunks")
	if ts := str("createdAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			m.CreatedAt = t
		}
	}

	m.Extra = nil
	for k, v := range raw {
		if reservedKeys[k] {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]string)
		}
		m.Extra[k] = s
	}
	return nil
}

// Record is one vector row: a unique id, its embedding, and metadata.
type Record struct {
	ID        string
	Embedding []float32
	Metadata  Metadata
}

// Match is one ranked query result. Score is cosine similarity in [-1, 1].
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Stats describes the index for observability. No behavioral contract.
type Stats struct {
	Count     int64
	Dimension int
	Fullness  float64
}
