package chunk

import "fmt"

// Metadata describes where a chunk came from. Required fields are explicit
// struct members; Extra carries provider-specific fields validated at
// ingestion time.
type Metadata struct {
	Source      string
	Week        string
	Filename    string
	ChunkIndex  int
	TotalChunks int
	Extra       map[string]string
}

// DocumentChunk is one bounded segment of a source document.
// Chunks are immutable once produced; ChunkIndex and TotalChunks are
// consistent within one document's chunk set.
type DocumentChunk struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Document is a source document queued for splitting or ingestion.
// ChunkIndex and TotalChunks on the metadata are ignored on input.
type Document struct {
	Text     string
	Metadata Metadata
}

// CreateDocumentChunks splits text and wraps every chunk with positional
// metadata. Chunk ids follow the "<source>-chunk-<index>" convention, with
// "doc" standing in when the source is unset.
func (s *Splitter) CreateDocumentChunks(text string, meta Metadata) []DocumentChunk {
	pieces := s.Split(text)

	source := meta.Source
	if source == "" {
		source = "doc"
	}

	chunks := make([]DocumentChunk, len(pieces))
	for i, piece := range pieces {
		m := meta
		m.ChunkIndex = i
		m.TotalChunks = len(pieces)
		chunks[i] = DocumentChunk{
			ID:       fmt.Sprintf("%s-chunk-%d", source, i),
			Text:     piece,
			Metadata: m,
		}
	}
	return chunks
}

// SplitDocuments chunks every document in order and returns the combined
// chunk list. Chunk order within and across documents is preserved.
func (s *Splitter) SplitDocuments(docs []Document) []DocumentChunk {
	var all []DocumentChunk
	for _, doc := range docs {
		all = append(all, s.CreateDocumentChunks(doc.Text, doc.Metadata)...)
	}
	return all
}

// CalculateChunkSize estimates a chunk size in bytes for a target token
// count, assuming ~2.5 bytes per token for mixed prose and code.
func CalculateChunkSize(targetTokens int) int {
	if targetTokens <= 0 {
		targetTokens = 500
	}
	return targetTokens * 5 / 2
}

// Stats summarizes how a text would split under the splitter's options.
type Stats struct {
	TotalChunks     int
	AvgChunkLength  int
	MinChunkLength  int
	MaxChunkLength  int
	TotalCharacters int
}

// SplitStats reports chunk-count and length statistics without retaining
// the chunks. Useful for sizing an ingest before running it.
func (s *Splitter) SplitStats(text string) Stats {
	pieces := s.Split(text)
	st := Stats{TotalChunks: len(pieces), TotalCharacters: len(text)}
	if len(pieces) == 0 {
		return st
	}

	total := 0
	st.MinChunkLength = len(pieces[0])
	for _, p := range pieces {
		total += len(p)
		if len(p) < st.MinChunkLength {
			st.MinChunkLength = len(p)
		}
		if len(p) > st.MaxChunkLength {
			st.MaxChunkLength = len(p)
		}
	}
	st.AvgChunkLength = total / len(pieces)
	return st
}
