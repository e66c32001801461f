// Package chunk splits documents into overlapping text segments for embedding.
//
// The splitter walks an ordered separator list (paragraph, line, sentence
// end, word) and recursively re-splits any piece still longer than the chunk
// size with the next separator, falling back to character-level splitting.
// Separators stay attached to the preceding piece, so concatenating the
// produced chunks after stripping the carried overlap reproduces the source
// text exactly. This exactness is relied on by ingestion round-trip checks;
// do not add trimming here.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// Default splitting parameters. Sizes are in bytes; documents are UTF-8 and
// character-level splits never cut a rune in half.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// NoOverlap disables the carried overlap. A zero-valued ChunkOverlap
// selects the default instead.
const NoOverlap = -1

// DefaultSeparators is the priority-ordered separator list: paragraph break,
// line break, sentence ends, clause break, word break, then character level.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " ", ""}

// ErrOverlapTooLarge indicates ChunkOverlap >= ChunkSize.
var ErrOverlapTooLarge = errors.New("chunk overlap must be smaller than chunk size")

// Options configures a Splitter. Zero values take defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// Splitter splits text into chunks of at most ChunkSize bytes with
// ChunkOverlap bytes carried between adjacent chunks.
//
// Splitter is immutable after construction and safe for concurrent use.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New creates a Splitter, applying defaults for zero-valued options.
func New(opts Options) (*Splitter, error) {
	size := opts.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}

	overlap := opts.ChunkOverlap
	switch {
	case overlap == NoOverlap:
		overlap = 0
	case overlap == 0:
		overlap = DefaultChunkOverlap
		if overlap >= size {
			// Keep the default 5:1 size-to-overlap ratio for small sizes.
			overlap = size / 5
		}
	case overlap < 0:
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", opts.ChunkOverlap)
	case overlap >= size:
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrOverlapTooLarge, overlap, size)
	}

	seps := opts.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}

	return &Splitter{
		chunkSize:    size,
		chunkOverlap: overlap,
		separators:   append([]string(nil), seps...),
	}, nil
}

// MustNew is New but panics on invalid options. For use with constant options.
func MustNew(opts Options) *Splitter {
	s, err := New(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// ChunkSize returns the configured maximum chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap carried between chunks.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split splits text into ordered chunks. Empty input yields no chunks.
// The result is deterministic for identical input and options.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	return s.merge(s.fragment(text, s.separators))
}

// fragment recursively splits text into ordered pieces no longer than
// chunkSize, separators kept attached. Merging happens afterwards in one
// pass over the whole sequence, so the overlap carry crosses paragraph
// and recursion boundaries.
func (s *Splitter) fragment(text string, separators []string) []string {
	sep, rest := chooseSeparator(text, separators)
	pieces := splitKeepSeparator(text, sep)

	var out []string
	for _, piece := range pieces {
		switch {
		case len(piece) <= s.chunkSize:
			out = append(out, piece)
		case len(rest) == 0:
			// No separator applies: force-split at character level.
			out = append(out, splitRunes(piece)...)
		default:
			out = append(out, s.fragment(piece, rest)...)
		}
	}
	return out
}

// merge greedily joins pieces up to chunkSize, carrying the last
// chunkOverlap bytes of each emitted chunk into the start of the next.
// The carried prefix shrinks when needed so a merged chunk never exceeds
// chunkSize (every incoming piece is already <= chunkSize here).
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > s.chunkSize {
			chunks = append(chunks, current.String())
			ov := s.chunkOverlap
			if max := s.chunkSize - len(piece); ov > max {
				ov = max
			}
			carried := tail(current.String(), ov)
			current.Reset()
			current.WriteString(carried)
		}
		current.WriteString(piece)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// chooseSeparator picks the first separator present in text and returns it
// with the lower-priority remainder. The empty separator always matches.
func chooseSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	// Nothing matched: fall through to the last separator with no remainder.
	if len(separators) == 0 {
		return "", nil
	}
	return separators[len(separators)-1], nil
}

// splitKeepSeparator splits text on sep, keeping sep attached to the end of
// each piece so that concatenation reproduces text exactly.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		return splitRunes(text)
	}
	pieces := strings.SplitAfter(text, sep)
	// SplitAfter yields a trailing empty piece when text ends with sep.
	if n := len(pieces); n > 0 && pieces[n-1] == "" {
		pieces = pieces[:n-1]
	}
	return pieces
}

// splitRunes splits text into single-character pieces on rune boundaries.
func splitRunes(text string) []string {
	pieces := make([]string, 0, len(text))
	for _, r := range text {
		pieces = append(pieces, string(r))
	}
	return pieces
}

// tail returns the last n bytes of str, shortened to the nearest rune
// boundary so the overlap never starts mid-rune and never exceeds n.
func tail(str string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(str) {
		return str
	}
	start := len(str) - n
	for start < len(str) && !isRuneStart(str[start]) {
		start++
	}
	return str[start:]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
