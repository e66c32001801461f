package chunk

import (
	"fmt"
	"strings"
	"testing"
)

// reconstruct re-assembles chunks by stripping the carried overlap prefix
// from each chunk after the first. Every chunk begins with the tail of its
// predecessor, so the strip length is the longest k up to the configured
// overlap where the previous chunk's k-byte suffix prefixes the current one.
func reconstruct(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := chunks[0]
	prev := chunks[0]
	for _, c := range chunks[1:] {
		k := overlap
		if k > len(prev) {
			k = len(prev)
		}
		if k > len(c) {
			k = len(c)
		}
		for k > 0 && prev[len(prev)-k:] != c[:k] {
			k--
		}
		out += c[k:]
		prev = c
	}
	return out
}

// numberedText builds deterministic prose with unique sentences so the
// reconstruction check cannot match overlaps by coincidence.
func numberedText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %04d talks about deployment step %d. ", i, i%7)
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), " \n")
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"explicit", Options{ChunkSize: 500, ChunkOverlap: 50}, false},
		{"size below default overlap", Options{ChunkSize: 100}, false},
		{"no overlap", Options{ChunkSize: 100, ChunkOverlap: NoOverlap}, false},
		{"overlap equals size", Options{ChunkSize: 100, ChunkOverlap: 100}, true},
		{"overlap exceeds size", Options{ChunkSize: 100, ChunkOverlap: 200}, true},
		{"negative size", Options{ChunkSize: -1}, true},
		{"negative overlap", Options{ChunkSize: 100, ChunkOverlap: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%+v) error = %v, wantErr %v", tt.opts, err, tt.wantErr)
			}
		})
	}
}

func TestNew_DefaultOverlap(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want int
	}{
		{"all defaults", Options{}, DefaultChunkOverlap},
		{"size only", Options{ChunkSize: 500}, DefaultChunkOverlap},
		{"small size scales down", Options{ChunkSize: 100}, 20},
		{"explicit overlap", Options{ChunkSize: 500, ChunkOverlap: 50}, 50},
		{"no overlap", Options{ChunkSize: 200, ChunkOverlap: NoOverlap}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MustNew(tt.opts).ChunkOverlap(); got != tt.want {
				t.Errorf("ChunkOverlap() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	s := MustNew(Options{})
	if got := s.Split(""); len(got) != 0 {
		t.Errorf("Split(\"\") = %d chunks, want 0", len(got))
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := MustNew(Options{})
	text := "A short paragraph that easily fits in one chunk."
	got := s.Split(text)
	if len(got) != 1 || got[0] != text {
		t.Errorf("Split(short) = %q, want single chunk equal to input", got)
	}
}

func TestSplit_SizeBound(t *testing.T) {
	s := MustNew(Options{ChunkSize: 120, ChunkOverlap: 30})
	text := numberedText(80)

	for i, c := range s.Split(text) {
		if len(c) > 120 {
			t.Errorf("chunk %d has length %d, want <= 120", i, len(c))
		}
	}
}

func TestSplit_Reconstruction(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		text string
	}{
		{"defaults prose", Options{}, numberedText(120)},
		{"small chunks", Options{ChunkSize: 150, ChunkOverlap: 40}, numberedText(60)},
		{"no overlap", Options{ChunkSize: 200, ChunkOverlap: NoOverlap}, numberedText(60)},
		{"indivisible token", Options{ChunkSize: 100, ChunkOverlap: 20}, strings.Repeat("x", 950)},
		{"trailing separator", Options{ChunkSize: 80, ChunkOverlap: 10}, "first line\nsecond line\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := MustNew(tt.opts)
			chunks := s.Split(tt.text)
			if got := reconstruct(chunks, s.ChunkOverlap()); got != tt.text {
				t.Errorf("reconstruction mismatch:\n got %d bytes\nwant %d bytes", len(got), len(tt.text))
			}
		})
	}
}

func TestSplit_ForceSplitLongToken(t *testing.T) {
	s := MustNew(Options{ChunkSize: 100, ChunkOverlap: 20})
	token := strings.Repeat("a", 350) // no separator anywhere

	chunks := s.Split(token)
	if len(chunks) < 2 {
		t.Fatalf("expected character-level force split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has length %d, want <= 100", i, len(c))
		}
	}
	if got := reconstruct(chunks, 20); got != token {
		t.Errorf("force-split reconstruction mismatch: got %d bytes, want %d", len(got), len(token))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s := MustNew(Options{})
	text := numberedText(100)

	first := s.Split(text)
	second := s.Split(text)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplit_OverlapCarried(t *testing.T) {
	// numberedText inserts a paragraph break every fifth sentence, so this
	// covers overlap carry across paragraph boundaries as well as within
	// one run of sentences.
	s := MustNew(Options{ChunkSize: 150, ChunkOverlap: 40})
	chunks := s.Split(numberedText(40))
	if len(chunks) < 2 {
		t.Fatal("need at least two chunks to observe overlap")
	}

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if len(prev) < 40 {
			t.Fatalf("chunk %d shorter than the overlap: %d bytes", i-1, len(prev))
		}
		if !strings.HasPrefix(cur, prev[len(prev)-40:]) {
			t.Errorf("chunk %d does not start with the 40-byte tail of chunk %d:\nprev tail %q\ncur %q",
				i, i-1, prev[len(prev)-40:], cur)
		}
	}
}

func TestSplit_TwentyFiveHundredChars(t *testing.T) {
	// The canonical ingestion shape: 2500 characters at size 1000 /
	// overlap 200 must produce exactly 3 chunks.
	s := MustNew(Options{ChunkSize: 1000, ChunkOverlap: 200})
	var b strings.Builder
	for i := 0; b.Len() < 2500; i++ {
		fmt.Fprintf(&b, "Deployment step %03d configures the cluster node. ", i)
	}
	text := b.String()[:2500]

	chunks := s.Split(text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d has length %d, want <= 1000", i, len(c))
		}
	}
	if got := reconstruct(chunks, 200); got != text {
		t.Error("2500-char reconstruction mismatch")
	}
}

func TestCreateDocumentChunks(t *testing.T) {
	s := MustNew(Options{ChunkSize: 200, ChunkOverlap: 50})
	meta := Metadata{Source: "week-1/overview.md", Week: "week-1", Filename: "overview"}

	chunks := s.CreateDocumentChunks(numberedText(20), meta)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, c := range chunks {
		wantID := fmt.Sprintf("week-1/overview.md-chunk-%d", i)
		if c.ID != wantID {
			t.Errorf("chunk %d id = %q, want %q", i, c.ID, wantID)
		}
		if c.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, c.Metadata.ChunkIndex)
		}
		if c.Metadata.TotalChunks != len(chunks) {
			t.Errorf("chunk %d totalChunks = %d, want %d", i, c.Metadata.TotalChunks, len(chunks))
		}
		if c.Metadata.Week != "week-1" || c.Metadata.Filename != "overview" {
			t.Errorf("chunk %d lost source metadata: %+v", i, c.Metadata)
		}
	}
}

func TestCreateDocumentChunks_DefaultSource(t *testing.T) {
	s := MustNew(Options{})
	chunks := s.CreateDocumentChunks("tiny", Metadata{})
	if len(chunks) != 1 || chunks[0].ID != "doc-chunk-0" {
		t.Errorf("got %+v, want single doc-chunk-0", chunks)
	}
}

func TestSplitDocuments_PreservesOrder(t *testing.T) {
	s := MustNew(Options{ChunkSize: 100, ChunkOverlap: 20})
	docs := []Document{
		{Text: numberedText(10), Metadata: Metadata{Source: "a.md"}},
		{Text: numberedText(10), Metadata: Metadata{Source: "b.md"}},
	}

	all := s.SplitDocuments(docs)
	seenB := false
	for _, c := range all {
		if c.Metadata.Source == "b.md" {
			seenB = true
		}
		if seenB && c.Metadata.Source == "a.md" {
			t.Fatal("chunks from a.md appeared after b.md")
		}
	}
	if !seenB {
		t.Fatal("no chunks from b.md")
	}
}

func TestCalculateChunkSize(t *testing.T) {
	if got := CalculateChunkSize(500); got != 1250 {
		t.Errorf("CalculateChunkSize(500) = %d, want 1250", got)
	}
	if got := CalculateChunkSize(0); got != 1250 {
		t.Errorf("CalculateChunkSize(0) = %d, want default 1250", got)
	}
}

func TestSplitStats(t *testing.T) {
	s := MustNew(Options{ChunkSize: 150, ChunkOverlap: 30})
	text := numberedText(40)

	st := s.SplitStats(text)
	if st.TotalChunks == 0 {
		t.Fatal("expected chunks in stats")
	}
	if st.TotalCharacters != len(text) {
		t.Errorf("TotalCharacters = %d, want %d", st.TotalCharacters, len(text))
	}
	if st.MinChunkLength > st.AvgChunkLength || st.AvgChunkLength > st.MaxChunkLength {
		t.Errorf("inconsistent stats: %+v", st)
	}
	if st.MaxChunkLength > 150 {
		t.Errorf("MaxChunkLength = %d, want <= 150", st.MaxChunkLength)
	}

	empty := s.SplitStats("")
	if empty.TotalChunks != 0 || empty.TotalCharacters != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}
