package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/coursekb/coursekb/internal/chunk"
	"github.com/coursekb/coursekb/internal/vector"
)

type fakeEmbedder struct {
	calls      int
	batchSizes []int
	err        error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, 768)
		vec[0] = float32(i)
		out[i] = vec
	}
	return out, nil
}

type fakeIndex struct {
	calls      int
	records    []vector.Record
	failOnCall int // 1-based call to fail on; 0 = never
}

func (f *fakeIndex) Upsert(_ context.Context, records []vector.Record) error {
	f.calls++
	if f.failOnCall > 0 && f.calls == f.failOnCall {
		return errors.New("index unavailable")
	}
	f.records = append(f.records, records...)
	return nil
}

// testText returns deterministic prose of at least n bytes with sentence
// boundaries the splitter can use.
func testText(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "Deployment step %03d configures the cluster node. ", i)
	}
	return b.String()[:n]
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder, idx *fakeIndex) *Pipeline {
	t.Helper()
	p, err := New(chunk.Options{ChunkSize: 200, ChunkOverlap: 40}, emb, idx, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var seq int
	p.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return p
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(chunk.Options{}, nil, &fakeIndex{}, nil); err == nil {
		t.Error("New without embedder should fail")
	}
	if _, err := New(chunk.Options{}, &fakeEmbedder{}, nil, nil); err == nil {
		t.Error("New without index should fail")
	}
	if _, err := New(chunk.Options{ChunkSize: 10, ChunkOverlap: 20}, &fakeEmbedder{}, &fakeIndex{}, nil); err == nil {
		t.Error("New with invalid splitter options should fail")
	}
}

func TestIngestDocument(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	p := newTestPipeline(t, emb, idx)

	meta := chunk.Metadata{Source: "week-1/setup.md", Week: "week-1", Filename: "setup"}
	ids, err := p.IngestDocument(context.Background(), testText(500), meta)
	if err != nil {
		t.Fatalf("IngestDocument: %v", err)
	}
	if len(ids) < 2 {
		t.Fatalf("got %d ids, want several chunks from 500 bytes at size 200", len(ids))
	}
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want one batched call", emb.calls)
	}
	if idx.calls != 1 {
		t.Errorf("upsert calls = %d, want 1", idx.calls)
	}
	if len(idx.records) != len(ids) {
		t.Fatalf("stored %d records for %d ids", len(idx.records), len(ids))
	}

	for i, r := range idx.records {
		if r.ID != ids[i] {
			t.Errorf("record %d id = %q, returned id = %q", i, r.ID, ids[i])
		}
		if len(r.Embedding) != 768 {
			t.Errorf("record %d embedding dimension = %d", i, len(r.Embedding))
		}
		if r.Embedding[0] != float32(i) {
			t.Errorf("record %d paired with embedding from position %v", i, r.Embedding[0])
		}
		if r.Metadata.Source != "week-1/setup.md" || r.Metadata.Week != "week-1" {
			t.Errorf("record %d metadata = %+v", i, r.Metadata)
		}
		if r.Metadata.ChunkIndex != i || r.Metadata.TotalChunks != len(ids) {
			t.Errorf("record %d position = %d/%d, want %d/%d", i, r.Metadata.ChunkIndex, r.Metadata.TotalChunks, i, len(ids))
		}
		if r.Metadata.CreatedAt.IsZero() {
			t.Errorf("record %d missing CreatedAt", i)
		}
		if r.Metadata.Text == "" {
			t.Errorf("record %d missing chunk text", i)
		}
	}
}

func TestIngestDocument_Empty(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	p := newTestPipeline(t, emb, idx)

	ids, err := p.IngestDocument(context.Background(), "", chunk.Metadata{})
	if err != nil {
		t.Fatalf("IngestDocument: %v", err)
	}
	if len(ids) != 0 || emb.calls != 0 || idx.calls != 0 {
		t.Errorf("empty document should touch nothing: ids=%d embed=%d upsert=%d", len(ids), emb.calls, idx.calls)
	}
}

func TestIngestDocuments_SingleBatch(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	p := newTestPipeline(t, emb, idx)

	docs := []Document{
		{Text: testText(400), Metadata: chunk.Metadata{Source: "week-1/a.md", Week: "week-1"}},
		{Text: testText(400), Metadata: chunk.Metadata{Source: "week-2/b.md", Week: "week-2"}},
	}
	result := p.IngestDocuments(context.Background(), docs)

	if !result.Success {
		t.Fatalf("Success = false: %v", result.Errors)
	}
	if result.TotalDocuments != 2 {
		t.Errorf("TotalDocuments = %d", result.TotalDocuments)
	}
	if result.TotalVectors != result.TotalChunks || result.TotalVectors != len(idx.records) {
		t.Errorf("counts inconsistent: %+v vs %d stored", result, len(idx.records))
	}
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want one cross-document batch", emb.calls)
	}
	if idx.calls != 1 {
		t.Errorf("upsert calls = %d, want one cross-document upsert", idx.calls)
	}

	// Document order survives into stored record order.
	firstWeek2 := -1
	for i, r := range idx.records {
		if r.Metadata.Week == "week-2" && firstWeek2 == -1 {
			firstWeek2 = i
		}
		if firstWeek2 != -1 && i > firstWeek2 && r.Metadata.Week == "week-1" {
			t.Fatal("week-1 chunk stored after week-2 chunks")
		}
	}
}

func TestIngestDocuments_EmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("quota exceeded")}
	idx := &fakeIndex{}
	p := newTestPipeline(t, emb, idx)

	result := p.IngestDocuments(context.Background(), []Document{
		{Text: testText(400), Metadata: chunk.Metadata{Source: "a"}},
	})

	if result.Success {
		t.Error("Success = true after embed failure")
	}
	if result.TotalChunks == 0 {
		t.Error("TotalChunks should report chunking progress")
	}
	if result.TotalVectors != 0 {
		t.Errorf("TotalVectors = %d, want 0", result.TotalVectors)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "quota exceeded") {
		t.Errorf("Errors = %v", result.Errors)
	}
	if idx.calls != 0 {
		t.Error("upsert should not run after embed failure")
	}
}

func TestIngestDocuments_NoDocuments(t *testing.T) {
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeIndex{})

	result := p.IngestDocuments(context.Background(), nil)
	if !result.Success || result.TotalChunks != 0 {
		t.Errorf("empty ingest = %+v", result)
	}
}

func TestIngestDocumentsWithProgress(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	p := newTestPipeline(t, emb, idx)

	docs := []Document{
		{Text: testText(300), Metadata: chunk.Metadata{Source: "a"}},
		{Text: testText(300), Metadata: chunk.Metadata{Source: "b"}},
		{Text: testText(300), Metadata: chunk.Metadata{Source: "c"}},
	}

	type tick struct{ current, total, percentage int }
	var ticks []tick
	result := p.IngestDocumentsWithProgress(context.Background(), docs, func(current, total, percentage int) {
		ticks = append(ticks, tick{current, total, percentage})
	})

	if !result.Success {
		t.Fatalf("Success = false: %v", result.Errors)
	}
	want := []tick{{1, 3, 33}, {2, 3, 66}, {3, 3, 100}}
	if len(ticks) != len(want) {
		t.Fatalf("progress ticks = %v", ticks)
	}
	for i, w := range want {
		if ticks[i] != w {
			t.Errorf("tick %d = %v, want %v", i, ticks[i], w)
		}
	}
	if emb.calls != 3 {
		t.Errorf("embed calls = %d, want one per document", emb.calls)
	}
	if result.TotalVectors != len(idx.records) {
		t.Errorf("TotalVectors = %d, stored %d", result.TotalVectors, len(idx.records))
	}
}

func TestIngestDocumentsWithProgress_PartialFailure(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{failOnCall: 2}
	p := newTestPipeline(t, emb, idx)

	docs := []Document{
		{Text: testText(300), Metadata: chunk.Metadata{Source: "keeps"}},
		{Text: testText(300), Metadata: chunk.Metadata{Source: "fails"}},
		{Text: testText(300), Metadata: chunk.Metadata{Source: "never-reached"}},
	}

	var ticks int
	result := p.IngestDocumentsWithProgress(context.Background(), docs, func(int, int, int) { ticks++ })

	if result.Success {
		t.Error("Success = true after mid-batch failure")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "fails") {
		t.Errorf("Errors = %v, want the failing document named", result.Errors)
	}
	if ticks != 1 {
		t.Errorf("progress ticks = %d, want 1 (only the first document completed)", ticks)
	}

	// The first document's vectors survive the later failure.
	if len(idx.records) == 0 {
		t.Fatal("first document's vectors were not stored")
	}
	for _, r := range idx.records {
		if r.Metadata.Source != "keeps" {
			t.Errorf("unexpected stored record from %q", r.Metadata.Source)
		}
	}
}
