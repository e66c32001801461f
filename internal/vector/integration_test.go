package vector_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/coursekb/coursekb/internal/testutil"
	"github.com/coursekb/coursekb/internal/vector"
)

// unitVector returns a 768-dimension unit vector pointing along axis i, so
// cosine similarity between two of them is exactly 1 or 0.
func unitVector(axis int) []float32 {
	vec := make([]float32, 768)
	vec[axis] = 1
	return vec
}

// blend returns a unit-length mix of two axes. cos(blend(a,b,w), unit(a))
// equals w for unit-length inputs.
func blend(a, b int, w float64) []float32 {
	vec := make([]float32, 768)
	vec[a] = float32(w)
	vec[b] = float32(1 - w*w) // not normalized exactly, close enough for ordering
	return vec
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := vector.New(db.Pool, 768, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Run("upsert and query ordering", func(t *testing.T) {
		records := []vector.Record{
			{ID: "exact", Embedding: unitVector(0), Metadata: vector.Metadata{Text: "exact match", Source: "week-1/intro.md", Week: "week-1"}},
			{ID: "near", Embedding: blend(0, 1, 0.9), Metadata: vector.Metadata{Text: "near match", Source: "week-1/intro.md", Week: "week-1"}},
			{ID: "far", Embedding: unitVector(5), Metadata: vector.Metadata{Text: "unrelated", Source: "week-3/other.md", Week: "week-3"}},
		}
		if err := store.Upsert(ctx, records); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		matches, err := store.Query(ctx, unitVector(0), 3, nil)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(matches) != 3 {
			t.Fatalf("got %d matches, want 3", len(matches))
		}
		if matches[0].ID != "exact" || matches[1].ID != "near" || matches[2].ID != "far" {
			t.Errorf("order = %s, %s, %s; want exact, near, far", matches[0].ID, matches[1].ID, matches[2].ID)
		}
		for i := 1; i < len(matches); i++ {
			if matches[i].Score > matches[i-1].Score {
				t.Errorf("scores not descending: %v", matches)
			}
		}
		if matches[0].Score < 0.999 {
			t.Errorf("exact match score = %v, want ~1", matches[0].Score)
		}
		if matches[0].Metadata.Text != "exact match" || matches[0].Metadata.Week != "week-1" {
			t.Errorf("metadata lost: %+v", matches[0].Metadata)
		}
	})

	t.Run("upsert overwrites by id", func(t *testing.T) {
		rec := vector.Record{ID: "exact", Embedding: unitVector(2), Metadata: vector.Metadata{Text: "rewritten"}}
		if err := store.Upsert(ctx, []vector.Record{rec}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		matches, err := store.Query(ctx, unitVector(2), 1, nil)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if matches[0].ID != "exact" || matches[0].Metadata.Text != "rewritten" {
			t.Errorf("overwrite not applied: %+v", matches[0])
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Count != 3 {
			t.Errorf("count after overwrite = %d, want 3", stats.Count)
		}
	})

	t.Run("metadata filter", func(t *testing.T) {
		matches, err := store.Query(ctx, unitVector(0), 10, map[string]string{"week": "week-3"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(matches) != 1 || matches[0].ID != "far" {
			t.Errorf("filtered matches = %+v, want only far", matches)
		}
	})

	t.Run("batched upsert above one round-trip", func(t *testing.T) {
		n := vector.UpsertBatchSize + 50
		records := make([]vector.Record, n)
		for i := range records {
			records[i] = vector.Record{
				ID:        fmt.Sprintf("bulk-%d", i),
				Embedding: blend(3, 4, 0.5),
				Metadata:  vector.Metadata{Text: fmt.Sprintf("bulk %d", i), Week: "week-9"},
			}
		}
		if err := store.Upsert(ctx, records); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if want := int64(3 + n); stats.Count != want {
			t.Errorf("count = %d, want %d", stats.Count, want)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete(ctx, []string{"near", "no-such-id"}); err != nil {
			t.Fatalf("Delete: %v", err)
		}

		matches, err := store.Query(ctx, unitVector(0), 10, map[string]string{"week": "week-1"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		for _, m := range matches {
			if m.ID == "near" {
				t.Error("deleted record still queryable")
			}
		}
	})

	t.Run("delete all", func(t *testing.T) {
		if err := store.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Count != 0 {
			t.Errorf("count after DeleteAll = %d, want 0", stats.Count)
		}
	})
}
