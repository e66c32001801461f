package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/coursekb/coursekb/internal/tracker"
	"github.com/coursekb/coursekb/internal/vector"
)

func newTestTool(t *testing.T, idx *fakeIndex, tr *tracker.Tracker) *Tool {
	t.Helper()
	e := newTestEngine(t, idx)
	tool, err := NewTool(e, tr, nil)
	if err != nil {
		t.Fatalf("NewTool: %v", err)
	}
	return tool
}

func TestToolExecute_AllWeeks(t *testing.T) {
	idx := &fakeIndex{responses: [][]vector.Match{{
		match("Run kubectl apply.", 0.9, "week-2/deploy.md", "week-2"),
	}}}
	tr := tracker.New(nil)
	tool := newTestTool(t, idx, tr)

	id := tr.StartTracking("chat-1", "how to deploy")
	resp := tool.Execute(context.Background(), Request{TrackingID: id, Query: "how to deploy"})

	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Message)
	}
	if resp.Message != "Found relevant information" {
		t.Errorf("message = %q", resp.Message)
	}
	if !strings.Contains(resp.Context, "Source: week-2/deploy.md (week-2)") {
		t.Errorf("context missing week annotation:\n%s", resp.Context)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "week-2/deploy.md" {
		t.Errorf("sources = %v", resp.Sources)
	}
	if len(resp.Scores) != 1 || resp.Scores[0] != 0.9 {
		t.Errorf("scores = %v", resp.Scores)
	}

	events := tr.Export()
	if len(events) != 1 || events[0].TotalSearches != 1 {
		t.Fatalf("tracker not updated: %+v", events)
	}
	attempt := events[0].Searches[0]
	if !attempt.Success || attempt.ResultsCount != 1 {
		t.Errorf("logged attempt = %+v", attempt)
	}
}

func TestToolExecute_WeekFiltered(t *testing.T) {
	idx := &fakeIndex{responses: [][]vector.Match{{
		match("Week one setup.", 0.8, "week-1/setup.md", "week-1"),
		match("More week one.", 0.7, "week-1/extra.md", "week-1"),
	}}}
	tool := newTestTool(t, idx, nil)

	resp := tool.Execute(context.Background(), Request{Query: "setup", Week: "week-1", TopK: 4})

	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Message)
	}
	if resp.Message != "Found 2 results from week-1" {
		t.Errorf("message = %q", resp.Message)
	}
	// Week-filtered rendering drops the redundant week annotation.
	if strings.Contains(resp.Context, "(week-1)") {
		t.Errorf("week-filtered context should omit week: %s", resp.Context)
	}
	if !strings.Contains(resp.Context, "[1] Source: week-1/setup.md | Score: 0.800") {
		t.Errorf("context = %s", resp.Context)
	}
	if got := idx.gotFilter[0]; got["week"] != "week-1" {
		t.Errorf("filter = %v", got)
	}
}

func TestToolExecute_WeekAll(t *testing.T) {
	idx := &fakeIndex{responses: [][]vector.Match{{
		match("anything", 0.8, "s", "week-2"),
	}}}
	tool := newTestTool(t, idx, nil)

	resp := tool.Execute(context.Background(), Request{Query: "q", Week: "all"})
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Message)
	}
	if idx.gotFilter[0] != nil {
		t.Errorf("week=all should not filter, got %v", idx.gotFilter[0])
	}
}

func TestToolExecute_NoResults(t *testing.T) {
	tool := newTestTool(t, &fakeIndex{}, nil)

	resp := tool.Execute(context.Background(), Request{Query: "ancient history"})
	if resp.Success {
		t.Error("Success = true with no results")
	}
	if resp.Message != `No relevant information found for query: "ancient history"` {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Context != "" || len(resp.Sources) != 0 {
		t.Errorf("empty result should have empty context/sources: %+v", resp)
	}

	resp = tool.Execute(context.Background(), Request{Query: "x", Week: "week-2"})
	if resp.Message != `No relevant information found in week-2 for query: "x"` {
		t.Errorf("week message = %q", resp.Message)
	}
}

func TestToolExecute_ErrorBecomesResponse(t *testing.T) {
	idx := &fakeIndex{err: errors.New("connection refused")}
	tr := tracker.New(nil)
	tool := newTestTool(t, idx, tr)

	id := tr.StartTracking("chat-1", "q")
	resp := tool.Execute(context.Background(), Request{TrackingID: id, Query: "q"})

	if resp.Success {
		t.Error("Success = true on index failure")
	}
	if !strings.HasPrefix(resp.Message, "Search failed:") {
		t.Errorf("message = %q", resp.Message)
	}

	events := tr.Export()
	if events[0].TotalSearches != 1 || events[0].Searches[0].Success {
		t.Errorf("failed search not logged: %+v", events[0])
	}
}

func TestFormatWithCitations(t *testing.T) {
	got := FormatWithCitations("some context", []string{"a.md", "b.md", "a.md"})

	want := "some context\n\n---\nSources:\n[1] a.md\n[2] b.md"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
