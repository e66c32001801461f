package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coursekb/coursekb/internal/tracker"
)

// Request is one tool invocation. Week narrows the search to a single
// course week; empty or "all" searches everything. TrackingID ties the
// call to a tracker session; empty means untracked.
type Request struct {
	TrackingID string `json:"trackingId,omitempty"`
	Query      string `json:"query"`
	Week       string `json:"week,omitempty"`
	TopK       int    `json:"topK,omitempty"`
}

// Response is the structured result handed to the calling agent. The tool
// never returns an error: failures come back as Success=false with an
// explanatory message, so the agent can decide to proceed without context.
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Context string    `json:"context"`
	Sources []string  `json:"sources"`
	Scores  []float32 `json:"scores,omitempty"`
}

// Tool wraps the Engine for an agent-facing surface and reports every
// call to the behavior tracker.
type Tool struct {
	engine  *Engine
	tracker *tracker.Tracker
	logger  *slog.Logger
}

// NewTool creates a Tool. The tracker may be nil to disable reporting.
func NewTool(engine *Engine, tr *tracker.Tracker, logger *slog.Logger) (*Tool, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{engine: engine, tracker: tr, logger: logger}, nil
}

// Execute runs one knowledge search on behalf of the agent.
func (t *Tool) Execute(ctx context.Context, req Request) Response {
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	var results []Result
	var err error
	if req.Week != "" && req.Week != "all" {
		results, err = t.engine.SearchByWeek(ctx, req.Query, req.Week, topK)
	} else {
		results, err = t.engine.SearchKnowledge(ctx, req.Query, Options{TopK: topK})
	}
	if err != nil {
		t.logger.Error("knowledge search failed", "query", req.Query, "error", err)
		t.log(req, false, 0, nil)
		return Response{
			Success: false,
			Message: fmt.Sprintf("Search failed: %v", err),
			Context: "",
			Sources: []string{},
		}
	}

	sources := make([]string, len(results))
	scores := make([]float32, len(results))
	for i, r := range results {
		sources[i] = r.Source
		scores[i] = r.Score
	}
	t.log(req, len(results) > 0, len(results), sources)

	if len(results) == 0 {
		msg := fmt.Sprintf("No relevant information found for query: %q", req.Query)
		if req.Week != "" && req.Week != "all" {
			msg = fmt.Sprintf("No relevant information found in %s for query: %q", req.Week, req.Query)
		}
		return Response{Success: false, Message: msg, Context: "", Sources: []string{}}
	}

	var blocks []string
	if req.Week != "" && req.Week != "all" {
		// Week-filtered blocks omit the week: it is the same for every result.
		for i, r := range results {
			blocks = append(blocks, fmt.Sprintf("[%d] Source: %s | Score: %.3f\n%s", i+1, r.Source, r.Score, strings.TrimSpace(r.Text)))
		}
	} else {
		for i, r := range results {
			blocks = append(blocks, fmt.Sprintf("[%d] Source: %s (%s) | Score: %.3f\n%s", i+1, r.Source, r.Week, r.Score, strings.TrimSpace(r.Text)))
		}
	}

	msg := "Found relevant information"
	if req.Week != "" && req.Week != "all" {
		msg = fmt.Sprintf("Found %d results from %s", len(results), req.Week)
	}
	return Response{
		Success: true,
		Message: msg,
		Context: strings.Join(blocks, contextSeparator),
		Sources: sources,
		Scores:  scores,
	}
}

func (t *Tool) log(req Request, success bool, resultsCount int, sources []string) {
	if t.tracker == nil || req.TrackingID == "" {
		return
	}
	week := req.Week
	if week == "all" {
		week = ""
	}
	t.tracker.LogSearch(req.TrackingID, req.Query, success, resultsCount, sources, week, req.TopK)
}

// FormatWithCitations appends a deduplicated source list to a rendered
// context block, preserving first-appearance order.
func FormatWithCitations(context string, sources []string) string {
	seen := make(map[string]bool)
	var unique []string
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		unique = append(unique, s)
	}

	var b strings.Builder
	b.WriteString(context)
	b.WriteString("\n\n---\nSources:\n")
	for i, s := range unique {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}
