// Package tracker records how a calling agent fetches retrieval context:
// how many searches it issues per user query, whether the first search was
// enough, and which query shapes force follow-up searches. The log is
// process-wide, capacity-bounded, and safe for concurrent use.
package tracker

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEvents bounds the event log. On overflow the log is truncated
// to the most recent max entries in one step, not evicted one at a time.
const DefaultMaxEvents = 1000

// Strategy classifies how a session resolved its context needs. It is a
// pure function of the attempt count: 0 attempts is StrategyNoSearch, 1 is
// StrategySingleSearch, 2 or more is StrategyMultiSearch.
type Strategy string

const (
	StrategyNoSearch     Strategy = "no-search"
	StrategySingleSearch Strategy = "single-search"
	StrategyMultiSearch  Strategy = "multi-search"
)

// SearchAttempt is one retrieval call made within a tracked session.
type SearchAttempt struct {
	Query        string    `json:"query"`
	Week         string    `json:"week,omitempty"`
	TopK         int       `json:"topK,omitempty"`
	Success      bool      `json:"success"`
	ResultsCount int       `json:"resultsCount"`
	Sources      []string  `json:"sources"`
	Timestamp    time.Time `json:"timestamp"`
}

// Event is one tracked user query and the searches it triggered.
type Event struct {
	SessionID         string          `json:"sessionId"`
	UserQuery         string          `json:"userQuery"`
	Searches          []SearchAttempt `json:"searches"`
	Timestamp         time.Time       `json:"timestamp"`
	TotalSearches     int             `json:"totalSearches"`
	HadMissingContext bool            `json:"hadMissingContext"`
	Strategy          Strategy        `json:"resolutionStrategy"`
}

// Stats aggregates the retained events. Rates are fractions in [0, 1].
type Stats struct {
	TotalQueries          int     `json:"totalQueries"`
	AvgSearchesPerQuery   float64 `json:"avgSearchesPerQuery"`
	MultiSearchRate       float64 `json:"multiSearchRate"`
	NoSearchRate          float64 `json:"noSearchRate"`
	ContextCompletionRate float64 `json:"contextCompletionRate"`
}

// MultiSearchExample is one multi-search session with its sub-queries.
type MultiSearchExample struct {
	Query       string   `json:"query"`
	Searches    []string `json:"searches"`
	SearchCount int      `json:"searchCount"`
}

// Insights summarizes multi-search behavior for the observability surface.
type Insights struct {
	Stats                     Stats                `json:"stats"`
	AIIsLearning              bool                 `json:"aiIsLearning"`
	AvgSearchDepth            float64              `json:"avgSearchDepth"`
	CommonMultiSearchTriggers int                  `json:"commonMultiSearchTriggers"`
	ExampleMultiSearches      []MultiSearchExample `json:"exampleMultiSearches"`
}

// triggerWords mark queries that commonly need more than one search.
var triggerWords = []string{"how", "step", "setup", "deploy"}

// Tracker is a capacity-bounded, mutex-guarded event log.
type Tracker struct {
	mu        sync.Mutex
	events    []Event
	maxEvents int
	seq       uint64
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Tracker with the default capacity.
func New(logger *slog.Logger) *Tracker {
	return NewWithCapacity(DefaultMaxEvents, logger)
}

// NewWithCapacity creates a Tracker retaining at most capacity events.
func NewWithCapacity(capacity int, logger *slog.Logger) *Tracker {
	if capacity < 1 {
		capacity = DefaultMaxEvents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{maxEvents: capacity, logger: logger, now: time.Now}
}

// StartTracking registers a new session for the given user query and
// returns its tracking id. The id embeds the start time and a sequence
// number, so repeated queries in one session stay distinct even when they
// start within the same millisecond.
func (t *Tracker) StartTracking(sessionID, userQuery string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.seq++
	trackingID := fmt.Sprintf("%s-%d-%d", sessionID, now.UnixMilli(), t.seq)

	t.events = append(t.events, Event{
		SessionID: trackingID,
		UserQuery: userQuery,
		Timestamp: now,
		Strategy:  StrategyNoSearch,
	})
	if len(t.events) > t.maxEvents {
		t.events = t.events[len(t.events)-t.maxEvents:]
	}
	return trackingID
}

// LogSearch appends a search attempt to the session with the given
// tracking id and recomputes its strategy. An unknown id is logged and
// dropped; the return value reports whether the session was found.
func (t *Tracker) LogSearch(trackingID, query string, success bool, resultsCount int, sources []string, week string, topK int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := t.find(trackingID)
	if event == nil {
		t.logger.Warn("tracking session not found", "trackingID", trackingID)
		return false
	}

	if sources == nil {
		sources = []string{}
	}
	event.Searches = append(event.Searches, SearchAttempt{
		Query:        query,
		Week:         week,
		TopK:         topK,
		Success:      success,
		ResultsCount: resultsCount,
		Sources:      sources,
		Timestamp:    t.now(),
	})
	event.TotalSearches = len(event.Searches)

	switch event.TotalSearches {
	case 0:
		event.Strategy = StrategyNoSearch
	case 1:
		event.Strategy = StrategySingleSearch
	default:
		event.Strategy = StrategyMultiSearch
		event.HadMissingContext = true
	}
	return true
}

// find returns a pointer into the event slice; caller must hold mu.
func (t *Tracker) find(trackingID string) *Event {
	for i := range t.events {
		if t.events[i].SessionID == trackingID {
			return &t.events[i]
		}
	}
	return nil
}

// Stats aggregates all retained events.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked()
}

func (t *Tracker) statsLocked() Stats {
	total := len(t.events)
	if total == 0 {
		return Stats{}
	}

	var multi, noSearch, searches int
	for _, e := range t.events {
		switch e.Strategy {
		case StrategyMultiSearch:
			multi++
		case StrategyNoSearch:
			noSearch++
		}
		searches += e.TotalSearches
	}

	return Stats{
		TotalQueries:          total,
		AvgSearchesPerQuery:   float64(searches) / float64(total),
		MultiSearchRate:       float64(multi) / float64(total),
		NoSearchRate:          float64(noSearch) / float64(total),
		ContextCompletionRate: float64(multi) / float64(total),
	}
}

// RecentEvents returns up to limit events, newest first.
func (t *Tracker) RecentEvents(limit int) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit < 0 {
		limit = 0
	}
	if limit > len(t.events) {
		limit = len(t.events)
	}

	out := make([]Event, 0, limit)
	for i := len(t.events) - 1; i >= len(t.events)-limit; i-- {
		out = append(out, t.events[i])
	}
	return out
}

// EventsByStrategy returns the retained events with the given strategy,
// oldest first.
func (t *Tracker) EventsByStrategy(strategy Strategy) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventsByStrategyLocked(strategy)
}

func (t *Tracker) eventsByStrategyLocked(strategy Strategy) []Event {
	var out []Event
	for _, e := range t.events {
		if e.Strategy == strategy {
			out = append(out, e)
		}
	}
	return out
}

// Export returns a copy of the full event log, oldest first.
func (t *Tracker) Export() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Clear empties the log.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// Insights analyzes multi-search behavior: whether the agent issues
// follow-up searches at all, which trigger words show up in queries that
// needed them, and up to five example sessions.
func (t *Tracker) Insights() Insights {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.statsLocked()
	multiEvents := t.eventsByStrategyLocked(StrategyMultiSearch)

	var triggers int
	for _, e := range multiEvents {
		q := strings.ToLower(e.UserQuery)
		for _, w := range triggerWords {
			if strings.Contains(q, w) {
				triggers++
				break
			}
		}
	}

	examples := make([]MultiSearchExample, 0, 5)
	for _, e := range multiEvents {
		if len(examples) == 5 {
			break
		}
		queries := make([]string, len(e.Searches))
		for i, s := range e.Searches {
			queries[i] = s.Query
		}
		examples = append(examples, MultiSearchExample{
			Query:       e.UserQuery,
			Searches:    queries,
			SearchCount: e.TotalSearches,
		})
	}

	return Insights{
		Stats:                     stats,
		AIIsLearning:              len(multiEvents) > 5,
		AvgSearchDepth:            stats.AvgSearchesPerQuery,
		CommonMultiSearchTriggers: triggers,
		ExampleMultiSearches:      examples,
	}
}

// LogBehavior emits a human-readable summary of the current stats and the
// most recent multi-search sessions through the tracker's logger.
func (t *Tracker) LogBehavior() {
	stats := t.Stats()
	t.logger.Info("context behavior stats",
		"totalQueries", stats.TotalQueries,
		"avgSearchesPerQuery", fmt.Sprintf("%.2f", stats.AvgSearchesPerQuery),
		"multiSearchRate", fmt.Sprintf("%.1f%%", stats.MultiSearchRate*100),
		"contextCompletionRate", fmt.Sprintf("%.1f%%", stats.ContextCompletionRate*100),
	)

	multi := t.EventsByStrategy(StrategyMultiSearch)
	if len(multi) > 3 {
		multi = multi[len(multi)-3:]
	}
	for _, e := range multi {
		subQueries := make([]string, len(e.Searches))
		for i, s := range e.Searches {
			subQueries[i] = fmt.Sprintf("%q (%d results)", s.Query, s.ResultsCount)
		}
		t.logger.Info("multi-search example",
			"query", e.UserQuery,
			"searches", e.TotalSearches,
			"subQueries", strings.Join(subQueries, ", "),
		)
	}
}
