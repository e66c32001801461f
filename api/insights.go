package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursekb/coursekb/internal/tracker"
)

// recentEventsLimit caps the event list returned by GET /api/insights.
const recentEventsLimit = 20

// insightsHandler exposes the context tracker over HTTP.
type insightsHandler struct {
	tracker *tracker.Tracker
	logger  *slog.Logger
}

type insightsData struct {
	Insights     tracker.Insights `json:"insights"`
	RecentEvents []tracker.Event  `json:"recentEvents"`
	Timestamp    int64            `json:"timestamp"`
}

type insightsResponse struct {
	Success bool         `json:"success"`
	Data    insightsData `json:"data"`
}

// get returns current insights and the most recent tracked events.
func (h *insightsHandler) get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, insightsResponse{
		Success: true,
		Data: insightsData{
			Insights:     h.tracker.Insights(),
			RecentEvents: h.tracker.RecentEvents(recentEventsLimit),
			Timestamp:    time.Now().UnixMilli(),
		},
	}, h.logger)
}

type actionRequest struct {
	Action string `json:"action"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// act handles control actions: "clear" empties the tracker, "log" emits a
// behavior summary through the server's logger. Anything else is a client
// error.
func (h *insightsHandler) act(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with an action field", h.logger)
		return
	}

	switch req.Action {
	case "clear":
		h.tracker.Clear()
		writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Tracking data cleared"}, h.logger)
	case "log":
		h.tracker.LogBehavior()
		writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Logged behavior summary"}, h.logger)
	default:
		writeError(w, http.StatusBadRequest, "invalid_action", "Invalid action. Use 'clear' or 'log'", h.logger)
	}
}
