package api

import "net/http"

// StatsProvider exposes the service counters shown on /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	deps StatsProvider
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(deps StatsProvider) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats writes the current service statistics.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.GetStats())
}
