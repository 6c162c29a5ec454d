package api

import "net/http"

// HealthHandler answers liveness probes.
type HealthHandler struct {
	deps StatsProvider
}

// NewHealthHandler creates a health handler. deps may be nil, in which
// case the handler only reports that the process is up.
func NewHealthHandler(deps StatsProvider) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HandleHealth handles GET /healthz. It answers 503 while the ranking
// service is not started so that load balancers hold traffic back.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.deps != nil {
		if started, _ := h.deps.GetStats()["started"].(bool); !started {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
