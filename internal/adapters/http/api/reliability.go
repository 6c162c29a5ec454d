package api

import (
	"context"
	"net/http"

	"github.com/okian/pairank/internal/domain/reliability"
	"github.com/okian/pairank/internal/domain/types"
	"github.com/okian/pairank/pkg/logger"
)

// ReliabilityDependencies defines the reliability report and the rebuild.
type ReliabilityDependencies interface {
	Reliability(ctx context.Context) (reliability.Report, error)
	Rebuild(ctx context.Context) ([]string, error)
}

type rebuildResponse struct {
	Diverged    []string          `json:"diverged"`
	Reliability types.Reliability `json:"reliability"`
}

// ReliabilityHandler handles reliability and rebuild requests.
type ReliabilityHandler struct {
	deps   ReliabilityDependencies
	logger logger.Logger
}

// NewReliabilityHandler creates a new reliability handler.
func NewReliabilityHandler(deps ReliabilityDependencies, l logger.Logger) *ReliabilityHandler {
	return &ReliabilityHandler{deps: deps, logger: l}
}

// HandleGetReliability handles GET /reliability requests.
func (h *ReliabilityHandler) HandleGetReliability(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Reliability(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("api.get_reliability", err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromReport(rep))
}

// HandleRebuild handles POST /rebuild requests.
func (h *ReliabilityHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.rebuild"
	diverged, err := h.deps.Rebuild(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	rep, err := h.deps.Reliability(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	if diverged == nil {
		diverged = []string{}
	}
	writeJSON(w, http.StatusOK, rebuildResponse{Diverged: diverged, Reliability: types.FromReport(rep)})
}
