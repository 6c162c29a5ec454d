package api

import (
	"context"
	"net/http"

	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/types"
	"github.com/okian/pairank/pkg/logger"
)

// PairDependencies defines the pair selection operation.
type PairDependencies interface {
	NextPair(ctx context.Context) (model.Item, model.Item, float64, error)
}

// PairHandler handles pair requests.
type PairHandler struct {
	deps   PairDependencies
	logger logger.Logger
}

// NewPairHandler creates a new pair handler.
func NewPairHandler(deps PairDependencies, l logger.Logger) *PairHandler {
	return &PairHandler{deps: deps, logger: l}
}

// HandleGetPair handles GET /pair requests.
func (h *PairHandler) HandleGetPair(w http.ResponseWriter, r *http.Request) {
	a, b, rel, err := h.deps.NextPair(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("api.get_pair", err))
		return
	}
	writeJSON(w, http.StatusOK, types.Pair{Left: types.FromItem(a), Right: types.FromItem(b), Reliability: rel})
}
