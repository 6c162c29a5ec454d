package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/pairank/internal/domain/types"
	"github.com/okian/pairank/pkg/logger"
)

// defaultRankingsLimit is used when ?limit is absent.
const defaultRankingsLimit = 20

// RankingsDependencies defines the rankings query.
type RankingsDependencies interface {
	Rankings(ctx context.Context, offset, limit int) (types.Page, error)
}

// RankingsHandler handles rankings requests.
type RankingsHandler struct {
	deps     RankingsDependencies
	maxLimit int
	logger   logger.Logger
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps RankingsDependencies, maxLimit int, l logger.Logger) *RankingsHandler {
	return &RankingsHandler{deps: deps, maxLimit: maxLimit, logger: l}
}

// HandleGetRankings handles GET /rankings?limit=N&offset=M requests.
func (h *RankingsHandler) HandleGetRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	limit, err := intQuery(r, "limit", min(defaultRankingsLimit, h.maxLimit))
	if err == nil && limit < 1 {
		err = fmt.Errorf("limit must be at least 1, got %d", limit)
	}
	if err != nil {
		writeError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if limit > h.maxLimit {
		writeError(r.Context(), h.logger, w, WrapKind(op, ErrLimitExceeded, fmt.Errorf("limit %d > %d", limit, h.maxLimit)))
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err == nil && offset < 0 {
		err = fmt.Errorf("offset must not be negative, got %d", offset)
	}
	if err != nil {
		writeError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}

	page, err := h.deps.Rankings(r.Context(), offset, limit)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
