package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/pairank/internal/app"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/types"
	"github.com/okian/pairank/pkg/logger"
)

// VoteDependencies defines the ledger operations.
type VoteDependencies interface {
	Vote(ctx context.Context, req service.VoteRequest) (service.VoteResult, error)
	EditVote(ctx context.Context, seq uint64, req service.VoteRequest) (ledger.Event, error)
	RemoveVote(ctx context.Context, seq uint64) (ledger.Event, error)
	Undo(ctx context.Context) (ledger.Event, error)
	History(ctx context.Context, includeRemoved bool) ([]ledger.Event, error)
}

// voteRequest mirrors the OpenAPI schema for POST /votes and PUT /votes/{seq}.
type voteRequest struct {
	WinnerID  string `json:"winner_id" validate:"itemid"`
	LoserID   string `json:"loser_id" validate:"itemid,nefield=WinnerID"`
	Draw      bool   `json:"draw"`
	RequestID string `json:"request_id" validate:"omitempty,max=128"`
}

func (v voteRequest) toService() service.VoteRequest {
	return service.VoteRequest{WinnerID: v.WinnerID, LoserID: v.LoserID, Draw: v.Draw, RequestID: v.RequestID}
}

type historyResponse struct {
	Votes []types.Vote `json:"votes"`
	Count int          `json:"count"`
}

// VotesHandler handles vote requests.
type VotesHandler struct {
	deps   VoteDependencies
	logger logger.Logger
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps VoteDependencies, l logger.Logger) *VotesHandler {
	return &VotesHandler{deps: deps, logger: l}
}

// HandleVote handles POST /votes requests.
func (h *VotesHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_vote"
	var req voteRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	res, err := h.deps.Vote(r.Context(), req.toService())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, types.VoteResult{
		Vote:        types.FromEvent(res.Event),
		Winner:      types.FromItem(res.Winner),
		Loser:       types.FromItem(res.Loser),
		Reliability: res.Reliability,
		Duplicate:   res.Duplicate,
	})
}

// HandleEditVote handles PUT /votes/{seq} requests.
func (h *VotesHandler) HandleEditVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.edit_vote"
	seq, err := seqParam(r, op)
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	var req voteRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	e, err := h.deps.EditVote(r.Context(), seq, req.toService())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromEvent(e))
}

// HandleRemoveVote handles DELETE /votes/{seq} requests.
func (h *VotesHandler) HandleRemoveVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_vote"
	seq, err := seqParam(r, op)
	if err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}
	e, err := h.deps.RemoveVote(r.Context(), seq)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromEvent(e))
}

// HandleUndo handles POST /votes/undo requests.
func (h *VotesHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.Undo(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("api.undo", err))
		return
	}
	writeJSON(w, http.StatusOK, types.FromEvent(e))
}

// HandleHistory handles GET /votes?include_removed=true requests.
func (h *VotesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	include := false
	if raw := r.URL.Query().Get("include_removed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
			return
		}
		include = v
	}
	events, err := h.deps.History(r.Context(), include)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Votes: types.FromEvents(events), Count: len(events)})
}

func seqParam(r *http.Request, op string) (uint64, error) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq == 0 {
		return 0, NewKind(op, ErrBadRequest)
	}
	return seq, nil
}
