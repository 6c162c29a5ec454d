package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/pairank/internal/app"
	"github.com/okian/pairank/internal/domain/ledger"
	"github.com/okian/pairank/internal/domain/model"
	"github.com/okian/pairank/internal/domain/types"
	"github.com/okian/pairank/pkg/logger"
)

// ItemDependencies defines the item set operations.
type ItemDependencies interface {
	AddItems(ctx context.Context, add []service.NewItem) ([]model.Item, error)
	Item(ctx context.Context, id string) (model.Item, error)
	RemoveItem(ctx context.Context, id string) ([]ledger.Event, error)
	Rank(ctx context.Context, itemID string) (types.Entry, error)
}

// addItemsRequest mirrors the OpenAPI schema for POST /items.
type addItemsRequest struct {
	Items []struct {
		ID    string `json:"id" validate:"itemid"`
		Label string `json:"label" validate:"max=1024"`
	} `json:"items" validate:"required,min=1,max=10000,dive"`
}

type itemResponse struct {
	types.Item
	Rank int `json:"rank,omitempty"`
}

type removeItemResponse struct {
	ItemID       string       `json:"item_id"`
	RemovedVotes []types.Vote `json:"removed_votes"`
}

// ItemsHandler handles item requests.
type ItemsHandler struct {
	deps   ItemDependencies
	logger logger.Logger
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(deps ItemDependencies, l logger.Logger) *ItemsHandler {
	return &ItemsHandler{deps: deps, logger: l}
}

// HandleAddItems handles POST /items requests.
func (h *ItemsHandler) HandleAddItems(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_items"
	var req addItemsRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(r.Context(), h.logger, w, err)
		return
	}

	add := make([]service.NewItem, len(req.Items))
	for i, it := range req.Items {
		add[i] = service.NewItem{ID: it.ID, Label: it.Label}
	}
	items, err := h.deps.AddItems(r.Context(), add)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}

	out := make([]types.Item, len(items))
	for i, it := range items {
		out[i] = types.FromItem(it)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": out})
}

// HandleGetItem handles GET /items/{id} requests.
func (h *ItemsHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_item"
	id := chi.URLParam(r, "id")
	it, err := h.deps.Item(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	resp := itemResponse{Item: types.FromItem(it)}
	if e, err := h.deps.Rank(r.Context(), id); err == nil {
		resp.Rank = e.Rank
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRemoveItem handles DELETE /items/{id} requests.
func (h *ItemsHandler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_item"
	id := chi.URLParam(r, "id")
	removed, err := h.deps.RemoveItem(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, removeItemResponse{ItemID: id, RemovedVotes: types.FromEvents(removed)})
}
