package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ops/meridian-ops/internal/platform/httpx"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cache    *PositionCache
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, cache *PositionCache) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/positions", h.handleQuantity)
	r.Get("/locations/{locationID}/snapshot", h.handleSnapshot)
	r.Get("/history", h.handleHistory)
	r.Post("/adjustments", h.handleAdjustment)
}

type positionResponse struct {
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	Lot        string `json:"lot,omitempty"`
	Qty        int64  `json:"qty"`
}

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	lot := q.Get("lot")
	qty, err := h.service.Quantity(r.Context(), productID, locationID, lot)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, positionResponse{ProductID: productID, LocationID: locationID, Lot: lot, Qty: qty})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid location id")
		return
	}
	positions, err := h.cache.Snapshot(r.Context(), locationID, func(ctx context.Context) ([]Position, error) {
		return h.service.Positions(ctx, locationID)
	})
	if err != nil {
		h.logger.Error("stock snapshot", slog.Int64("location_id", locationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"location_id": locationID, "positions": positions})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{}
	if lot := q.Get("lot"); lot != "" {
		filter.Lot = &lot
	}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	filter.AfterID, _ = strconv.ParseInt(q.Get("after_id"), 10, 64)
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	entries, err := h.service.History(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	next := int64(0)
	if len(entries) > 0 {
		next = entries[len(entries)-1].ID
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "next_after_id": next})
}

type adjustmentRequest struct {
	Code       string  `json:"code"`
	ProductID  int64   `json:"product_id" validate:"required,gt=0"`
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Lot        string  `json:"lot"`
	Delta      int64   `json:"qty_delta" validate:"required"`
	UnitCost   float64 `json:"unit_cost" validate:"gte=0"`
	Note       string  `json:"note" validate:"max=500"`
	ActorID    int64   `json:"actor_id"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		Code:       req.Code,
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Lot:        req.Lot,
		Delta:      req.Delta,
		UnitCost:   req.UnitCost,
		Note:       req.Note,
		ActorID:    req.ActorID,
	})
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", "adjustment code already processed")
			return
		}
		h.logger.Error("post adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
