package transfers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ops/meridian-ops/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the transfer workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfers handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{transferID}", h.handleGet)
	r.Post("/{transferID}/start", h.handleStart)
	r.Post("/{transferID}/complete", h.handleComplete)
	r.Post("/{transferID}/cancel", h.handleCancel)
}

type createLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Lot       string  `json:"lot"`
	Qty       int64   `json:"qty" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

type createTransferRequest struct {
	Ref            string              `json:"ref"`
	FromLocationID int64               `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64               `json:"to_location_id" validate:"required,gt=0"`
	Note           string              `json:"note" validate:"max=500"`
	CreatedBy      int64               `json:"created_by"`
	Lines          []createLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cmd := CreateCommand{
		Ref:            req.Ref,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Note:           req.Note,
		CreatedBy:      req.CreatedBy,
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, LineCommand{ProductID: line.ProductID, Lot: line.Lot, Qty: line.Qty, UnitCost: line.UnitCost})
	}
	tr, err := h.service.Create(r.Context(), cmd)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": list})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transferID(w, r)
	if !ok {
		return
	}
	tr, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start, StatusInProgress)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete, StatusCompleted)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel, StatusCancelled)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) error, target Status) {
	id, ok := h.transferID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.logger.Warn("transfer transition rejected",
			slog.Int64("transfer_id", id),
			slog.String("target", string(target)),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": target})
}

func (h *Handler) transferID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transferID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return 0, false
	}
	return id, true
}
