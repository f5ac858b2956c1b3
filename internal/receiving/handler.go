package receiving

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ops/meridian-ops/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the receiving workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the receiving handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{orderID}", h.handleGet)
	r.Get("/{orderID}/status", h.handleStatus)
	r.Post("/{orderID}/receipts", h.handleReceipt)
	r.Post("/{orderID}/cancel", h.handleCancel)
}

type createOrderLineRequest struct {
	ProductID  int64   `json:"product_id" validate:"required,gt=0"`
	Lot        string  `json:"lot"`
	OrderedQty int64   `json:"ordered_qty" validate:"required,gt=0"`
	UnitCost   float64 `json:"unit_cost" validate:"gte=0"`
}

type createOrderRequest struct {
	Ref          string                   `json:"ref"`
	SupplierRef  string                   `json:"supplier_ref" validate:"max=100"`
	LocationID   int64                    `json:"location_id" validate:"required,gt=0"`
	ExpectedDate string                   `json:"expected_date"`
	CreatedBy    int64                    `json:"created_by"`
	Lines        []createOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cmd := CreateOrderCommand{
		Ref:         req.Ref,
		SupplierRef: req.SupplierRef,
		LocationID:  req.LocationID,
		CreatedBy:   req.CreatedBy,
	}
	if req.ExpectedDate != "" {
		expected, err := time.Parse("2006-01-02", req.ExpectedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expected_date must be YYYY-MM-DD")
			return
		}
		cmd.ExpectedDate = &expected
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, LineCommand{ProductID: line.ProductID, Lot: line.Lot, OrderedQty: line.OrderedQty, UnitCost: line.UnitCost})
	}
	order, err := h.service.CreateOrder(r.Context(), cmd)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

type receiptRequest struct {
	ReceiptRef string               `json:"receipt_ref" validate:"max=100"`
	Lines      []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiptLineRequest struct {
	LineID int64 `json:"line_id" validate:"required,gt=0"`
	Qty    int64 `json:"qty" validate:"required,gt=0"`
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipts := make([]LineReceipt, 0, len(req.Lines))
	for _, line := range req.Lines {
		receipts = append(receipts, LineReceipt{LineID: line.LineID, Qty: line.Qty})
	}
	if err := h.service.RecordReceipt(r.Context(), id, receipts, req.ReceiptRef); err != nil {
		h.logger.Warn("receipt rejected", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusCancelled})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return id, true
}
