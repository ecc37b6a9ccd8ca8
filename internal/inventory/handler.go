package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockledger/stockledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/records", h.handleCreateRecord)
	r.Get("/records/{id}", h.handleGetRecord)
	r.Get("/records/{id}/transactions", h.handleListTransactions)
	r.Get("/records/{id}/verify", h.handleVerifyLedger)
	r.Post("/records/{id}/stock", h.handleUpdateStock)
	r.Post("/records/{id}/reservations", h.handleReserveStock)
	r.Post("/records/{id}/releases", h.handleReleaseStock)
	r.Post("/records/{id}/consumptions", h.handleConsumeStock)
	r.Patch("/records/{id}/minimum-level", h.handleUpdateMinimumLevel)
	r.Patch("/records/{id}/maximum-level", h.handleUpdateMaximumLevel)
	r.Post("/records/{id}/deactivate", h.handleDeactivate)
	r.Post("/records/{id}/reactivate", h.handleReactivate)
	r.Get("/summary", h.handleStatusSummary)
}

type createRecordRequest struct {
	ProductID         string `json:"productId" validate:"required"`
	InitialQuantity   int    `json:"initialQuantity" validate:"gte=0"`
	MinimumStockLevel int    `json:"minimumStockLevel" validate:"gte=0"`
	MaximumStockLevel int    `json:"maximumStockLevel" validate:"gte=0"`
	Location          string `json:"location"`
	WarehouseCode     string `json:"warehouseCode"`
	UnitValueAmount   int64  `json:"unitValueAmount" validate:"gte=0"`
	UnitValueCurrency string `json:"unitValueCurrency" validate:"omitempty,len=3"`
}

type stockChangeRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason" validate:"required"`
	Actor    string `json:"actor" validate:"required"`
}

type levelRequest struct {
	Level     int    `json:"level"`
	ChangedBy string `json:"changedBy" validate:"required"`
}

type actorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type recordResponse struct {
	ID                         string  `json:"id"`
	ProductID                  string  `json:"productId"`
	Quantity                   int     `json:"quantity"`
	ReservedQuantity           int     `json:"reservedQuantity"`
	AvailableQuantity          int     `json:"availableQuantity"`
	MinimumStockLevel          int     `json:"minimumStockLevel"`
	MaximumStockLevel          int     `json:"maximumStockLevel"`
	Location                   string  `json:"location,omitempty"`
	WarehouseCode              string  `json:"warehouseCode,omitempty"`
	UnitValue                  Money   `json:"unitValue"`
	StockValue                 Money   `json:"stockValue"`
	Status                     Status  `json:"status"`
	StockUtilizationPercentage float64 `json:"stockUtilizationPercentage"`
	CreatedAt                  string  `json:"createdAt"`
	LastUpdated                string  `json:"lastUpdated"`
}

func toRecordResponse(rec *Record) recordResponse {
	return recordResponse{
		ID:                         rec.ID(),
		ProductID:                  rec.ProductID(),
		Quantity:                   rec.Quantity(),
		ReservedQuantity:           rec.ReservedQuantity(),
		AvailableQuantity:          rec.AvailableQuantity(),
		MinimumStockLevel:          rec.MinimumStockLevel(),
		MaximumStockLevel:          rec.MaximumStockLevel(),
		Location:                   rec.Location(),
		WarehouseCode:              rec.WarehouseCode(),
		UnitValue:                  rec.UnitValue(),
		StockValue:                 rec.StockValue(),
		Status:                     rec.Status(),
		StockUtilizationPercentage: rec.StockUtilizationPercentage(),
		CreatedAt:                  rec.CreatedAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
		LastUpdated:                rec.LastUpdated().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		detail := "validation failed"
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			detail = errs[0].Error()
		}
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", detail)
		return false
	}
	return true
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.CreateRecord(r.Context(), CreateInput{
		ProductID:         req.ProductID,
		InitialQuantity:   req.InitialQuantity,
		MinimumStockLevel: req.MinimumStockLevel,
		MaximumStockLevel: req.MaximumStockLevel,
		Location:          req.Location,
		WarehouseCode:     req.WarehouseCode,
		UnitValue:         Money{Amount: req.UnitValueAmount, Currency: req.UnitValueCurrency},
	})
	if err != nil {
		h.logger.Error("create record failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	txs, pagination, err := h.service.ListTransactions(r.Context(), chi.URLParam(r, "id"), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"pagination":   pagination,
	})
}

func (h *Handler) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.VerifyLedger(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "consistent": true})
}

func (h *Handler) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	var req stockChangeRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateStock(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.Reason, req.Actor)
	if err != nil {
		h.logger.Error("update stock failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleReserveStock(w http.ResponseWriter, r *http.Request) {
	var req stockChangeRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.ReserveStock(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.Reason, req.Actor)
	if err != nil {
		h.logger.Error("reserve stock failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleReleaseStock(w http.ResponseWriter, r *http.Request) {
	var req stockChangeRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.ReleaseReservedStock(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.Reason, req.Actor)
	if err != nil {
		h.logger.Error("release stock failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleConsumeStock(w http.ResponseWriter, r *http.Request) {
	var req stockChangeRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.ConsumeReservedStock(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.Reason, req.Actor)
	if err != nil {
		h.logger.Error("consume stock failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleUpdateMinimumLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateMinimumStockLevel(r.Context(), chi.URLParam(r, "id"), req.Level, req.ChangedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleUpdateMaximumLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateMaximumStockLevel(r.Context(), chi.URLParam(r, "id"), req.Level, req.ChangedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.DeactivateRecord(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	rec, err := h.service.ReactivateRecord(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleStatusSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StatusSummary(r.Context())
	if err != nil {
		h.logger.Error("status summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
