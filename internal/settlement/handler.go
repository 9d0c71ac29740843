package settlement

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sankofa-erp/sankofa-erp/internal/observability"
	"github.com/sankofa-erp/sankofa-erp/internal/platform/httpx"
	"github.com/sankofa-erp/sankofa-erp/internal/pricing"
)

// Handler exposes settlement operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/bulk", h.generateBulk)
	r.Get("/{settlementID}", h.get)
	r.Post("/{settlementID}/approve-pay", h.approveAndPay)
}

// MountDealerRoutes registers dealer-scoped routes.
func (h *Handler) MountDealerRoutes(r chi.Router) {
	r.Get("/{dealerID}/performance", h.performance)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	stl, err := h.service.CreateSettlement(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.RecordSettlement("created")
	httpx.JSON(w, http.StatusCreated, stl)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	stl, err := h.service.GetSettlement(r.Context(), chi.URLParam(r, "settlementID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stl)
}

type approvePayRequest struct {
	ApprovedBy       string        `json:"approved_by" validate:"required"`
	PaymentMethod    PaymentMethod `json:"payment_method" validate:"required"`
	PaymentReference string        `json:"payment_reference,omitempty"`
}

func (h *Handler) approveAndPay(w http.ResponseWriter, r *http.Request) {
	var req approvePayRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	stl, err := h.service.ApproveAndPay(r.Context(),
		chi.URLParam(r, "settlementID"), req.ApprovedBy, req.PaymentMethod, req.PaymentReference)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.RecordSettlement("paid")
	httpx.JSON(w, http.StatusOK, stl)
}

type bulkRequest struct {
	WindowID  string              `json:"window_id" validate:"required"`
	Pairs     []DealerStationPair `json:"pairs" validate:"required,min=1,dive"`
	CreatedBy string              `json:"created_by" validate:"required"`
}

func (h *Handler) generateBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.GenerateBulk(r.Context(), req.WindowID, req.Pairs, req.CreatedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	for range result.Settlements {
		h.metrics.RecordSettlement("created")
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) performance(w http.ResponseWriter, r *http.Request) {
	dealerID := chi.URLParam(r, "dealerID")
	stationID := r.URL.Query().Get("station_id")

	var rng DateRange
	if v := r.URL.Query().Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "start_date must be RFC3339")
			return
		}
		rng.Start = t
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "end_date must be RFC3339")
			return
		}
		rng.End = t
	}

	summary, err := h.service.PerformanceSummary(r.Context(), dealerID, stationID, rng)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSettlementNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, pricing.ErrWindowNotFound), errors.Is(err, ErrUnknownProduct):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyPaid):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("settlement request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
