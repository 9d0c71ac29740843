package reconciliation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sankofa-erp/sankofa-erp/internal/observability"
	"github.com/sankofa-erp/sankofa-erp/internal/platform/httpx"
)

// Handler exposes reconciliation operations over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	metrics *observability.Metrics
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{consignmentID}", h.reconcile)
	r.Post("/{consignmentID}/automated", h.reconcileAutomated)
	r.Post("/{consignmentID}/live", h.liveCheck)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	consignmentID := chi.URLParam(r, "consignmentID")

	result, err := h.service.PerformReconciliation(r.Context(), consignmentID)
	if err != nil {
		h.respondError(w, consignmentID, err)
		return
	}
	h.metrics.RecordReconciliation(string(result.Status))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reconcileAutomated(w http.ResponseWriter, r *http.Request) {
	consignmentID := chi.URLParam(r, "consignmentID")

	outcome, err := h.service.PerformAutomatedReconciliation(r.Context(), consignmentID)
	if err != nil {
		h.respondError(w, consignmentID, err)
		return
	}
	if outcome.Result != nil {
		h.metrics.RecordReconciliation(string(outcome.Result.Status))
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) liveCheck(w http.ResponseWriter, r *http.Request) {
	consignmentID := chi.URLParam(r, "consignmentID")

	var live LiveDelivery
	if err := httpx.DecodeJSON(r, &live); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	check, err := h.service.DetectRealTimeVariances(r.Context(), consignmentID, live)
	if err != nil {
		h.respondError(w, consignmentID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) respondError(w http.ResponseWriter, consignmentID string, err error) {
	if errors.Is(err, ErrConsignmentNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("reconciliation request failed",
		slog.String("consignment_id", consignmentID),
		slog.Any("error", err))
	httpx.RespondError(w, err)
}
