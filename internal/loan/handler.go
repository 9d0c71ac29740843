package loan

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sankofa-erp/sankofa-erp/internal/platform/httpx"
)

// Handler exposes loan operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers loan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{loanID}", h.get)
	r.Get("/{loanID}/schedule", h.schedule)
}

type createLoanResponse struct {
	Loan     Loan            `json:"loan"`
	Schedule []ScheduleEntry `json:"schedule"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	l, schedule, err := h.service.CreateLoan(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createLoanResponse{Loan: l, Schedule: schedule})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.GetLoan(r.Context(), chi.URLParam(r, "loanID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetSchedule(r.Context(), chi.URLParam(r, "loanID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLoanNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCreditCheckFailed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Credit Check Failed", err.Error())
	default:
		h.logger.Error("loan request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
