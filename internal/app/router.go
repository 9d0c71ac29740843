package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sankofa-erp/sankofa-erp/internal/loan"
	"github.com/sankofa-erp/sankofa-erp/internal/observability"
	"github.com/sankofa-erp/sankofa-erp/internal/reconciliation"
	"github.com/sankofa-erp/sankofa-erp/internal/settlement"
	"github.com/sankofa-erp/sankofa-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	ReconciliationHandler *reconciliation.Handler
	SettlementHandler     *settlement.Handler
	LoanHandler           *loan.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with Sankofa defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/reconciliations", params.ReconciliationHandler.MountRoutes)
		r.Route("/settlements", params.SettlementHandler.MountRoutes)
		r.Route("/dealers", params.SettlementHandler.MountDealerRoutes)
		r.Route("/loans", params.LoanHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
