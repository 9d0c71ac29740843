package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sankofa-erp/sankofa-erp/internal/events"
	"github.com/sankofa-erp/sankofa-erp/internal/loan"
	"github.com/sankofa-erp/sankofa-erp/internal/observability"
	"github.com/sankofa-erp/sankofa-erp/internal/pricing"
	"github.com/sankofa-erp/sankofa-erp/internal/reconciliation"
	"github.com/sankofa-erp/sankofa-erp/internal/settlement"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetrics()
	publisher := events.Nop()

	reconciliationRepo := reconciliation.NewRepository(nil)
	reconciliationService := reconciliation.NewService(
		reconciliationRepo, reconciliationRepo, publisher, logger, reconciliation.DefaultTolerances())

	loanRepo := loan.NewRepository(nil)
	loanService := loan.NewService(loanRepo, loan.NewLedgerCreditChecker(loanRepo), publisher, logger)

	settlementService := settlement.NewService(
		settlement.NewRepository(nil), pricing.NewRepository(nil), loanService,
		publisher, logger, settlement.DefaultPolicy())

	return NewRouter(RouterParams{
		Logger:                logger,
		Config:                &Config{AppEnv: "development"},
		ReconciliationHandler: reconciliation.NewHandler(logger, reconciliationService, metrics),
		SettlementHandler:     settlement.NewHandler(logger, settlementService, metrics),
		LoanHandler:           loan.NewHandler(logger, loanService),
		Metrics:               metrics,
	})
}

func TestRouterHealthz(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterRejectsMalformedPayload(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/settlements/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterSecurityHeaders(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
