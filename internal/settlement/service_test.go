package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sankofa-erp/sankofa-erp/internal/events"
	"github.com/sankofa-erp/sankofa-erp/internal/pricing"
)

type mockStore struct {
	mu          sync.Mutex
	settlements map[string]Settlement
	insertErr   error
	updateErr   error
}

func newMockStore() *mockStore {
	return &mockStore{settlements: make(map[string]Settlement)}
}

func (m *mockStore) InsertSettlement(_ context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.settlements[s.ID] = s
	return nil
}

func (m *mockStore) GetSettlement(_ context.Context, id string) (Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[id]
	if !ok {
		return Settlement{}, ErrSettlementNotFound
	}
	return s, nil
}

func (m *mockStore) UpdateSettlement(_ context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.settlements[s.ID]; !ok {
		return ErrSettlementNotFound
	}
	m.settlements[s.ID] = s
	return nil
}

func (m *mockStore) ListByDealer(_ context.Context, dealerID, stationID string, _ DateRange) ([]Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Settlement
	for _, s := range m.settlements {
		if s.DealerID == dealerID && (stationID == "" || s.StationID == stationID) {
			out = append(out, s)
		}
	}
	return out, nil
}

type stubWindows struct {
	window pricing.Window
	err    error
}

func (s stubWindows) GetWindow(_ context.Context, windowID string) (pricing.Window, error) {
	if s.err != nil {
		return pricing.Window{}, s.err
	}
	w := s.window
	w.ID = windowID
	return w, nil
}

type stubLoans struct {
	mu          sync.Mutex
	due         float64
	dueErr      error
	outstanding float64
	paid        []float64
	markErr     error
}

func (s *stubLoans) InstallmentDueInPeriod(_ context.Context, _, _ string, _, _ time.Time) (float64, error) {
	return s.due, s.dueErr
}

func (s *stubLoans) OutstandingBalance(_ context.Context, _, _ string) (float64, error) {
	return s.outstanding, nil
}

func (s *stubLoans) MarkInstallmentPaid(_ context.Context, _ string, amount float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.paid = append(s.paid, amount)
	return nil
}

type stubDealerValidator struct {
	err error
}

func (s stubDealerValidator) ValidateAssignment(_ context.Context, _, _ string) error {
	return s.err
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
}

func (r *recordingPublisher) Publish(_ context.Context, name string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, name)
	return nil
}

func (r *recordingPublisher) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.published...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testWindow() pricing.Window {
	return pricing.Window{
		ID:        "2024-W03",
		StartDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
	}
}

func baseRequest() CreateSettlementRequest {
	w := testWindow()
	return CreateSettlementRequest{
		DealerID:         "DLR-001",
		StationID:        "STN-001",
		WindowID:         w.ID,
		PeriodStart:      w.StartDate,
		PeriodEnd:        w.EndDate,
		VolumeSoldLitres: 10000,
		CreatedBy:        "ops@omc.example",
	}
}

func newTestService(store *mockStore, loans *stubLoans, pub *recordingPublisher) *Service {
	svc := NewService(store, stubWindows{window: testWindow()}, loans, pub, testLogger(), DefaultPolicy())
	svc.now = func() time.Time { return time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateSettlementComputation(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{due: 500}
	pub := &recordingPublisher{}
	svc := newTestService(store, loans, pub)

	stl, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.InDelta(t, 3500.00, stl.GrossDealerMargin, 1e-9)
	assert.InDelta(t, 500.00, stl.LoanDeduction, 1e-9)
	assert.InDelta(t, 262.50, stl.TaxDeduction, 1e-9)
	assert.InDelta(t, 762.50, stl.TotalDeductions, 1e-9)
	assert.InDelta(t, 2737.50, stl.NetPayable, 1e-9)

	assert.Equal(t, StatusDraft, stl.Status)
	assert.Equal(t, ApprovalPending, stl.ApprovalStatus)
	assert.Equal(t, PaymentPending, stl.PaymentStatus)
	assert.Equal(t, "PMS", stl.ProductType)
	assert.Contains(t, stl.Number, "SETT-DLR-001-2024-W03-")

	require.Len(t, store.settlements, 1)
	assert.Equal(t, []string{events.JournalCreate, events.SettlementCreated}, pub.names())
}

func TestCreateSettlementTaxCoversOtherIncome(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{due: 500}
	svc := newTestService(store, loans, &recordingPublisher{})

	req := baseRequest()
	req.OtherIncome = 1000

	stl, err := svc.CreateSettlement(context.Background(), req)
	require.NoError(t, err)

	// withholding applies to margin plus other income, not margin alone
	assert.InDelta(t, 3500.00, stl.GrossDealerMargin, 1e-9)
	assert.InDelta(t, 337.50, stl.TaxDeduction, 1e-9)
	assert.InDelta(t, 837.50, stl.TotalDeductions, 1e-9)
	assert.InDelta(t, 3662.50, stl.NetPayable, 1e-9)
}

func TestCreateSettlementArithmeticInvariant(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{due: 123.45}
	svc := newTestService(store, loans, &recordingPublisher{})

	req := baseRequest()
	req.VolumeSoldLitres = 7321
	req.OtherIncome = 85.20
	req.ShortageDeduction = 41.10
	req.DamageDeduction = 12.00
	req.AdvanceDeduction = 300
	req.OtherDeductions = 9.99

	stl, err := svc.CreateSettlement(context.Background(), req)
	require.NoError(t, err)

	sum := stl.LoanDeduction + stl.ShortageDeduction + stl.DamageDeduction +
		stl.AdvanceDeduction + stl.TaxDeduction + stl.OtherDeductions
	assert.InDelta(t, sum, stl.TotalDeductions, 0.01)
	assert.InDelta(t, stl.GrossDealerMargin+stl.OtherIncome-stl.TotalDeductions, stl.NetPayable, 0.01)
}

func TestCreateSettlementMarginRates(t *testing.T) {
	cases := []struct {
		product string
		margin  float64
	}{
		{"PMS", 3500},
		{"AGO", 3500},
		{"LPG", 3000},
		{"DPK", 2500},
		{"RFO", 2000},
	}
	for _, tc := range cases {
		t.Run(tc.product, func(t *testing.T) {
			svc := newTestService(newMockStore(), &stubLoans{}, &recordingPublisher{})
			req := baseRequest()
			req.ProductType = tc.product

			stl, err := svc.CreateSettlement(context.Background(), req)
			require.NoError(t, err)
			assert.InDelta(t, tc.margin, stl.GrossDealerMargin, 1e-9)
		})
	}
}

func TestCreateSettlementUnknownProduct(t *testing.T) {
	svc := newTestService(newMockStore(), &stubLoans{}, &recordingPublisher{})
	req := baseRequest()
	req.ProductType = "JET-A1"

	_, err := svc.CreateSettlement(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestCreateSettlementRejectsUnassignedDealer(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestService(store, &stubLoans{}, pub).
		WithDealerValidator(stubDealerValidator{err: errors.New("dealer not assigned to station")})

	_, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.ErrorContains(t, err, "dealer not assigned to station")
	assert.Empty(t, store.settlements)
	assert.Empty(t, pub.names())
}

func TestCreateSettlementValidatorAccepts(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &stubLoans{}, &recordingPublisher{}).
		WithDealerValidator(stubDealerValidator{})

	_, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Len(t, store.settlements, 1)
}

func TestCreateSettlementNegativeNetPayable(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &stubLoans{due: 5000}, &recordingPublisher{})

	req := baseRequest()
	req.VolumeSoldLitres = 1000 // gross 350, deductions exceed it

	stl, err := svc.CreateSettlement(context.Background(), req)
	require.NoError(t, err)
	assert.Negative(t, stl.NetPayable)
	require.Len(t, store.settlements, 1)
}

func TestCreateSettlementMissingWindow(t *testing.T) {
	svc := NewService(newMockStore(), stubWindows{err: pricing.ErrWindowNotFound}, &stubLoans{},
		&recordingPublisher{}, testLogger(), DefaultPolicy())

	_, err := svc.CreateSettlement(context.Background(), baseRequest())
	assert.ErrorIs(t, err, pricing.ErrWindowNotFound)
}

func TestCreateSettlementLoanLookupFailure(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestService(store, &stubLoans{dueErr: errors.New("ledger down")}, pub)

	_, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.Error(t, err)
	assert.Empty(t, store.settlements)
	assert.Empty(t, pub.names())
}

func TestRequiresApproval(t *testing.T) {
	svc := newTestService(newMockStore(), &stubLoans{}, &recordingPublisher{})

	assert.False(t, svc.RequiresApproval(Settlement{NetPayable: 9000}))
	assert.False(t, svc.RequiresApproval(Settlement{NetPayable: 10000}))
	assert.True(t, svc.RequiresApproval(Settlement{NetPayable: 10000.01}))
	assert.True(t, svc.RequiresApproval(Settlement{NetPayable: -12000}))
}

func TestApproveAndPay(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{due: 500}
	pub := &recordingPublisher{}
	svc := newTestService(store, loans, pub)

	stl, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.NoError(t, err)

	paid, err := svc.ApproveAndPay(context.Background(), stl.ID, "fm@omc.example", MethodBankTransfer, "")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, paid.Status)
	assert.Equal(t, ApprovalApproved, paid.ApprovalStatus)
	assert.Equal(t, "fm@omc.example", paid.ApprovedBy)
	assert.Equal(t, PaymentCompleted, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentDate)
	assert.Contains(t, paid.PaymentReference, "PAY-")

	require.Len(t, loans.paid, 1)
	assert.InDelta(t, 500, loans.paid[0], 1e-9)

	names := pub.names()
	assert.Contains(t, names, events.SettlementPaid)
	// two journal events: margin accrual at creation, payment at disbursement
	assert.Equal(t, 2, countOf(names, events.JournalCreate))

	stored, err := store.GetSettlement(context.Background(), stl.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, stored.PaymentStatus)
}

func TestApproveAndPayTwiceRejected(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &stubLoans{}, &recordingPublisher{})

	stl, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.NoError(t, err)

	_, err = svc.ApproveAndPay(context.Background(), stl.ID, "fm@omc.example", MethodCash, "")
	require.NoError(t, err)

	_, err = svc.ApproveAndPay(context.Background(), stl.ID, "fm@omc.example", MethodCash, "")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestApproveAndPayNoLoanDeductionSkipsLedger(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{}
	svc := newTestService(store, loans, &recordingPublisher{})

	stl, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.NoError(t, err)

	_, err = svc.ApproveAndPay(context.Background(), stl.ID, "fm@omc.example", MethodMobileMoney, "MM-123")
	require.NoError(t, err)
	assert.Empty(t, loans.paid)
}

func TestApproveAndPayInstallmentFailureBubblesUp(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{due: 500, markErr: errors.New("ledger down")}
	pub := &recordingPublisher{}
	svc := newTestService(store, loans, pub)

	stl, err := svc.CreateSettlement(context.Background(), baseRequest())
	require.NoError(t, err)

	_, err = svc.ApproveAndPay(context.Background(), stl.ID, "fm@omc.example", MethodBankTransfer, "")
	require.ErrorContains(t, err, "ledger down")
	assert.NotContains(t, pub.names(), events.SettlementPaid)
}

func TestApproveAndPayUnknownSettlement(t *testing.T) {
	svc := newTestService(newMockStore(), &stubLoans{}, &recordingPublisher{})

	_, err := svc.ApproveAndPay(context.Background(), "missing", "fm@omc.example", MethodCash, "")
	assert.ErrorIs(t, err, ErrSettlementNotFound)
}

func TestGenerateBulkIsolatesFailures(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	svc := newTestService(store, &stubLoans{}, pub)

	pairs := []DealerStationPair{
		{DealerID: "DLR-001", StationID: "STN-001", VolumeSold: 10000},
		{DealerID: "DLR-002", StationID: "STN-002", VolumeSold: 5000},
		{DealerID: "", StationID: "STN-003", VolumeSold: 4000}, // invalid pair
		{DealerID: "DLR-004", StationID: "STN-004", VolumeSold: 2000},
	}

	result, err := svc.GenerateBulk(context.Background(), "2024-W03", pairs, "ops@omc.example")
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalGenerated)
	assert.Len(t, result.Settlements, 3)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "STN-003", result.Errors[0].StationID)
	// 10000 + 5000 + 2000 litres of PMS at 0.35
	assert.InDelta(t, 5950, result.TotalMarginAmount, 1e-9)
	assert.Contains(t, pub.names(), events.SettlementsBulkDone)
	assert.Len(t, store.settlements, 3)
}

func TestGenerateBulkMissingWindow(t *testing.T) {
	svc := NewService(newMockStore(), stubWindows{err: pricing.ErrWindowNotFound}, &stubLoans{},
		&recordingPublisher{}, testLogger(), DefaultPolicy())

	_, err := svc.GenerateBulk(context.Background(), "gone", []DealerStationPair{
		{DealerID: "DLR-001", StationID: "STN-001", VolumeSold: 100},
	}, "ops@omc.example")
	assert.ErrorIs(t, err, pricing.ErrWindowNotFound)
}

func TestPerformanceSummaryNoData(t *testing.T) {
	svc := newTestService(newMockStore(), &stubLoans{outstanding: 1500}, &recordingPublisher{})

	summary, err := svc.PerformanceSummary(context.Background(), "DLR-009", "STN-009", DateRange{})
	require.NoError(t, err)
	assert.Equal(t, RatingNoData, summary.PerformanceRating)
	assert.Zero(t, summary.TotalSettlements)
	assert.InDelta(t, 1500, summary.OutstandingLoanBalance, 1e-9)
}

func TestPerformanceSummaryRating(t *testing.T) {
	store := newMockStore()
	loans := &stubLoans{outstanding: 0}
	svc := newTestService(store, loans, &recordingPublisher{})

	// twelve clean settlements at full PMS margin with no deductions
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		store.settlements[string(rune('a'+i))] = Settlement{
			ID:                string(rune('a' + i)),
			DealerID:          "DLR-001",
			StationID:         "STN-001",
			VolumeSoldLitres:  10000,
			GrossDealerMargin: 3500,
			TotalDeductions:   262.50,
			NetPayable:        3237.50,
			CreatedAt:         base.AddDate(0, i, 0),
		}
	}

	summary, err := svc.PerformanceSummary(context.Background(), "DLR-001", "STN-001", DateRange{})
	require.NoError(t, err)

	assert.Equal(t, 12, summary.TotalSettlements)
	assert.InDelta(t, 0.35, summary.AverageMarginPerLitre, 1e-9)
	assert.Equal(t, "EXCELLENT", summary.PerformanceRating)
	assert.Equal(t, base.AddDate(0, 11, 0), summary.LastSettlementDate)
}

func TestPerformanceSummaryIndebtednessScoredAgainstMargin(t *testing.T) {
	store := newMockStore()
	// deductions consume most of the margin, but outstanding debt is small
	// relative to margin earned (150 / 1000 = 0.15), so the dealer still
	// collects the indebtedness points
	svc := newTestService(store, &stubLoans{outstanding: 150}, &recordingPublisher{})

	store.settlements["z"] = Settlement{
		ID: "z", DealerID: "DLR-003", StationID: "STN-003",
		VolumeSoldLitres: 1000, GrossDealerMargin: 1000,
		TotalDeductions: 900, NetPayable: 100,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	summary, err := svc.PerformanceSummary(context.Background(), "DLR-003", "STN-003", DateRange{})
	require.NoError(t, err)
	// strong per-litre margin and low indebtedness: 50 points
	assert.Equal(t, "POOR", summary.PerformanceRating)
}

func TestPerformanceSummaryZeroOutstandingEarnsIndebtednessPoints(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &stubLoans{outstanding: 0}, &recordingPublisher{})

	store.settlements["q"] = Settlement{
		ID: "q", DealerID: "DLR-005", StationID: "STN-005",
		VolumeSoldLitres: 1000, GrossDealerMargin: 100,
		TotalDeductions: 5, NetPayable: 95,
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	summary, err := svc.PerformanceSummary(context.Background(), "DLR-005", "STN-005", DateRange{})
	require.NoError(t, err)
	// low deduction load plus debt-free: 50 points
	assert.Equal(t, "POOR", summary.PerformanceRating)
}

func TestPerformanceSummaryHeavyDeductions(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &stubLoans{outstanding: 5000}, &recordingPublisher{})

	// two settlements, deductions eating most of the margin
	store.settlements["x"] = Settlement{
		ID: "x", DealerID: "DLR-002", StationID: "STN-002",
		VolumeSoldLitres: 1000, GrossDealerMargin: 250,
		TotalDeductions: 200, NetPayable: 50,
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	store.settlements["y"] = Settlement{
		ID: "y", DealerID: "DLR-002", StationID: "STN-002",
		VolumeSoldLitres: 1000, GrossDealerMargin: 250,
		TotalDeductions: 180, NetPayable: 70,
		CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	summary, err := svc.PerformanceSummary(context.Background(), "DLR-002", "STN-002", DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "VERY_POOR", summary.PerformanceRating)
}

func countOf(names []string, want string) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}
