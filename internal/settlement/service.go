package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sankofa-erp/sankofa-erp/internal/events"
	"github.com/sankofa-erp/sankofa-erp/internal/pricing"
)

// Store abstracts settlement persistence.
type Store interface {
	InsertSettlement(ctx context.Context, s Settlement) error
	GetSettlement(ctx context.Context, settlementID string) (Settlement, error)
	UpdateSettlement(ctx context.Context, s Settlement) error
	ListByDealer(ctx context.Context, dealerID, stationID string, rng DateRange) ([]Settlement, error)
}

// DealerStationValidator checks that a dealer actually operates the station a
// settlement is raised for. The dealer registry owns that relationship, so it
// is an injected collaborator here.
type DealerStationValidator interface {
	ValidateAssignment(ctx context.Context, dealerID, stationID string) error
}

// LoanLedger is the loan surface settlement depends on: due installments
// feed the loan deduction, and a paid settlement retires the installment.
type LoanLedger interface {
	InstallmentDueInPeriod(ctx context.Context, dealerID, stationID string, from, to time.Time) (float64, error)
	OutstandingBalance(ctx context.Context, dealerID, stationID string) (float64, error)
	MarkInstallmentPaid(ctx context.Context, dealerID string, amount float64, paidAt time.Time) error
}

// Service computes, persists and pays dealer settlements.
type Service struct {
	store     Store
	windows   pricing.Store
	loans     LoanLedger
	publisher events.Publisher
	logger    *slog.Logger
	policy    Policy
	cache     *PerformanceCache
	validator DealerStationValidator
	now       func() time.Time
}

// NewService builds the service with the given commercial policy.
func NewService(store Store, windows pricing.Store, loans LoanLedger, publisher events.Publisher, logger *slog.Logger, policy Policy) *Service {
	return &Service{
		store:     store,
		windows:   windows,
		loans:     loans,
		publisher: publisher,
		logger:    logger,
		policy:    policy,
		now:       time.Now,
	}
}

// WithCache attaches a best-effort performance summary cache.
func (s *Service) WithCache(cache *PerformanceCache) *Service {
	s.cache = cache
	return s
}

// WithDealerValidator attaches a dealer-station assignment check. Without one
// any non-empty pair is accepted.
func (s *Service) WithDealerValidator(validator DealerStationValidator) *Service {
	s.validator = validator
	return s
}

// CreateSettlement computes one dealer settlement for a pricing window:
// gross margin from volume, loan and tax deductions, net payable. The record
// is created in DRAFT with approval and payment pending.
func (s *Service) CreateSettlement(ctx context.Context, req CreateSettlementRequest) (Settlement, error) {
	if err := req.Validate(); err != nil {
		return Settlement{}, err
	}
	if s.validator != nil {
		if err := s.validator.ValidateAssignment(ctx, req.DealerID, req.StationID); err != nil {
			return Settlement{}, fmt.Errorf("dealer station assignment: %w", err)
		}
	}
	if _, err := s.windows.GetWindow(ctx, req.WindowID); err != nil {
		return Settlement{}, fmt.Errorf("resolve pricing window %s: %w", req.WindowID, err)
	}

	rate, ok := s.policy.MarginRate(req.ProductType)
	if !ok {
		return Settlement{}, fmt.Errorf("%w: %s", ErrUnknownProduct, req.ProductType)
	}

	loanDeduction, err := s.loans.InstallmentDueInPeriod(ctx, req.DealerID, req.StationID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return Settlement{}, fmt.Errorf("loan installment lookup: %w", err)
	}

	now := s.now()
	gross := round2(req.VolumeSoldLitres * rate)
	tax := round2((gross + req.OtherIncome) * s.policy.Taxes.Withholding)
	total := round2(loanDeduction + req.ShortageDeduction + req.DamageDeduction +
		req.AdvanceDeduction + tax + req.OtherDeductions)
	net := round2(gross + req.OtherIncome - total)

	productType := req.ProductType
	if productType == "" {
		productType = "PMS"
	}

	stl := Settlement{
		ID:                uuid.NewString(),
		Number:            fmt.Sprintf("SETT-%s-%s-%d", req.DealerID, req.WindowID, now.UnixMilli()),
		DealerID:          req.DealerID,
		StationID:         req.StationID,
		WindowID:          req.WindowID,
		PeriodStart:       req.PeriodStart,
		PeriodEnd:         req.PeriodEnd,
		ProductType:       productType,
		GrossDealerMargin: gross,
		VolumeSoldLitres:  req.VolumeSoldLitres,
		OtherIncome:       req.OtherIncome,
		LoanDeduction:     round2(loanDeduction),
		ShortageDeduction: req.ShortageDeduction,
		DamageDeduction:   req.DamageDeduction,
		AdvanceDeduction:  req.AdvanceDeduction,
		TaxDeduction:      tax,
		OtherDeductions:   req.OtherDeductions,
		TotalDeductions:   total,
		NetPayable:        net,
		Status:            StatusDraft,
		ApprovalStatus:    ApprovalPending,
		PaymentStatus:     PaymentPending,
		CreatedBy:         req.CreatedBy,
		CreatedAt:         now,
	}

	if err := s.store.InsertSettlement(ctx, stl); err != nil {
		return Settlement{}, fmt.Errorf("insert settlement: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.JournalCreate, map[string]any{
		"template_code": "DEALER_MARGIN_ACCRUAL",
		"settlement_id": stl.ID,
		"gross_margin":  stl.GrossDealerMargin,
		"net_payable":   stl.NetPayable,
	}); err != nil {
		s.logger.Warn("margin accrual journal event", slog.Any("error", err))
	}
	if err := s.publisher.Publish(ctx, events.SettlementCreated, map[string]any{
		"settlement_id":     stl.ID,
		"settlement_number": stl.Number,
		"dealer_id":         stl.DealerID,
		"net_payable":       stl.NetPayable,
		"requires_approval": s.RequiresApproval(stl),
	}); err != nil {
		s.logger.Warn("settlement created event", slog.Any("error", err))
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, stl.DealerID)
	}

	s.logger.Info("dealer settlement created",
		slog.String("settlement_number", stl.Number),
		slog.Float64("net_payable", stl.NetPayable))
	return stl, nil
}

// RequiresApproval reports whether the settlement exceeds the payment
// approval threshold. The absolute value is checked so a large dealer deficit
// also routes through approval.
func (s *Service) RequiresApproval(stl Settlement) bool {
	return math.Abs(stl.NetPayable) > s.policy.ApprovalThresholdGHS
}

// GetSettlement returns a settlement by ID.
func (s *Service) GetSettlement(ctx context.Context, settlementID string) (Settlement, error) {
	return s.store.GetSettlement(ctx, settlementID)
}

// ApproveAndPay approves a pending settlement and records its payment in one
// step. A paid settlement also retires the dealer's due loan installment.
func (s *Service) ApproveAndPay(ctx context.Context, settlementID, approvedBy string, method PaymentMethod, paymentReference string) (Settlement, error) {
	if !method.IsValid() {
		return Settlement{}, fmt.Errorf("settlement: invalid payment method %q", method)
	}
	stl, err := s.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return Settlement{}, err
	}
	if stl.PaymentStatus == PaymentCompleted {
		return Settlement{}, ErrAlreadyPaid
	}

	now := s.now()
	if paymentReference == "" {
		paymentReference = fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
	}

	stl.Status = StatusCompleted
	stl.ApprovalStatus = ApprovalApproved
	stl.ApprovedBy = approvedBy
	stl.ApprovedAt = &now
	stl.PaymentStatus = PaymentCompleted
	stl.PaymentDate = &now
	stl.PaymentReference = paymentReference
	stl.UpdatedAt = &now

	if err := s.store.UpdateSettlement(ctx, stl); err != nil {
		return Settlement{}, fmt.Errorf("update settlement: %w", err)
	}

	if stl.LoanDeduction > 0 {
		if err := s.loans.MarkInstallmentPaid(ctx, stl.DealerID, stl.LoanDeduction, now); err != nil {
			return Settlement{}, fmt.Errorf("mark loan installment paid: %w", err)
		}
	}

	if err := s.publisher.Publish(ctx, events.JournalCreate, map[string]any{
		"template_code": "DEALER_SETTLEMENT_PAYMENT",
		"settlement_id": stl.ID,
		"amount":        stl.NetPayable,
		"method":        string(method),
	}); err != nil {
		s.logger.Warn("settlement payment journal event", slog.Any("error", err))
	}
	if err := s.publisher.Publish(ctx, events.SettlementPaid, map[string]any{
		"settlement_id":     stl.ID,
		"settlement_number": stl.Number,
		"dealer_id":         stl.DealerID,
		"amount":            stl.NetPayable,
		"payment_reference": stl.PaymentReference,
	}); err != nil {
		s.logger.Warn("settlement paid event", slog.Any("error", err))
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, stl.DealerID)
	}

	s.logger.Info("dealer settlement paid",
		slog.String("settlement_number", stl.Number),
		slog.String("payment_reference", stl.PaymentReference))
	return stl, nil
}

// GenerateBulk creates one settlement per dealer-station pair over a single
// pricing window. Pairs are processed with bounded parallelism and one
// failing pair never aborts the rest of the batch.
func (s *Service) GenerateBulk(ctx context.Context, windowID string, pairs []DealerStationPair, createdBy string) (BulkResult, error) {
	window, err := s.windows.GetWindow(ctx, windowID)
	if err != nil {
		return BulkResult{}, fmt.Errorf("resolve pricing window %s: %w", windowID, err)
	}

	var (
		mu     sync.Mutex
		result BulkResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			stl, err := s.CreateSettlement(gctx, CreateSettlementRequest{
				DealerID:         pair.DealerID,
				StationID:        pair.StationID,
				WindowID:         windowID,
				PeriodStart:      window.StartDate,
				PeriodEnd:        window.EndDate,
				VolumeSoldLitres: pair.VolumeSold,
				CreatedBy:        createdBy,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, BulkError{
					DealerID:  pair.DealerID,
					StationID: pair.StationID,
					Error:     err.Error(),
				})
				return nil
			}
			result.TotalGenerated++
			result.TotalMarginAmount = round2(result.TotalMarginAmount + stl.GrossDealerMargin)
			result.Settlements = append(result.Settlements, stl)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BulkResult{}, err
	}

	if err := s.publisher.Publish(ctx, events.SettlementsBulkDone, map[string]any{
		"window_id":       windowID,
		"total_generated": result.TotalGenerated,
		"total_margin":    result.TotalMarginAmount,
		"failed":          len(result.Errors),
	}); err != nil {
		s.logger.Warn("bulk settlements event", slog.Any("error", err))
	}

	s.logger.Info("bulk settlements generated",
		slog.String("window_id", windowID),
		slog.Int("generated", result.TotalGenerated),
		slog.Int("failed", len(result.Errors)))
	return result, nil
}

// PerformanceSummary aggregates a dealer's settlement history at one station
// and grades it against margin, consistency, deduction and indebtedness
// benchmarks.
func (s *Service) PerformanceSummary(ctx context.Context, dealerID, stationID string, rng DateRange) (PerformanceSummary, error) {
	if s.cache != nil {
		if summary, ok := s.cache.Get(ctx, dealerID, stationID, rng); ok {
			return summary, nil
		}
	}
	settlements, err := s.store.ListByDealer(ctx, dealerID, stationID, rng)
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("list settlements: %w", err)
	}
	outstanding, err := s.loans.OutstandingBalance(ctx, dealerID, stationID)
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("outstanding loan balance: %w", err)
	}

	summary := PerformanceSummary{
		DealerID:               dealerID,
		StationID:              stationID,
		OutstandingLoanBalance: outstanding,
		PerformanceRating:      RatingNoData,
	}
	if len(settlements) == 0 {
		return summary, nil
	}

	for _, stl := range settlements {
		summary.TotalVolume += stl.VolumeSoldLitres
		summary.TotalMarginEarned += stl.GrossDealerMargin
		summary.TotalDeductions += stl.TotalDeductions
		summary.TotalNetPayments += stl.NetPayable
		if stl.CreatedAt.After(summary.LastSettlementDate) {
			summary.LastSettlementDate = stl.CreatedAt
		}
	}
	summary.TotalSettlements = len(settlements)
	summary.TotalMarginEarned = round2(summary.TotalMarginEarned)
	summary.TotalDeductions = round2(summary.TotalDeductions)
	summary.TotalNetPayments = round2(summary.TotalNetPayments)
	if summary.TotalVolume > 0 {
		summary.AverageMarginPerLitre = summary.TotalMarginEarned / summary.TotalVolume
	}
	summary.PerformanceRating = ratePerformance(summary)
	if s.cache != nil {
		s.cache.Set(ctx, dealerID, stationID, rng, summary)
	}
	return summary, nil
}

// ratePerformance scores a dealer out of 100: 25 points each for strong
// per-litre margin, settlement consistency, low deduction load and low
// indebtedness.
func ratePerformance(s PerformanceSummary) string {
	score := 0
	if s.AverageMarginPerLitre >= 0.30 {
		score += 25
	}
	if s.TotalSettlements >= 12 {
		score += 25
	}
	if s.TotalMarginEarned > 0 && s.TotalDeductions/s.TotalMarginEarned <= 0.10 {
		score += 25
	}
	marginBase := s.TotalMarginEarned
	if marginBase == 0 {
		marginBase = 1
	}
	if s.OutstandingLoanBalance/marginBase <= 0.20 {
		score += 25
	}
	switch {
	case score >= 90:
		return "EXCELLENT"
	case score >= 75:
		return "GOOD"
	case score >= 60:
		return "FAIR"
	case score >= 40:
		return "POOR"
	default:
		return "VERY_POOR"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
