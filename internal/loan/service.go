package loan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sankofa-erp/sankofa-erp/internal/events"
)

// Store abstracts loan persistence.
type Store interface {
	CreateLoan(ctx context.Context, l Loan, schedule []ScheduleEntry) error
	GetLoan(ctx context.Context, loanID string) (Loan, error)
	GetSchedule(ctx context.Context, loanID string) ([]ScheduleEntry, error)
	InstallmentDueInPeriod(ctx context.Context, dealerID, stationID string, from, to time.Time) (float64, error)
	OutstandingBalance(ctx context.Context, dealerID, stationID string) (float64, error)
	MarkInstallmentPaid(ctx context.Context, dealerID string, amount float64, paidAt time.Time) error
}

// CreditChecker validates dealer creditworthiness before origination.
type CreditChecker interface {
	CheckCreditworthiness(ctx context.Context, dealerID string, amount float64) error
}

// Service coordinates loan origination and the ledger surface consumed by
// settlement.
type Service struct {
	store     Store
	credit    CreditChecker
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the service.
func NewService(store Store, credit CreditChecker, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		credit:    credit,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateLoan originates a dealer loan: risk check, schedule generation,
// transactional persist, disbursement journal, event emission.
func (s *Service) CreateLoan(ctx context.Context, req CreateLoanRequest) (Loan, []ScheduleEntry, error) {
	if err := req.Validate(); err != nil {
		return Loan{}, nil, err
	}
	if err := s.credit.CheckCreditworthiness(ctx, req.DealerID, req.PrincipalAmount); err != nil {
		return Loan{}, nil, fmt.Errorf("%w: %v", ErrCreditCheckFailed, err)
	}

	now := s.now()
	l := Loan{
		ID:                uuid.NewString(),
		Number:            fmt.Sprintf("LOAN-%s-%d", req.DealerID, now.UnixMilli()),
		DealerID:          req.DealerID,
		StationID:         req.StationID,
		Type:              req.LoanType,
		PrincipalAmount:   req.PrincipalAmount,
		InterestRate:      req.InterestRate,
		TenorMonths:       req.TenorMonths,
		Frequency:         req.Frequency,
		StartDate:         req.StartDate,
		EndDate:           req.StartDate.AddDate(0, req.TenorMonths, 0),
		Method:            AmortizationEqualInstallment,
		GracePeriodMonths: req.GracePeriodMonths,
		Status:            StatusActive,
		GuarantorInfo:     req.GuarantorInfo,
		CollateralInfo:    req.CollateralInfo,
		CreatedBy:         req.CreatedBy,
		CreatedAt:         now,
	}

	schedule := Amortize(l.ID, l.PrincipalAmount, l.InterestRate, l.TenorMonths, l.StartDate, now)

	if err := s.store.CreateLoan(ctx, l, schedule); err != nil {
		return Loan{}, nil, fmt.Errorf("create loan: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.JournalCreate, map[string]any{
		"template_code": "LOAN_DISBURSEMENT",
		"loan_id":       l.ID,
		"amount":        l.PrincipalAmount,
	}); err != nil {
		s.logger.Warn("disbursement journal event", slog.Any("error", err))
	}

	monthlyPayment := 0.0
	if len(schedule) > 0 {
		monthlyPayment = schedule[0].TotalAmount
	}
	if err := s.publisher.Publish(ctx, events.LoanCreated, map[string]any{
		"loan_id":          l.ID,
		"dealer_id":        l.DealerID,
		"principal_amount": l.PrincipalAmount,
		"monthly_payment":  monthlyPayment,
	}); err != nil {
		s.logger.Warn("loan created event", slog.Any("error", err))
	}

	s.logger.Info("dealer loan created",
		slog.String("loan_number", l.Number),
		slog.Float64("principal", l.PrincipalAmount))
	return l, schedule, nil
}

// GetLoan returns the loan by ID.
func (s *Service) GetLoan(ctx context.Context, loanID string) (Loan, error) {
	return s.store.GetLoan(ctx, loanID)
}

// GetSchedule returns the full amortization schedule of a loan.
func (s *Service) GetSchedule(ctx context.Context, loanID string) ([]ScheduleEntry, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.GetSchedule(ctx, loanID)
}

// InstallmentDueInPeriod exposes the settlement-facing deduction lookup.
func (s *Service) InstallmentDueInPeriod(ctx context.Context, dealerID, stationID string, from, to time.Time) (float64, error) {
	return s.store.InstallmentDueInPeriod(ctx, dealerID, stationID, from, to)
}

// OutstandingBalance exposes the settlement-facing balance lookup.
func (s *Service) OutstandingBalance(ctx context.Context, dealerID, stationID string) (float64, error) {
	return s.store.OutstandingBalance(ctx, dealerID, stationID)
}

// MarkInstallmentPaid records a repayment applied by a paid settlement.
func (s *Service) MarkInstallmentPaid(ctx context.Context, dealerID string, amount float64, paidAt time.Time) error {
	return s.store.MarkInstallmentPaid(ctx, dealerID, amount, paidAt)
}
