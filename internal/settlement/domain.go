// Package settlement converts dealer sales volumes in a pricing window into
// auditable net-payable settlement records.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/sankofa-erp/sankofa-erp/internal/platform/httpx"
)

// Status is the settlement lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
)

// ApprovalStatus tracks the human (or system) approval step.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
)

// PaymentStatus tracks disbursement of the net payable.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
)

// PaymentMethod enumerates supported disbursement channels.
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	MethodCash         PaymentMethod = "CASH"
	MethodCheck        PaymentMethod = "CHECK"
)

// IsValid checks if the payment method is valid.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodBankTransfer, MethodMobileMoney, MethodCash, MethodCheck:
		return true
	default:
		return false
	}
}

// Settlement is one dealer settlement over a pricing window. The arithmetic
// invariant holds at every lifecycle stage: TotalDeductions is the sum of the
// six deduction fields and NetPayable is GrossDealerMargin + OtherIncome −
// TotalDeductions. NetPayable may be negative; a deficit is carried as a
// balance payable by the dealer.
type Settlement struct {
	ID                string         `json:"settlement_id"`
	Number            string         `json:"settlement_number"`
	DealerID          string         `json:"dealer_id"`
	StationID         string         `json:"station_id"`
	WindowID          string         `json:"window_id"`
	PeriodStart       time.Time      `json:"period_start"`
	PeriodEnd         time.Time      `json:"period_end"`
	ProductType       string         `json:"product_type"`
	GrossDealerMargin float64        `json:"gross_dealer_margin"`
	VolumeSoldLitres  float64        `json:"volume_sold_litres"`
	OtherIncome       float64        `json:"other_income"`
	LoanDeduction     float64        `json:"loan_deduction"`
	ShortageDeduction float64        `json:"shortage_deduction"`
	DamageDeduction   float64        `json:"damage_deduction"`
	AdvanceDeduction  float64        `json:"advance_deduction"`
	TaxDeduction      float64        `json:"tax_deduction"`
	OtherDeductions   float64        `json:"other_deductions"`
	TotalDeductions   float64        `json:"total_deductions"`
	NetPayable        float64        `json:"net_payable"`
	Status            Status         `json:"status"`
	ApprovalStatus    ApprovalStatus `json:"approval_status"`
	ApprovedBy        string         `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time     `json:"approved_at,omitempty"`
	PaymentStatus     PaymentStatus  `json:"payment_status"`
	PaymentDate       *time.Time     `json:"payment_date,omitempty"`
	PaymentReference  string         `json:"payment_reference,omitempty"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
}

// CreateSettlementRequest captures settlement creation input. Deduction fields
// default to zero when omitted. ProductType defaults to PMS.
type CreateSettlementRequest struct {
	DealerID          string    `json:"dealer_id" validate:"required"`
	StationID         string    `json:"station_id" validate:"required"`
	WindowID          string    `json:"window_id" validate:"required"`
	PeriodStart       time.Time `json:"period_start" validate:"required"`
	PeriodEnd         time.Time `json:"period_end" validate:"required"`
	ProductType       string    `json:"product_type,omitempty"`
	VolumeSoldLitres  float64   `json:"volume_sold_litres" validate:"gte=0"`
	OtherIncome       float64   `json:"other_income,omitempty" validate:"gte=0"`
	ShortageDeduction float64   `json:"shortage_deduction,omitempty" validate:"gte=0"`
	DamageDeduction   float64   `json:"damage_deduction,omitempty" validate:"gte=0"`
	AdvanceDeduction  float64   `json:"advance_deduction,omitempty" validate:"gte=0"`
	OtherDeductions   float64   `json:"other_deductions,omitempty" validate:"gte=0"`
	CreatedBy         string    `json:"created_by" validate:"required"`
}

// Validate ensures correctness beyond struct tags.
func (r CreateSettlementRequest) Validate() error {
	if r.DealerID == "" || r.StationID == "" || r.WindowID == "" {
		return fmt.Errorf("%w: dealer, station and window required", httpx.ErrValidation)
	}
	if r.VolumeSoldLitres < 0 {
		return fmt.Errorf("%w: volume cannot be negative", httpx.ErrValidation)
	}
	if r.PeriodEnd.Before(r.PeriodStart) {
		return fmt.Errorf("%w: period end precedes period start", httpx.ErrValidation)
	}
	return nil
}

// DealerStationPair is one bulk generation target.
type DealerStationPair struct {
	DealerID   string  `json:"dealer_id" validate:"required"`
	StationID  string  `json:"station_id" validate:"required"`
	VolumeSold float64 `json:"volume_sold" validate:"gte=0"`
}

// BulkError records a single failed pair in a bulk run.
type BulkError struct {
	DealerID  string `json:"dealer_id"`
	StationID string `json:"station_id"`
	Error     string `json:"error"`
}

// BulkResult aggregates a bulk settlement run. Failures never abort the batch;
// they are reported here alongside the successes.
type BulkResult struct {
	TotalGenerated    int          `json:"total_generated"`
	TotalMarginAmount float64      `json:"total_margin_amount"`
	Settlements       []Settlement `json:"settlements"`
	Errors            []BulkError  `json:"errors"`
}

// RatingNoData is returned when a dealer has no settlement history.
const RatingNoData = "NO_DATA"

// PerformanceSummary aggregates a dealer's settlement history.
type PerformanceSummary struct {
	DealerID               string    `json:"dealer_id"`
	StationID              string    `json:"station_id"`
	TotalSettlements       int       `json:"total_settlements"`
	TotalVolume            float64   `json:"total_volume"`
	TotalMarginEarned      float64   `json:"total_margin_earned"`
	TotalDeductions        float64   `json:"total_deductions"`
	TotalNetPayments       float64   `json:"total_net_payments"`
	AverageMarginPerLitre  float64   `json:"average_margin_per_litre"`
	OutstandingLoanBalance float64   `json:"outstanding_loan_balance"`
	LastSettlementDate     time.Time `json:"last_settlement_date"`
	PerformanceRating      string    `json:"performance_rating"`
}

// DateRange bounds a performance query. Zero values mean unbounded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

var (
	// ErrSettlementNotFound occurs when a settlement is missing.
	ErrSettlementNotFound = errors.New("settlement: not found")
	// ErrUnknownProduct occurs when no margin rate covers the product type.
	ErrUnknownProduct = errors.New("settlement: no margin rate for product")
	// ErrAlreadyPaid occurs when paying a settlement twice.
	ErrAlreadyPaid = errors.New("settlement: already paid")
)
