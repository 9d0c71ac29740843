// Package loan manages dealer loan origination and amortization schedules.
package loan

import (
	"errors"
	"fmt"
	"time"

	"github.com/sankofa-erp/sankofa-erp/internal/platform/httpx"
)

// Type classifies the purpose of a dealer loan.
type Type string

const (
	TypeWorkingCapital Type = "WORKING_CAPITAL"
	TypeEquipment      Type = "EQUIPMENT"
	TypeInfrastructure Type = "INFRASTRUCTURE"
	TypeOther          Type = "OTHER"
)

// IsValid checks if the loan type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkingCapital, TypeEquipment, TypeInfrastructure, TypeOther:
		return true
	default:
		return false
	}
}

// Status represents the lifecycle of a dealer loan.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusClosed    Status = "CLOSED"
	StatusDefaulted Status = "DEFAULTED"
)

// RepaymentFrequency enumerates supported repayment cadences.
type RepaymentFrequency string

const (
	FrequencyDaily       RepaymentFrequency = "DAILY"
	FrequencyWeekly      RepaymentFrequency = "WEEKLY"
	FrequencyFortnightly RepaymentFrequency = "FORTNIGHTLY"
	FrequencyMonthly     RepaymentFrequency = "MONTHLY"
)

// PaymentStatus tracks whether a schedule installment has been settled.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// AmortizationEqualInstallment is the only amortization method in use.
// Principal, rate and tenor are immutable once the loan is originated.
const AmortizationEqualInstallment = "EQUAL_INSTALLMENT"

// Loan is a dealer loan. EndDate is always StartDate plus TenorMonths.
type Loan struct {
	ID                string             `json:"loan_id"`
	Number            string             `json:"loan_number"`
	DealerID          string             `json:"dealer_id"`
	StationID         string             `json:"station_id"`
	Type              Type               `json:"loan_type"`
	PrincipalAmount   float64            `json:"principal_amount"`
	InterestRate      float64            `json:"interest_rate"`
	TenorMonths       int                `json:"tenor_months"`
	Frequency         RepaymentFrequency `json:"repayment_frequency"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           time.Time          `json:"end_date"`
	Method            string             `json:"amortization_method"`
	GracePeriodMonths int                `json:"grace_period_months"`
	Status            Status             `json:"status"`
	GuarantorInfo     map[string]any     `json:"guarantor_info,omitempty"`
	CollateralInfo    map[string]any     `json:"collateral_info,omitempty"`
	CreatedBy         string             `json:"created_by"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         *time.Time         `json:"updated_at,omitempty"`
}

// ScheduleEntry is one installment of the amortization schedule. The schedule
// is generated in full at origination; BalanceAfter of entry i equals
// BalanceBefore of entry i+1 and the final BalanceAfter is zero up to rounding.
type ScheduleEntry struct {
	ID                string        `json:"schedule_id"`
	LoanID            string        `json:"loan_id"`
	InstallmentNumber int           `json:"installment_number"`
	DueDate           time.Time     `json:"due_date"`
	PrincipalAmount   float64       `json:"principal_amount"`
	InterestAmount    float64       `json:"interest_amount"`
	TotalAmount       float64       `json:"total_amount"`
	BalanceBefore     float64       `json:"balance_before"`
	BalanceAfter      float64       `json:"balance_after"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	PaymentDate       *time.Time    `json:"payment_date,omitempty"`
	PaymentAmount     *float64      `json:"payment_amount,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// CreateLoanRequest captures loan origination input.
type CreateLoanRequest struct {
	DealerID          string             `json:"dealer_id" validate:"required"`
	StationID         string             `json:"station_id" validate:"required"`
	LoanType          Type               `json:"loan_type" validate:"required"`
	PrincipalAmount   float64            `json:"principal_amount" validate:"required,gt=0"`
	InterestRate      float64            `json:"interest_rate" validate:"gte=0"`
	TenorMonths       int                `json:"tenor_months" validate:"required,gte=1"`
	Frequency         RepaymentFrequency `json:"repayment_frequency" validate:"required,oneof=DAILY WEEKLY FORTNIGHTLY MONTHLY"`
	StartDate         time.Time          `json:"start_date" validate:"required"`
	GracePeriodMonths int                `json:"grace_period_months" validate:"gte=0"`
	GuarantorInfo     map[string]any     `json:"guarantor_info,omitempty"`
	CollateralInfo    map[string]any     `json:"collateral_info,omitempty"`
	CreatedBy         string             `json:"created_by" validate:"required"`
}

// Validate ensures correctness beyond struct tags.
func (r CreateLoanRequest) Validate() error {
	if !r.LoanType.IsValid() {
		return fmt.Errorf("%w: invalid loan type", httpx.ErrValidation)
	}
	if r.PrincipalAmount <= 0 {
		return fmt.Errorf("%w: principal must be positive", httpx.ErrValidation)
	}
	if r.TenorMonths < 1 {
		return fmt.Errorf("%w: tenor must be at least one month", httpx.ErrValidation)
	}
	if r.InterestRate < 0 {
		return fmt.Errorf("%w: interest rate cannot be negative", httpx.ErrValidation)
	}
	return nil
}

var (
	// ErrLoanNotFound occurs when a loan is missing.
	ErrLoanNotFound = errors.New("loan: not found")
	// ErrCreditCheckFailed occurs when the dealer fails the risk check.
	ErrCreditCheckFailed = errors.New("loan: dealer failed creditworthiness check")
)
