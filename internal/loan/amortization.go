package loan

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Amortize generates the full equal-installment (annuity) schedule for a loan.
// Monthly interest is balance * annualRate/100/12; the principal portion is the
// fixed payment minus interest, with the running balance floored at zero.
//
// A zero interest rate would make the annuity formula divide by zero, so that
// case falls back to an equal principal split across the tenor. The upstream
// policy for zero-rate loans is still undecided; see DESIGN.md.
func Amortize(loanID string, principal, annualRate float64, tenorMonths int, start time.Time, now time.Time) []ScheduleEntry {
	monthlyRate := annualRate / 100 / 12

	var monthlyPayment float64
	if monthlyRate == 0 {
		monthlyPayment = principal / float64(tenorMonths)
	} else {
		compound := math.Pow(1+monthlyRate, float64(tenorMonths))
		monthlyPayment = principal * (monthlyRate * compound) / (compound - 1)
	}

	schedule := make([]ScheduleEntry, 0, tenorMonths)
	balance := principal
	for i := 1; i <= tenorMonths; i++ {
		interest := balance * monthlyRate
		principalPortion := monthlyPayment - interest
		balanceBefore := balance
		balance = math.Max(0, balance-principalPortion)

		schedule = append(schedule, ScheduleEntry{
			ID:                uuid.NewString(),
			LoanID:            loanID,
			InstallmentNumber: i,
			DueDate:           start.AddDate(0, i, 0),
			PrincipalAmount:   principalPortion,
			InterestAmount:    interest,
			TotalAmount:       monthlyPayment,
			BalanceBefore:     balanceBefore,
			BalanceAfter:      balance,
			PaymentStatus:     PaymentPending,
			CreatedAt:         now,
		})
	}
	return schedule
}
