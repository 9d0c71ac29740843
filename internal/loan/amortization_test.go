package loan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmortizeRepaysFullPrincipal(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		principal float64
		rate      float64
		tenor     int
	}{
		{"working capital 12m", 50000, 18, 12},
		{"equipment 24m", 120000, 22.5, 24},
		{"small short loan", 1500, 10, 3},
		{"single installment", 8000, 15, 1},
		{"zero interest", 12000, 0, 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schedule := Amortize("loan-1", tc.principal, tc.rate, tc.tenor, start, start)
			require.Len(t, schedule, tc.tenor)

			var principalSum float64
			for i, entry := range schedule {
				principalSum += entry.PrincipalAmount
				assert.Equal(t, i+1, entry.InstallmentNumber)
				assert.Equal(t, start.AddDate(0, i+1, 0), entry.DueDate)
				assert.Equal(t, PaymentPending, entry.PaymentStatus)
				if i > 0 {
					assert.InDelta(t, schedule[i-1].BalanceAfter, entry.BalanceBefore, 1e-9,
						"balance chain broken at installment %d", i+1)
				}
			}
			assert.InDelta(t, tc.principal, principalSum, 0.01)
			assert.InDelta(t, 0, schedule[len(schedule)-1].BalanceAfter, 0.01)
		})
	}
}

func TestAmortizeEqualInstallmentAmounts(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	schedule := Amortize("loan-2", 10000, 24, 12, start, start)
	require.Len(t, schedule, 12)

	payment := schedule[0].TotalAmount
	for _, entry := range schedule {
		assert.InDelta(t, payment, entry.TotalAmount, 1e-9)
		assert.InDelta(t, entry.TotalAmount, entry.PrincipalAmount+entry.InterestAmount, 1e-9)
	}
	// Interest declines as the balance amortizes.
	assert.Greater(t, schedule[0].InterestAmount, schedule[11].InterestAmount)
}

func TestAmortizeZeroRateSplitsPrincipalEvenly(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	schedule := Amortize("loan-3", 9000, 0, 6, start, start)
	require.Len(t, schedule, 6)

	for _, entry := range schedule {
		assert.InDelta(t, 1500, entry.TotalAmount, 1e-9)
		assert.InDelta(t, 1500, entry.PrincipalAmount, 1e-9)
		assert.Zero(t, entry.InterestAmount)
	}
	assert.InDelta(t, 0, schedule[5].BalanceAfter, 1e-9)
}
