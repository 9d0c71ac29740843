package loan

import (
	"context"
	"fmt"
)

// DefaultMaxExposureGHS caps the combined outstanding principal a single
// dealer may carry across all stations.
const DefaultMaxExposureGHS = 500000

// LedgerCreditChecker approves originations from the loan ledger itself: a
// dealer passes while the requested principal plus current outstanding
// balance stays under the exposure cap.
type LedgerCreditChecker struct {
	store       Store
	maxExposure float64
}

// NewLedgerCreditChecker builds a checker with the default exposure cap.
func NewLedgerCreditChecker(store Store) *LedgerCreditChecker {
	return &LedgerCreditChecker{store: store, maxExposure: DefaultMaxExposureGHS}
}

// WithMaxExposure overrides the exposure cap.
func (c *LedgerCreditChecker) WithMaxExposure(limit float64) *LedgerCreditChecker {
	c.maxExposure = limit
	return c
}

// CheckCreditworthiness implements CreditChecker.
func (c *LedgerCreditChecker) CheckCreditworthiness(ctx context.Context, dealerID string, amount float64) error {
	outstanding, err := c.store.OutstandingBalance(ctx, dealerID, "")
	if err != nil {
		return fmt.Errorf("outstanding balance: %w", err)
	}
	if outstanding+amount > c.maxExposure {
		return fmt.Errorf("exposure %.2f exceeds limit %.2f", outstanding+amount, c.maxExposure)
	}
	return nil
}
