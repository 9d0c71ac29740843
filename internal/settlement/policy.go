package settlement

// TaxRates are the statutory rates applied to dealer margins. Only the
// withholding rate is deducted from settlements today; the consumption taxes
// are carried for journal annotation.
type TaxRates struct {
	Withholding float64
	VAT         float64
	NHIL        float64
	GETFund     float64
}

// Policy is the immutable commercial configuration for settlement runs.
type Policy struct {
	// MarginRates maps product type to the regulated dealer margin in GHS
	// per litre.
	MarginRates map[string]float64
	Taxes       TaxRates
	// ApprovalThresholdGHS is the absolute net payable above which a
	// settlement requires explicit approval before payment.
	ApprovalThresholdGHS float64
}

// DefaultPolicy returns the current NPA-published margin structure and tax
// rates for Ghana.
func DefaultPolicy() Policy {
	return Policy{
		MarginRates: map[string]float64{
			"PMS": 0.35,
			"AGO": 0.35,
			"LPG": 0.30,
			"DPK": 0.25,
			"RFO": 0.20,
		},
		Taxes: TaxRates{
			Withholding: 0.075,
			VAT:         0.125,
			NHIL:        0.025,
			GETFund:     0.025,
		},
		ApprovalThresholdGHS: 10000,
	}
}

// MarginRate resolves the per-litre margin for a product type. An empty
// product defaults to PMS.
func (p Policy) MarginRate(productType string) (float64, bool) {
	if productType == "" {
		productType = "PMS"
	}
	rate, ok := p.MarginRates[productType]
	return rate, ok
}
