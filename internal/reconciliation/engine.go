package reconciliation

import (
	"fmt"
	"math"
	"time"
)

// Reference conditions for volume correction (ASTM D1250 approximation).
const (
	StandardTempC        = 15.0
	ExpansionCoefficient = 0.00065 // typical for gasoline
	DefaultAPIGravity    = 60.0
	TransitHours         = 8.0 // assumed depot-to-station transit time
)

// Tolerances are the business tolerance thresholds per variance dimension.
// Injected at construction; treated as read-only policy.
type Tolerances struct {
	VolumePercent  float64
	TemperatureC   float64
	TimingHours    float64
	DensityPercent float64
}

// DefaultTolerances returns the standard NPA-aligned thresholds.
func DefaultTolerances() Tolerances {
	return Tolerances{
		VolumePercent:  0.5,
		TemperatureC:   2.0,
		TimingHours:    2,
		DensityPercent: 0.5,
	}
}

// Weights control the confidence-weighted reconciled volume average.
type Weights struct {
	Depot       float64
	Transporter float64
	Station     float64
}

// DefaultWeights favors the controlled depot loading environment slightly.
func DefaultWeights() Weights {
	return Weights{Depot: 0.4, Transporter: 0.3, Station: 0.3}
}

// CriticalWeights shift trust toward the depot when sources disagree badly.
func CriticalWeights() Weights {
	return Weights{Depot: 0.6, Transporter: 0.2, Station: 0.2}
}

// CalculateVCF computes the Volume Correction Factor converting an observed
// volume to its 15°C equivalent. At exactly 15°C the factor is 1.0.
func CalculateVCF(temperature, apiGravity float64) float64 {
	_ = apiGravity // reserved for full ASTM table lookup
	return 1 - ExpansionCoefficient*(temperature-StandardTempC)
}

// CorrectVolumes normalizes all three reported volumes to 15°C.
func CorrectVolumes(depot DepotLoadingRecord, transporter TransporterDeliveryRecord, station StationReceivingRecord) CorrectedVolumes {
	apiGravity := depot.APIGravity
	if apiGravity == 0 {
		apiGravity = DefaultAPIGravity
	}

	factors := CorrectionFactors{
		Depot:       CalculateVCF(depot.LoadingTemp, apiGravity),
		Transporter: CalculateVCF(transporter.DeliveryTemp, apiGravity),
		Station:     CalculateVCF(station.ReceivingTemp, apiGravity),
	}
	return CorrectedVolumes{
		DepotAt15C:       depot.LitresLoaded * factors.Depot,
		TransporterAt15C: transporter.LitresDelivered * factors.Transporter,
		StationAt15C:     station.LitresReceived * factors.Station,
		Factors:          factors,
	}
}

// SeverityFor grades a measured variance against its tolerance.
func SeverityFor(variance, tolerance float64) Severity {
	ratio := variance / tolerance
	switch {
	case ratio <= 1:
		return SeverityLow
	case ratio <= 2:
		return SeverityMedium
	case ratio <= 5:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// DetectVariances runs every pairwise check across the three sources:
// volume on corrected figures, temperature between loading and delivery,
// timing against the transit assumption, and lab density depot vs station.
func DetectVariances(depot DepotLoadingRecord, transporter TransporterDeliveryRecord, station StationReceivingRecord, corrected CorrectedVolumes, tol Tolerances) []Variance {
	var variances []Variance

	depotTransporter := math.Abs(corrected.DepotAt15C - corrected.TransporterAt15C)
	depotTransporterPct := depotTransporter / corrected.DepotAt15C * 100
	if depotTransporterPct > tol.VolumePercent {
		variances = append(variances, Variance{
			Type:             VarianceVolume,
			Severity:         SeverityFor(depotTransporterPct, tol.VolumePercent),
			Description:      fmt.Sprintf("Depot-Transporter volume variance: %.2f%%", depotTransporterPct),
			QuantifiedImpact: depotTransporter,
			ExpectedValue:    corrected.DepotAt15C,
			ActualValue:      corrected.TransporterAt15C,
			Tolerance:        tol.VolumePercent,
			RootCause:        "Possible loading error or spillage during transport",
			CorrectiveAction: "Verify loading procedures and check for leaks",
		})
	}

	transporterStation := math.Abs(corrected.TransporterAt15C - corrected.StationAt15C)
	transporterStationPct := transporterStation / corrected.TransporterAt15C * 100
	if transporterStationPct > tol.VolumePercent {
		variances = append(variances, Variance{
			Type:             VarianceVolume,
			Severity:         SeverityFor(transporterStationPct, tol.VolumePercent),
			Description:      fmt.Sprintf("Transporter-Station volume variance: %.2f%%", transporterStationPct),
			QuantifiedImpact: transporterStation,
			ExpectedValue:    corrected.TransporterAt15C,
			ActualValue:      corrected.StationAt15C,
			Tolerance:        tol.VolumePercent,
			RootCause:        "Possible measurement error or ullage during unloading",
			CorrectiveAction: "Verify tank calibration and unloading procedures",
		})
	}

	tempDiff := math.Abs(depot.LoadingTemp - transporter.DeliveryTemp)
	if tempDiff > tol.TemperatureC {
		variances = append(variances, Variance{
			Type:             VarianceTemperature,
			Severity:         SeverityFor(tempDiff, tol.TemperatureC),
			Description:      fmt.Sprintf("Temperature change during transport: %.1f°C", tempDiff),
			QuantifiedImpact: tempDiff,
			ExpectedValue:    depot.LoadingTemp,
			ActualValue:      transporter.DeliveryTemp,
			Tolerance:        tol.TemperatureC,
		})
	}

	expectedDelivery := depot.LoadingTime.Add(time.Duration(TransitHours * float64(time.Hour)))
	timingHours := math.Abs(transporter.DeliveryTime.Sub(expectedDelivery).Hours())
	if timingHours > tol.TimingHours {
		variances = append(variances, Variance{
			Type:             VarianceTiming,
			Severity:         SeverityFor(timingHours, tol.TimingHours),
			Description:      fmt.Sprintf("Delivery timing variance: %.1f hours difference", timingHours),
			QuantifiedImpact: timingHours,
			ExpectedValue:    float64(expectedDelivery.Unix()),
			ActualValue:      float64(transporter.DeliveryTime.Unix()),
			Tolerance:        tol.TimingHours,
		})
	}

	if station.QualityTestResults != nil {
		densityDiff := math.Abs(depot.DensityAt15C - station.QualityTestResults.Density)
		densityPct := densityDiff / depot.DensityAt15C * 100
		if densityPct > tol.DensityPercent {
			variances = append(variances, Variance{
				Type:             VarianceQuality,
				Severity:         SeverityFor(densityPct, tol.DensityPercent),
				Description:      fmt.Sprintf("Density variance: %.2f%%", densityPct),
				QuantifiedImpact: densityDiff,
				ExpectedValue:    depot.DensityAt15C,
				ActualValue:      station.QualityTestResults.Density,
				Tolerance:        tol.DensityPercent,
			})
		}
	}

	return variances
}

// ReconciledVolume averages the corrected volumes with confidence weights,
// shifting trust to the depot when any CRITICAL variance exists.
func ReconciledVolume(corrected CorrectedVolumes, variances []Variance) float64 {
	weights := DefaultWeights()
	for _, v := range variances {
		if v.Severity == SeverityCritical {
			weights = CriticalWeights()
			break
		}
	}
	return corrected.DepotAt15C*weights.Depot +
		corrected.TransporterAt15C*weights.Transporter +
		corrected.StationAt15C*weights.Station
}

// OverallVariancePercent compares the reconciled figure to the original depot load.
func OverallVariancePercent(originalLitres, reconciledLitres float64) float64 {
	return math.Abs(originalLitres-reconciledLitres) / originalLitres * 100
}

// DetermineStatus derives the verdict: any CRITICAL variance fails the run,
// any HIGH variance or overall variance above 2% flags it, otherwise matched.
func DetermineStatus(variances []Variance, variancePercentage float64) Status {
	var high bool
	for _, v := range variances {
		switch v.Severity {
		case SeverityCritical:
			return StatusFailed
		case SeverityHigh:
			high = true
		}
	}
	if high || variancePercentage > 2 {
		return StatusVarianceDetected
	}
	return StatusMatched
}

// Recommendations returns deduplicated category-driven guidance.
func Recommendations(variances []Variance) []string {
	if len(variances) == 0 {
		return []string{"Reconciliation passed - no action required"}
	}

	byType := make(map[VarianceType]bool, len(variances))
	for _, v := range variances {
		byType[v.Type] = true
	}

	var recs []string
	if byType[VarianceVolume] {
		recs = append(recs,
			"Review loading and unloading procedures",
			"Calibrate tank measurement systems",
			"Implement real-time volume monitoring")
	}
	if byType[VarianceTemperature] {
		recs = append(recs,
			"Monitor temperature throughout transport chain",
			"Implement insulated transport where necessary")
	}
	if byType[VarianceQuality] {
		recs = append(recs,
			"Implement quality sampling at each transfer point",
			"Review product handling procedures")
	}
	recs = append(recs,
		"Document all variances for trend analysis",
		"Implement corrective actions for recurring issues")

	return dedupe(recs)
}

// ConfidenceScore starts at 1.0 and deducts per variance severity, plus a
// penalty when the depot correction factor strays far from unity (large
// temperature corrections are less trustworthy). Clamped to [0,1].
func ConfidenceScore(variances []Variance, corrected CorrectedVolumes) float64 {
	score := 1.0
	for _, v := range variances {
		switch v.Severity {
		case SeverityCritical:
			score -= 0.3
		case SeverityHigh:
			score -= 0.2
		case SeverityMedium:
			score -= 0.1
		case SeverityLow:
			score -= 0.05
		}
	}
	if math.Abs(corrected.Factors.Depot-1.0) > 0.05 {
		score -= 0.1
	}
	return math.Max(0, math.Min(1, score))
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
