// Package reconciliation implements three-way delivery reconciliation:
// cross-checking depot loading, transporter GPS and station receiving records
// for one fuel consignment, normalized to 15°C standard volume.
package reconciliation

import (
	"errors"
	"time"
)

// Status is the overall verdict of a reconciliation run.
type Status string

const (
	StatusMatched          Status = "MATCHED"
	StatusVarianceDetected Status = "VARIANCE_DETECTED"
	StatusFailed           Status = "FAILED"
)

// VarianceType classifies the dimension on which two sources disagree.
type VarianceType string

const (
	VarianceVolume      VarianceType = "VOLUME"
	VarianceTemperature VarianceType = "TEMPERATURE"
	VarianceTiming      VarianceType = "TIMING"
	VarianceQuality     VarianceType = "QUALITY"
)

// Severity grades a variance against its tolerance.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// CompartmentDetail is one truck compartment on the depot loading record.
type CompartmentDetail struct {
	Compartment int     `json:"compartment"`
	Litres      float64 `json:"litres"`
	SealNumber  string  `json:"seal_number"`
}

// DepotLoadingRecord is the depot's measurement at loading. Immutable,
// produced by depot operations.
type DepotLoadingRecord struct {
	ConsignmentID      string              `json:"consignment_id"`
	LitresLoaded       float64             `json:"litres_loaded"`
	LoadingTemp        float64             `json:"loading_temp"`
	ProductType        string              `json:"product_type"`
	LoadingTime        time.Time           `json:"loading_time"`
	SealNumbers        []string            `json:"seal_numbers"`
	LoadingDocRef      string              `json:"loading_doc_ref"`
	DensityAt15C       float64             `json:"density_at_15c"`
	APIGravity         float64             `json:"api_gravity,omitempty"`
	CompartmentDetails []CompartmentDetail `json:"compartment_details"`
}

// TransporterDeliveryRecord is the transporter/GPS measurement at delivery.
type TransporterDeliveryRecord struct {
	ConsignmentID   string    `json:"consignment_id"`
	LitresDelivered float64   `json:"litres_delivered"`
	DeliveryTemp    float64   `json:"delivery_temp"`
	DeliveryTime    time.Time `json:"delivery_time"`
	WaybillNumber   string    `json:"waybill_number"`
	DriverSignature string    `json:"driver_signature"`
	KilometersRun   float64   `json:"kilometers_run"`
	FuelConsumed    float64   `json:"fuel_consumed,omitempty"`
	RouteTaken      string    `json:"route_taken"`
}

// DipReading is a tank dip level taken at the station.
type DipReading struct {
	Tank  string  `json:"tank"`
	Level float64 `json:"level"`
}

// QualityTestResults are the station lab results on the received product.
type QualityTestResults struct {
	Density         float64 `json:"density"`
	OctaneRating    float64 `json:"octane_rating,omitempty"`
	WaterContent    float64 `json:"water_content"`
	SedimentContent float64 `json:"sediment_content"`
}

// StationReceivingRecord is the receiving station's measurement.
type StationReceivingRecord struct {
	ConsignmentID           string              `json:"consignment_id"`
	LitresReceived          float64             `json:"litres_received"`
	ReceivingTemp           float64             `json:"receiving_temp"`
	ReceivingTime           time.Time           `json:"receiving_time"`
	DipReadingsBefore       []DipReading        `json:"dip_readings_before"`
	DipReadingsAfter        []DipReading        `json:"dip_readings_after"`
	ReceivingDocRef         string              `json:"receiving_doc_ref"`
	QualityTestResults      *QualityTestResults `json:"quality_test_results,omitempty"`
	StationManagerSignature string              `json:"station_manager_signature"`
}

// Variance is a single detected disagreement between data sources. Variances
// live inside a Result and are not persisted standalone.
type Variance struct {
	Type             VarianceType `json:"type"`
	Severity         Severity     `json:"severity"`
	Description      string       `json:"description"`
	QuantifiedImpact float64      `json:"quantified_impact"`
	ExpectedValue    float64      `json:"expected_value"`
	ActualValue      float64      `json:"actual_value"`
	Tolerance        float64      `json:"tolerance"`
	RootCause        string       `json:"root_cause,omitempty"`
	CorrectiveAction string       `json:"corrective_action,omitempty"`
}

// CorrectionFactors are the per-source VCF multipliers applied.
type CorrectionFactors struct {
	Depot       float64 `json:"depot"`
	Transporter float64 `json:"transporter"`
	Station     float64 `json:"station"`
}

// CorrectedVolumes holds each party's volume normalized to 15°C.
type CorrectedVolumes struct {
	DepotAt15C       float64           `json:"depot_at_15c"`
	TransporterAt15C float64           `json:"transporter_at_15c"`
	StationAt15C     float64           `json:"station_at_15c"`
	Factors          CorrectionFactors `json:"correction_factors"`
}

// Result is the verdict of one reconciliation run, persisted for audit.
// Confidence is always within [0,1]; Status is a deterministic function of the
// variances and the overall variance percentage.
type Result struct {
	ID                 string           `json:"reconciliation_id"`
	ConsignmentID      string           `json:"consignment_id"`
	Status             Status           `json:"status"`
	ReconciledLitres   float64          `json:"reconciled_litres"`
	VariancePercentage float64          `json:"variance_percentage"`
	Variances          []Variance       `json:"variances"`
	DocumentRefs       []string         `json:"document_refs"`
	CorrectedVolumes   CorrectedVolumes `json:"temperature_corrected_volumes"`
	Recommendations    []string         `json:"recommendations"`
	Confidence         float64          `json:"confidence"`
	ApprovedBy         string           `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// LiveDelivery carries mid-delivery telemetry for the real-time check.
type LiveDelivery struct {
	LitresDelivered float64 `json:"litres_delivered"`
}

// RealTimeCheck is the outcome of the lightweight mid-delivery variance scan.
type RealTimeCheck struct {
	HasVariances bool       `json:"has_variances"`
	Variances    []Variance `json:"variances"`
}

// AutoReconcileOutcome reports whether a run qualified for auto-approval.
type AutoReconcileOutcome struct {
	CanAutoReconcile bool    `json:"can_auto_reconcile"`
	Result           *Result `json:"result,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// ErrConsignmentNotFound occurs when the consignment does not exist.
var ErrConsignmentNotFound = errors.New("reconciliation: delivery consignment not found")
