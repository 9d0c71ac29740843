package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sankofa-erp/sankofa-erp/internal/events"
)

// DeliveryStore supplies the three independent measurements of a consignment.
type DeliveryStore interface {
	ConsignmentExists(ctx context.Context, consignmentID string) (bool, error)
	GetDepotLoading(ctx context.Context, consignmentID string) (DepotLoadingRecord, error)
	GetTransporterDelivery(ctx context.Context, consignmentID string) (TransporterDeliveryRecord, error)
	GetStationReceiving(ctx context.Context, consignmentID string) (StationReceivingRecord, error)
}

// ResultStore persists reconciliation verdicts for audit.
type ResultStore interface {
	SaveResult(ctx context.Context, result Result) error
	ApproveResult(ctx context.Context, consignmentID, approvedBy string) error
}

// Service runs the three-way reconciliation workflow.
type Service struct {
	deliveries DeliveryStore
	results    ResultStore
	publisher  events.Publisher
	logger     *slog.Logger
	tolerances Tolerances
	now        func() time.Time
}

// NewService builds the service with the given tolerance policy.
func NewService(deliveries DeliveryStore, results ResultStore, publisher events.Publisher, logger *slog.Logger, tolerances Tolerances) *Service {
	return &Service{
		deliveries: deliveries,
		results:    results,
		publisher:  publisher,
		logger:     logger,
		tolerances: tolerances,
		now:        time.Now,
	}
}

// PerformReconciliation fetches all three source records, corrects volumes to
// 15°C, detects variances and persists the verdict. All-or-nothing: any fetch
// or persistence failure propagates and no partial result is produced.
func (s *Service) PerformReconciliation(ctx context.Context, consignmentID string) (Result, error) {
	exists, err := s.deliveries.ConsignmentExists(ctx, consignmentID)
	if err != nil {
		return Result{}, fmt.Errorf("check consignment: %w", err)
	}
	if !exists {
		return Result{}, ErrConsignmentNotFound
	}

	// The three records are immutable and independently keyed, so the
	// fetches fan out concurrently.
	var (
		depot       DepotLoadingRecord
		transporter TransporterDeliveryRecord
		station     StationReceivingRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		depot, err = s.deliveries.GetDepotLoading(gctx, consignmentID)
		return err
	})
	g.Go(func() error {
		var err error
		transporter, err = s.deliveries.GetTransporterDelivery(gctx, consignmentID)
		return err
	})
	g.Go(func() error {
		var err error
		station, err = s.deliveries.GetStationReceiving(gctx, consignmentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("fetch delivery records: %w", err)
	}

	corrected := CorrectVolumes(depot, transporter, station)
	variances := DetectVariances(depot, transporter, station, corrected, s.tolerances)
	reconciled := ReconciledVolume(corrected, variances)
	variancePct := OverallVariancePercent(depot.LitresLoaded, reconciled)

	result := Result{
		ID:                 uuid.NewString(),
		ConsignmentID:      consignmentID,
		Status:             DetermineStatus(variances, variancePct),
		ReconciledLitres:   reconciled,
		VariancePercentage: variancePct,
		Variances:          variances,
		DocumentRefs:       []string{depot.LoadingDocRef, transporter.WaybillNumber, station.ReceivingDocRef},
		CorrectedVolumes:   corrected,
		Recommendations:    Recommendations(variances),
		Confidence:         ConfidenceScore(variances, corrected),
		CreatedAt:          s.now(),
	}

	if err := s.results.SaveResult(ctx, result); err != nil {
		return Result{}, fmt.Errorf("save reconciliation result: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.ReconciliationCompleted, map[string]any{
		"consignment_id": consignmentID,
		"result":         result,
	}); err != nil {
		s.logger.Warn("reconciliation event", slog.Any("error", err))
	}

	s.logger.Info("three-way reconciliation completed",
		slog.String("consignment_id", consignmentID),
		slog.String("status", string(result.Status)),
		slog.Float64("variance_pct", result.VariancePercentage),
		slog.Int("variances", len(result.Variances)))
	return result, nil
}

// DetectRealTimeVariances is the lightweight mid-delivery check: it compares
// live delivered litres against the depot load on the volume dimension only.
func (s *Service) DetectRealTimeVariances(ctx context.Context, consignmentID string, live LiveDelivery) (RealTimeCheck, error) {
	depot, err := s.deliveries.GetDepotLoading(ctx, consignmentID)
	if err != nil {
		return RealTimeCheck{}, fmt.Errorf("fetch depot record: %w", err)
	}

	var variances []Variance
	if live.LitresDelivered > 0 {
		diff := depot.LitresLoaded - live.LitresDelivered
		if diff < 0 {
			diff = -diff
		}
		pct := diff / depot.LitresLoaded * 100
		if pct > s.tolerances.VolumePercent {
			severity := SeverityMedium
			if pct > 2 {
				severity = SeverityHigh
			}
			variances = append(variances, Variance{
				Type:             VarianceVolume,
				Severity:         severity,
				Description:      fmt.Sprintf("Volume variance detected: %.2f%% difference", pct),
				QuantifiedImpact: diff,
				ExpectedValue:    depot.LitresLoaded,
				ActualValue:      live.LitresDelivered,
				Tolerance:        s.tolerances.VolumePercent,
			})
		}
	}

	return RealTimeCheck{HasVariances: len(variances) > 0, Variances: variances}, nil
}

// PerformAutomatedReconciliation runs a full reconciliation and auto-approves
// it when no HIGH or CRITICAL variances exist, the overall variance is within
// the volume tolerance, and confidence is at least 0.8. Everything else is
// kicked to manual review with a reason.
func (s *Service) PerformAutomatedReconciliation(ctx context.Context, consignmentID string) (AutoReconcileOutcome, error) {
	result, err := s.PerformReconciliation(ctx, consignmentID)
	if err != nil {
		return AutoReconcileOutcome{}, err
	}

	var highSeverity int
	for _, v := range result.Variances {
		if v.Severity == SeverityHigh || v.Severity == SeverityCritical {
			highSeverity++
		}
	}

	canAuto := highSeverity == 0 &&
		result.VariancePercentage <= s.tolerances.VolumePercent &&
		result.Confidence >= 0.8

	if !canAuto {
		return AutoReconcileOutcome{
			CanAutoReconcile: false,
			Reason: fmt.Sprintf("Manual review required: %d high-severity variances, %.2f%% total variance",
				highSeverity, result.VariancePercentage),
		}, nil
	}

	if err := s.results.ApproveResult(ctx, consignmentID, "SYSTEM_AUTO"); err != nil {
		return AutoReconcileOutcome{}, fmt.Errorf("auto-approve reconciliation: %w", err)
	}
	return AutoReconcileOutcome{CanAutoReconcile: true, Result: &result}, nil
}
