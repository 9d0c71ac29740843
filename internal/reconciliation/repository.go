package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to delivery records and
// persisted reconciliation results.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ConsignmentExists reports whether the delivery consignment is known.
func (r *Repository) ConsignmentExists(ctx context.Context, consignmentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM delivery_consignments WHERE consignment_id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, consignmentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("consignment exists: %w", err)
	}
	return exists, nil
}

// GetDepotLoading fetches the depot loading record for a consignment.
func (r *Repository) GetDepotLoading(ctx context.Context, consignmentID string) (DepotLoadingRecord, error) {
	const query = `
		SELECT consignment_id, litres_loaded, loading_temp, product_type, loading_time,
		       seal_numbers, loading_doc_ref, density_at_15c, api_gravity, compartment_details
		FROM depot_loading_records
		WHERE consignment_id = $1
	`
	var (
		rec          DepotLoadingRecord
		seals        []byte
		compartments []byte
	)
	err := r.pool.QueryRow(ctx, query, consignmentID).Scan(
		&rec.ConsignmentID, &rec.LitresLoaded, &rec.LoadingTemp, &rec.ProductType, &rec.LoadingTime,
		&seals, &rec.LoadingDocRef, &rec.DensityAt15C, &rec.APIGravity, &compartments,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepotLoadingRecord{}, ErrConsignmentNotFound
		}
		return DepotLoadingRecord{}, fmt.Errorf("get depot loading: %w", err)
	}
	if err := json.Unmarshal(seals, &rec.SealNumbers); err != nil {
		return DepotLoadingRecord{}, fmt.Errorf("decode seal numbers: %w", err)
	}
	if err := json.Unmarshal(compartments, &rec.CompartmentDetails); err != nil {
		return DepotLoadingRecord{}, fmt.Errorf("decode compartment details: %w", err)
	}
	return rec, nil
}

// GetTransporterDelivery fetches the transporter delivery record.
func (r *Repository) GetTransporterDelivery(ctx context.Context, consignmentID string) (TransporterDeliveryRecord, error) {
	const query = `
		SELECT consignment_id, litres_delivered, delivery_temp, delivery_time,
		       waybill_number, driver_signature, kilometers_run, fuel_consumed, route_taken
		FROM transporter_delivery_records
		WHERE consignment_id = $1
	`
	var rec TransporterDeliveryRecord
	err := r.pool.QueryRow(ctx, query, consignmentID).Scan(
		&rec.ConsignmentID, &rec.LitresDelivered, &rec.DeliveryTemp, &rec.DeliveryTime,
		&rec.WaybillNumber, &rec.DriverSignature, &rec.KilometersRun, &rec.FuelConsumed, &rec.RouteTaken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransporterDeliveryRecord{}, ErrConsignmentNotFound
		}
		return TransporterDeliveryRecord{}, fmt.Errorf("get transporter delivery: %w", err)
	}
	return rec, nil
}

// GetStationReceiving fetches the station receiving record.
func (r *Repository) GetStationReceiving(ctx context.Context, consignmentID string) (StationReceivingRecord, error) {
	const query = `
		SELECT consignment_id, litres_received, receiving_temp, receiving_time,
		       dip_readings_before, dip_readings_after, receiving_doc_ref,
		       quality_test_results, station_manager_signature
		FROM station_receiving_records
		WHERE consignment_id = $1
	`
	var (
		rec        StationReceivingRecord
		dipsBefore []byte
		dipsAfter  []byte
		quality    []byte
	)
	err := r.pool.QueryRow(ctx, query, consignmentID).Scan(
		&rec.ConsignmentID, &rec.LitresReceived, &rec.ReceivingTemp, &rec.ReceivingTime,
		&dipsBefore, &dipsAfter, &rec.ReceivingDocRef,
		&quality, &rec.StationManagerSignature,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StationReceivingRecord{}, ErrConsignmentNotFound
		}
		return StationReceivingRecord{}, fmt.Errorf("get station receiving: %w", err)
	}
	if err := json.Unmarshal(dipsBefore, &rec.DipReadingsBefore); err != nil {
		return StationReceivingRecord{}, fmt.Errorf("decode dip readings before: %w", err)
	}
	if err := json.Unmarshal(dipsAfter, &rec.DipReadingsAfter); err != nil {
		return StationReceivingRecord{}, fmt.Errorf("decode dip readings after: %w", err)
	}
	if len(quality) > 0 {
		if err := json.Unmarshal(quality, &rec.QualityTestResults); err != nil {
			return StationReceivingRecord{}, fmt.Errorf("decode quality results: %w", err)
		}
	}
	return rec, nil
}

// SaveResult persists a reconciliation verdict for audit.
func (r *Repository) SaveResult(ctx context.Context, result Result) error {
	variances, err := json.Marshal(result.Variances)
	if err != nil {
		return fmt.Errorf("marshal variances: %w", err)
	}
	corrected, err := json.Marshal(result.CorrectedVolumes)
	if err != nil {
		return fmt.Errorf("marshal corrected volumes: %w", err)
	}
	docRefs, err := json.Marshal(result.DocumentRefs)
	if err != nil {
		return fmt.Errorf("marshal document refs: %w", err)
	}
	recommendations, err := json.Marshal(result.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	const query = `
		INSERT INTO reconciliation_results (
			reconciliation_id, consignment_id, status, reconciled_litres,
			variance_percentage, variances, document_refs, corrected_volumes,
			recommendations, confidence, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	if _, err := r.pool.Exec(ctx, query,
		result.ID, result.ConsignmentID, result.Status, result.ReconciledLitres,
		result.VariancePercentage, variances, docRefs, corrected,
		recommendations, result.Confidence, result.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert reconciliation result: %w", err)
	}
	return nil
}

// ApproveResult stamps the latest result for a consignment as approved.
func (r *Repository) ApproveResult(ctx context.Context, consignmentID, approvedBy string) error {
	const query = `
		UPDATE reconciliation_results
		SET approved_by = $2, approved_at = NOW()
		WHERE reconciliation_id = (
			SELECT reconciliation_id FROM reconciliation_results
			WHERE consignment_id = $1
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	tag, err := r.pool.Exec(ctx, query, consignmentID, approvedBy)
	if err != nil {
		return fmt.Errorf("approve reconciliation result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConsignmentNotFound
	}
	return nil
}
