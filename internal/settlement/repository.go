package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sankofa-erp/sankofa-erp/internal/platform/httpx"
)

// Repository provides PostgreSQL backed settlement persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertSettlement stores a new settlement. Settlement numbers are unique;
// a collision maps to httpx.ErrDuplicate.
func (r *Repository) InsertSettlement(ctx context.Context, s Settlement) error {
	const query = `
		INSERT INTO dealer_settlements (
			settlement_id, settlement_number, dealer_id, station_id, window_id,
			period_start, period_end, product_type, gross_dealer_margin,
			volume_sold_litres, other_income, loan_deduction, shortage_deduction,
			damage_deduction, advance_deduction, tax_deduction, other_deductions,
			total_deductions, net_payable, status, approval_status, payment_status,
			created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.Number, s.DealerID, s.StationID, s.WindowID,
		s.PeriodStart, s.PeriodEnd, s.ProductType, s.GrossDealerMargin,
		s.VolumeSoldLitres, s.OtherIncome, s.LoanDeduction, s.ShortageDeduction,
		s.DamageDeduction, s.AdvanceDeduction, s.TaxDeduction, s.OtherDeductions,
		s.TotalDeductions, s.NetPayable, s.Status, s.ApprovalStatus, s.PaymentStatus,
		s.CreatedBy, s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: settlement number %s", httpx.ErrDuplicate, s.Number)
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetSettlement fetches a settlement by ID.
func (r *Repository) GetSettlement(ctx context.Context, settlementID string) (Settlement, error) {
	const query = `
		SELECT settlement_id, settlement_number, dealer_id, station_id, window_id,
		       period_start, period_end, product_type, gross_dealer_margin,
		       volume_sold_litres, other_income, loan_deduction, shortage_deduction,
		       damage_deduction, advance_deduction, tax_deduction, other_deductions,
		       total_deductions, net_payable, status, approval_status, approved_by,
		       approved_at, payment_status, payment_date, payment_reference,
		       created_by, created_at, updated_at
		FROM dealer_settlements
		WHERE settlement_id = $1
	`
	var s Settlement
	err := r.pool.QueryRow(ctx, query, settlementID).Scan(
		&s.ID, &s.Number, &s.DealerID, &s.StationID, &s.WindowID,
		&s.PeriodStart, &s.PeriodEnd, &s.ProductType, &s.GrossDealerMargin,
		&s.VolumeSoldLitres, &s.OtherIncome, &s.LoanDeduction, &s.ShortageDeduction,
		&s.DamageDeduction, &s.AdvanceDeduction, &s.TaxDeduction, &s.OtherDeductions,
		&s.TotalDeductions, &s.NetPayable, &s.Status, &s.ApprovalStatus, &s.ApprovedBy,
		&s.ApprovedAt, &s.PaymentStatus, &s.PaymentDate, &s.PaymentReference,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settlement{}, ErrSettlementNotFound
		}
		return Settlement{}, fmt.Errorf("get settlement: %w", err)
	}
	return s, nil
}

// UpdateSettlement writes the mutable lifecycle fields of a settlement.
func (r *Repository) UpdateSettlement(ctx context.Context, s Settlement) error {
	const query = `
		UPDATE dealer_settlements
		SET status = $2, approval_status = $3, approved_by = $4, approved_at = $5,
		    payment_status = $6, payment_date = $7, payment_reference = $8,
		    updated_at = $9
		WHERE settlement_id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		s.ID, s.Status, s.ApprovalStatus, s.ApprovedBy, s.ApprovedAt,
		s.PaymentStatus, s.PaymentDate, s.PaymentReference, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

// ListByDealer fetches a dealer's settlements, optionally scoped to a station
// and date range, newest first.
func (r *Repository) ListByDealer(ctx context.Context, dealerID, stationID string, rng DateRange) ([]Settlement, error) {
	query := `
		SELECT settlement_id, settlement_number, dealer_id, station_id, window_id,
		       period_start, period_end, product_type, gross_dealer_margin,
		       volume_sold_litres, other_income, loan_deduction, shortage_deduction,
		       damage_deduction, advance_deduction, tax_deduction, other_deductions,
		       total_deductions, net_payable, status, approval_status, approved_by,
		       approved_at, payment_status, payment_date, payment_reference,
		       created_by, created_at, updated_at
		FROM dealer_settlements
		WHERE dealer_id = $1
	`
	args := []any{dealerID}
	if stationID != "" {
		args = append(args, stationID)
		query += fmt.Sprintf(" AND station_id = $%d", len(args))
	}
	if !rng.Start.IsZero() {
		args = append(args, rng.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !rng.End.IsZero() {
		args = append(args, rng.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []Settlement
	for rows.Next() {
		var s Settlement
		if err := rows.Scan(
			&s.ID, &s.Number, &s.DealerID, &s.StationID, &s.WindowID,
			&s.PeriodStart, &s.PeriodEnd, &s.ProductType, &s.GrossDealerMargin,
			&s.VolumeSoldLitres, &s.OtherIncome, &s.LoanDeduction, &s.ShortageDeduction,
			&s.DamageDeduction, &s.AdvanceDeduction, &s.TaxDeduction, &s.OtherDeductions,
			&s.TotalDeductions, &s.NetPayable, &s.Status, &s.ApprovalStatus, &s.ApprovedBy,
			&s.ApprovedAt, &s.PaymentStatus, &s.PaymentDate, &s.PaymentReference,
			&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}
