package loan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sankofa-erp/sankofa-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for loans and schedules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateLoan persists the loan together with its full amortization schedule in
// one transaction. A partially written schedule would corrupt deduction math,
// so the insert is all-or-nothing.
func (r *Repository) CreateLoan(ctx context.Context, l Loan, schedule []ScheduleEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		guarantor, err := json.Marshal(l.GuarantorInfo)
		if err != nil {
			return fmt.Errorf("marshal guarantor info: %w", err)
		}
		collateral, err := json.Marshal(l.CollateralInfo)
		if err != nil {
			return fmt.Errorf("marshal collateral info: %w", err)
		}
		const insertLoan = `
			INSERT INTO dealer_loans (
				loan_id, loan_number, dealer_id, station_id, loan_type,
				principal_amount, interest_rate, tenor_months, repayment_frequency,
				start_date, end_date, amortization_method, grace_period_months,
				status, guarantor_info, collateral_info, created_by, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		`
		if _, err := tx.Exec(ctx, insertLoan,
			l.ID, l.Number, l.DealerID, l.StationID, l.Type,
			l.PrincipalAmount, l.InterestRate, l.TenorMonths, l.Frequency,
			l.StartDate, l.EndDate, l.Method, l.GracePeriodMonths,
			l.Status, guarantor, collateral, l.CreatedBy, l.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}

		const insertEntry = `
			INSERT INTO loan_schedules (
				schedule_id, loan_id, installment_number, due_date,
				principal_amount, interest_amount, total_amount,
				balance_before, balance_after, payment_status, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`
		for _, e := range schedule {
			if _, err := tx.Exec(ctx, insertEntry,
				e.ID, e.LoanID, e.InstallmentNumber, e.DueDate,
				e.PrincipalAmount, e.InterestAmount, e.TotalAmount,
				e.BalanceBefore, e.BalanceAfter, e.PaymentStatus, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert schedule entry %d: %w", e.InstallmentNumber, err)
			}
		}
		return nil
	})
}

// GetLoan retrieves a loan by ID.
func (r *Repository) GetLoan(ctx context.Context, loanID string) (Loan, error) {
	const query = `
		SELECT loan_id, loan_number, dealer_id, station_id, loan_type,
		       principal_amount, interest_rate, tenor_months, repayment_frequency,
		       start_date, end_date, amortization_method, grace_period_months,
		       status, guarantor_info, collateral_info, created_by, created_at, updated_at
		FROM dealer_loans
		WHERE loan_id = $1
	`
	var (
		l          Loan
		guarantor  []byte
		collateral []byte
	)
	err := r.pool.QueryRow(ctx, query, loanID).Scan(
		&l.ID, &l.Number, &l.DealerID, &l.StationID, &l.Type,
		&l.PrincipalAmount, &l.InterestRate, &l.TenorMonths, &l.Frequency,
		&l.StartDate, &l.EndDate, &l.Method, &l.GracePeriodMonths,
		&l.Status, &guarantor, &collateral, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrLoanNotFound
		}
		return Loan{}, fmt.Errorf("get loan: %w", err)
	}
	if len(guarantor) > 0 {
		_ = json.Unmarshal(guarantor, &l.GuarantorInfo)
	}
	if len(collateral) > 0 {
		_ = json.Unmarshal(collateral, &l.CollateralInfo)
	}
	return l, nil
}

// GetSchedule returns all schedule entries for a loan ordered by installment.
func (r *Repository) GetSchedule(ctx context.Context, loanID string) ([]ScheduleEntry, error) {
	const query = `
		SELECT schedule_id, loan_id, installment_number, due_date,
		       principal_amount, interest_amount, total_amount,
		       balance_before, balance_after, payment_status, payment_date, payment_amount, created_at
		FROM loan_schedules
		WHERE loan_id = $1
		ORDER BY installment_number
	`
	rows, err := r.pool.Query(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	defer rows.Close()

	var entries []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(
			&e.ID, &e.LoanID, &e.InstallmentNumber, &e.DueDate,
			&e.PrincipalAmount, &e.InterestAmount, &e.TotalAmount,
			&e.BalanceBefore, &e.BalanceAfter, &e.PaymentStatus, &e.PaymentDate, &e.PaymentAmount, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InstallmentDueInPeriod sums the pending installments of a dealer's active
// loans falling due inside the settlement period.
func (r *Repository) InstallmentDueInPeriod(ctx context.Context, dealerID, stationID string, from, to time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(ls.total_amount), 0)
		FROM loan_schedules ls
		JOIN dealer_loans dl ON dl.loan_id = ls.loan_id
		WHERE dl.dealer_id = $1
		  AND dl.station_id = $2
		  AND dl.status = 'ACTIVE'
		  AND ls.payment_status = 'PENDING'
		  AND ls.due_date >= $3
		  AND ls.due_date <= $4
	`
	var total float64
	if err := r.pool.QueryRow(ctx, query, dealerID, stationID, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("installment due in period: %w", err)
	}
	return total, nil
}

// OutstandingBalance returns the remaining principal across a dealer's active
// loans. An empty stationID aggregates all stations.
func (r *Repository) OutstandingBalance(ctx context.Context, dealerID, stationID string) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(ls.principal_amount), 0)
		FROM loan_schedules ls
		JOIN dealer_loans dl ON dl.loan_id = ls.loan_id
		WHERE dl.dealer_id = $1
		  AND ($2 = '' OR dl.station_id = $2)
		  AND dl.status = 'ACTIVE'
		  AND ls.payment_status = 'PENDING'
	`
	var total float64
	if err := r.pool.QueryRow(ctx, query, dealerID, stationID).Scan(&total); err != nil {
		return 0, fmt.Errorf("outstanding balance: %w", err)
	}
	return total, nil
}

// MarkInstallmentPaid records a settlement-driven repayment against the
// dealer's earliest pending installment.
func (r *Repository) MarkInstallmentPaid(ctx context.Context, dealerID string, amount float64, paidAt time.Time) error {
	const query = `
		UPDATE loan_schedules
		SET payment_status = 'PAID', payment_date = $3, payment_amount = $4
		WHERE schedule_id = (
			SELECT ls.schedule_id
			FROM loan_schedules ls
			JOIN dealer_loans dl ON dl.loan_id = ls.loan_id
			WHERE dl.dealer_id = $1
			  AND dl.status = $2
			  AND ls.payment_status = 'PENDING'
			ORDER BY ls.due_date
			LIMIT 1
		)
	`
	tag, err := r.pool.Exec(ctx, query, dealerID, StatusActive, paidAt, amount)
	if err != nil {
		return fmt.Errorf("mark installment paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}
