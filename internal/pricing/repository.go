package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed pricing window lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetWindow fetches a pricing window by ID.
func (r *Repository) GetWindow(ctx context.Context, windowID string) (Window, error) {
	const query = `
		SELECT window_id, start_date, end_date
		FROM pricing_windows
		WHERE window_id = $1
	`
	var w Window
	err := r.pool.QueryRow(ctx, query, windowID).Scan(&w.ID, &w.StartDate, &w.EndDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Window{}, ErrWindowNotFound
		}
		return Window{}, fmt.Errorf("get pricing window: %w", err)
	}
	return w, nil
}
