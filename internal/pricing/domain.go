// Package pricing exposes pricing window lookups consumed by settlement.
package pricing

import (
	"context"
	"errors"
	"time"
)

// ErrWindowNotFound occurs when a pricing window does not exist.
var ErrWindowNotFound = errors.New("pricing: window not found")

// Window is a published pricing window over which dealer sales are settled.
type Window struct {
	ID        string    `json:"window_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Store resolves pricing windows.
type Store interface {
	GetWindow(ctx context.Context, windowID string) (Window, error)
}
