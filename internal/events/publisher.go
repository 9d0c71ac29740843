// Package events defines the domain event publisher capability. Emission is
// fire-and-forget with at-most-once semantics; failed publishes are logged by
// the adapter and never retried by the caller.
package events

import "context"

// Event names emitted by the core engines.
const (
	ReconciliationCompleted = "three-way-reconciliation.completed"
	SettlementCreated       = "dealer.settlement.created"
	SettlementPaid          = "dealer.settlement.paid"
	LoanCreated             = "dealer.loan.created"
	SettlementsBulkDone     = "dealer.settlements.bulk.generated"
	JournalCreate           = "accounting.journal.create"
)

// Publisher delivers a named domain event with a JSON-serializable payload.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, name string, payload any) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, name string, payload any) error {
	return f(ctx, name, payload)
}

// Nop returns a publisher that discards every event.
func Nop() Publisher {
	return PublisherFunc(func(context.Context, string, any) error { return nil })
}
