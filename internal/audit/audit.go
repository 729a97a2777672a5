// Package audit records a structured event for every committed payment
// state transition. The trail is append-only and supports manual
// reconciliation of gateway failures.
package audit

import (
	"context"
	"time"
)

// Event describes one committed state transition.
type Event struct {
	ID         int64             `json:"id,omitempty"`
	PaymentID  string            `json:"paymentId"`
	Action     string            `json:"action"`
	FromStatus string            `json:"fromStatus,omitempty"`
	ToStatus   string            `json:"toStatus"`
	ActorID    string            `json:"actorId,omitempty"`
	ActorRole  string            `json:"actorRole,omitempty"` // payer, payee, admin, system
	Amount     string            `json:"amount,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Sink receives audit events. Implementations must not fail the financial
// operation: Record errors are logged by callers, never propagated.
type Sink interface {
	Record(ctx context.Context, e Event) error
}
