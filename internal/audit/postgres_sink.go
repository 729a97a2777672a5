package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresSink appends audit events to the audit_events table.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a PostgreSQL-backed audit sink.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	detailsJSON := []byte("{}")
	if e.Details != nil {
		detailsJSON, _ = json.Marshal(e.Details)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			payment_id, action, from_status, to_status,
			actor_id, actor_role, amount, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.PaymentID, e.Action, e.FromStatus, e.ToStatus,
		e.ActorID, e.ActorRole, e.Amount, detailsJSON, e.CreatedAt,
	)
	return err
}

// ForPayment returns a payment's audit trail, oldest first.
func (s *PostgresSink) ForPayment(ctx context.Context, paymentID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, action, from_status, to_status,
		       actor_id, actor_role, amount, details, created_at
		FROM audit_events
		WHERE payment_id = $1
		ORDER BY id ASC
		LIMIT $2`, paymentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []Event
	for rows.Next() {
		var e Event
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Action, &e.FromStatus, &e.ToStatus,
			&e.ActorID, &e.ActorRole, &e.Amount, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &e.Details)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Compile-time assertion that PostgresSink implements Sink.
var _ Sink = (*PostgresSink)(nil)
