package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists payments in PostgreSQL. Guard re-checks live in the
// UPDATE WHERE clauses so concurrent writers serialize on the row without an
// explicit SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `id, job_id, payer_id, payee_id,
	       amount, fee_percent, platform_fee, net_amount, refund_amount, released_amount,
	       status, payment_method, transaction_id, transfer_id,
	       dispute_reason, dispute_description, dispute_evidence, dispute_priority,
	       dispute_opened_by, dispute_opened_at, dispute_resolved_at,
	       dispute_resolution, dispute_resolution_notes, dispute_resolved_by,
	       created_at, updated_at, released_at, refunded_at`

func (p *PostgresStore) Create(ctx context.Context, pay *Payment) error {
	d := pay.Dispute
	evidenceJSON := []byte("[]")
	if d != nil && d.Evidence != nil {
		evidenceJSON, _ = json.Marshal(d.Evidence)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, job_id, payer_id, payee_id,
			amount, fee_percent, platform_fee, net_amount, refund_amount, released_amount,
			status, payment_method, transaction_id, transfer_id,
			dispute_reason, dispute_description, dispute_evidence, dispute_priority,
			dispute_opened_by, dispute_opened_at, dispute_resolved_at,
			dispute_resolution, dispute_resolution_notes, dispute_resolved_by,
			created_at, updated_at, released_at, refunded_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21,
			$22, $23, $24,
			$25, $26, $27, $28
		)`,
		pay.ID, pay.JobID, pay.PayerID, pay.PayeeID,
		pay.Amount, pay.FeePercent, pay.PlatformFee, pay.NetAmount, pay.RefundAmount, pay.ReleasedAmount,
		string(pay.Status), nullString(pay.PaymentMethod), nullString(pay.TransactionID), nullString(pay.TransferID),
		disputeString(d, func(d *Dispute) string { return d.Reason }),
		disputeString(d, func(d *Dispute) string { return d.Description }),
		evidenceJSON,
		disputeString(d, func(d *Dispute) string { return string(d.Priority) }),
		disputeString(d, func(d *Dispute) string { return d.OpenedByID }),
		disputeTime(d, func(d *Dispute) *time.Time { t := d.OpenedAt; return &t }),
		disputeTime(d, func(d *Dispute) *time.Time { return d.ResolvedAt }),
		disputeString(d, func(d *Dispute) string { return string(d.Resolution) }),
		disputeString(d, func(d *Dispute) string { return d.ResolutionNotes }),
		disputeString(d, func(d *Dispute) string { return d.ResolvedByAdminID }),
		pay.CreatedAt, pay.UpdatedAt, nullTime(pay.ReleasedAt), nullTime(pay.RefundedAt),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	pay, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return pay, err
}

// updateSet is the assignment list shared by both conditional updates.
const updateSet = `
	status = $2, refund_amount = $3, released_amount = $4,
	transaction_id = $5, transfer_id = $6,
	dispute_reason = $7, dispute_description = $8, dispute_evidence = $9,
	dispute_priority = $10, dispute_opened_by = $11, dispute_opened_at = $12,
	dispute_resolved_at = $13, dispute_resolution = $14,
	dispute_resolution_notes = $15, dispute_resolved_by = $16,
	updated_at = $17, released_at = $18, refunded_at = $19`

func updateArgs(pay *Payment) []interface{} {
	d := pay.Dispute
	evidenceJSON := []byte("[]")
	if d != nil && d.Evidence != nil {
		evidenceJSON, _ = json.Marshal(d.Evidence)
	}
	return []interface{}{
		pay.ID,
		string(pay.Status), pay.RefundAmount, pay.ReleasedAmount,
		nullString(pay.TransactionID), nullString(pay.TransferID),
		disputeString(d, func(d *Dispute) string { return d.Reason }),
		disputeString(d, func(d *Dispute) string { return d.Description }),
		evidenceJSON,
		disputeString(d, func(d *Dispute) string { return string(d.Priority) }),
		disputeString(d, func(d *Dispute) string { return d.OpenedByID }),
		disputeTime(d, func(d *Dispute) *time.Time { t := d.OpenedAt; return &t }),
		disputeTime(d, func(d *Dispute) *time.Time { return d.ResolvedAt }),
		disputeString(d, func(d *Dispute) string { return string(d.Resolution) }),
		disputeString(d, func(d *Dispute) string { return d.ResolutionNotes }),
		disputeString(d, func(d *Dispute) string { return d.ResolvedByAdminID }),
		pay.UpdatedAt, nullTime(pay.ReleasedAt), nullTime(pay.RefundedAt),
	}
}

func (p *PostgresStore) UpdateFromStatus(ctx context.Context, pay *Payment, expect Status) error {
	args := append(updateArgs(pay), string(expect))
	result, err := p.db.ExecContext(ctx,
		`UPDATE payments SET `+updateSet+` WHERE id = $1 AND status = $20`, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return p.zeroRowsErr(ctx, pay.ID, ErrConflict)
	}
	return nil
}

func (p *PostgresStore) ResolveDispute(ctx context.Context, pay *Payment) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE payments SET `+updateSet+`
		 WHERE id = $1 AND status = 'disputed' AND dispute_resolved_at IS NULL`,
		updateArgs(pay)...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return p.zeroRowsErr(ctx, pay.ID, ErrAlreadyResolved)
	}
	return nil
}

// zeroRowsErr distinguishes a lost conditional update from a missing row.
func (p *PostgresStore) zeroRowsErr(ctx context.Context, id string, lost error) error {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return lost
}

func (p *PostgresStore) ListByUser(ctx context.Context, q HistoryQuery) ([]*Payment, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `(payer_id = $1 OR payee_id = $1)`
	switch q.Direction {
	case DirectionSent:
		where = `payer_id = $1`
	case DirectionReceived:
		where = `payee_id = $1`
	}

	var rows *sql.Rows
	var err error
	if q.AfterID != "" {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+paymentColumns+`
			FROM payments
			WHERE `+where+` AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`,
			q.UserID, time.Unix(0, q.AfterCreatedAtNanos).UTC(), q.AfterID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+paymentColumns+`
			FROM payments
			WHERE `+where+`
			ORDER BY created_at DESC, id DESC
			LIMIT $2`,
			q.UserID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanPayments(rows)
}

func (p *PostgresStore) SummaryForUser(ctx context.Context, userID string) (*Summary, error) {
	s := &Summary{}
	err := p.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE payer_id = $1 AND status <> 'failed'), 0),
			COALESCE(SUM(released_amount) FILTER (WHERE payee_id = $1 AND status IN ('released', 'partially_released')), 0),
			COALESCE(SUM(amount) FILTER (WHERE payer_id = $1 AND status = 'pending'), 0),
			COALESCE(SUM(amount) FILTER (WHERE payer_id = $1 AND status IN ('held', 'disputed')), 0)
		FROM payments
		WHERE payer_id = $1 OR payee_id = $1`,
		userID).Scan(&s.TotalSent, &s.TotalReceived, &s.PendingAmount, &s.HeldAmount)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) ListDisputed(ctx context.Context, q DisputeQuery) ([]*Payment, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	where := `dispute_opened_at IS NOT NULL`
	args := []interface{}{}
	if q.Resolved != nil {
		if *q.Resolved {
			where += ` AND dispute_resolved_at IS NOT NULL`
		} else {
			where += ` AND dispute_resolved_at IS NULL`
		}
	}
	if q.Priority != "" {
		args = append(args, string(q.Priority))
		where += fmt.Sprintf(` AND dispute_priority = $%d`, len(args))
	}
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE `+where+`
		ORDER BY dispute_opened_at DESC
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanPayments(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(s scanner) (*Payment, error) {
	pay := &Payment{}
	var (
		status          string
		method          sql.NullString
		transactionID   sql.NullString
		transferID      sql.NullString
		reason          sql.NullString
		description     sql.NullString
		evidenceJSON    []byte
		priority        sql.NullString
		openedBy        sql.NullString
		openedAt        sql.NullTime
		resolvedAt      sql.NullTime
		resolution      sql.NullString
		resolutionNotes sql.NullString
		resolvedBy      sql.NullString
		releasedAt      sql.NullTime
		refundedAt      sql.NullTime
	)

	err := s.Scan(
		&pay.ID, &pay.JobID, &pay.PayerID, &pay.PayeeID,
		&pay.Amount, &pay.FeePercent, &pay.PlatformFee, &pay.NetAmount, &pay.RefundAmount, &pay.ReleasedAmount,
		&status, &method, &transactionID, &transferID,
		&reason, &description, &evidenceJSON, &priority,
		&openedBy, &openedAt, &resolvedAt,
		&resolution, &resolutionNotes, &resolvedBy,
		&pay.CreatedAt, &pay.UpdatedAt, &releasedAt, &refundedAt,
	)
	if err != nil {
		return nil, err
	}

	pay.Status = Status(status)
	pay.PaymentMethod = method.String
	pay.TransactionID = transactionID.String
	pay.TransferID = transferID.String
	if releasedAt.Valid {
		pay.ReleasedAt = &releasedAt.Time
	}
	if refundedAt.Valid {
		pay.RefundedAt = &refundedAt.Time
	}

	if openedAt.Valid {
		d := &Dispute{
			Reason:            reason.String,
			Description:       description.String,
			Priority:          Priority(priority.String),
			OpenedByID:        openedBy.String,
			OpenedAt:          openedAt.Time,
			Resolution:        Resolution(resolution.String),
			ResolutionNotes:   resolutionNotes.String,
			ResolvedByAdminID: resolvedBy.String,
		}
		if resolvedAt.Valid {
			d.ResolvedAt = &resolvedAt.Time
		}
		if len(evidenceJSON) > 0 {
			_ = json.Unmarshal(evidenceJSON, &d.Evidence)
		}
		pay.Dispute = d
	}

	return pay, nil
}

func scanPayments(rows *sql.Rows) ([]*Payment, error) {
	var result []*Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pay)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func disputeString(d *Dispute, get func(*Dispute) string) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return nullString(get(d))
}

func disputeTime(d *Dispute, get func(*Dispute) *time.Time) sql.NullTime {
	if d == nil {
		return sql.NullTime{}
	}
	return nullTime(get(d))
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
