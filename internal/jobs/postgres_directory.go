package jobs

import (
	"context"
	"database/sql"
)

// PostgresDirectory reads jobs from the marketplace's jobs table.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a new PostgreSQL-backed job directory.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (p *PostgresDirectory) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	var status string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, client_id, freelancer_id, status
		FROM jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.ClientID, &j.FreelancerID, &status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	return j, nil
}

// Compile-time assertion that PostgresDirectory implements Directory.
var _ Directory = (*PostgresDirectory)(nil)
