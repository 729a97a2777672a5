// Package jobs exposes the read-only job view the payment engine needs.
//
// Job CRUD belongs to the marketplace API; the engine only resolves a job's
// parties and checks that it is in a payable state.
package jobs

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("job not found")

// Status mirrors the marketplace job lifecycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusPaid       Status = "paid"
)

// Job is the minimal projection the engine reads.
type Job struct {
	ID           string `json:"id"`
	ClientID     string `json:"clientId"`     // the payer
	FreelancerID string `json:"freelancerId"` // the payee
	Status       Status `json:"status"`
}

// Payable reports whether an escrow payment may be created for the job.
// Jobs that are still open (no assigned freelancer), cancelled, or already
// paid are not payable.
func (j *Job) Payable() bool {
	return j.Status == StatusInProgress || j.Status == StatusCompleted
}

// Directory resolves jobs for payment eligibility checks.
type Directory interface {
	Get(ctx context.Context, id string) (*Job, error)
}
