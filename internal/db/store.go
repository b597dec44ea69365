package db

import "context"

// JobStore is the persistence seam for print jobs. Every operation is
// scoped by organization id; implementations must enforce the tenancy
// boundary in the query itself, not above it.
type JobStore interface {
	// GetByOrder returns the job for an order, or ErrNotFound.
	GetByOrder(ctx context.Context, orgID, orderID string) (*PrintJob, error)

	// Insert creates the job if no job exists for (organization, order).
	// First writer wins: returns false without error when a job already
	// exists.
	Insert(ctx context.Context, job *PrintJob) (bool, error)

	// MarkRetry transitions failed->retrying and clears the last error.
	// Returns false when the job is not in failed state.
	MarkRetry(ctx context.Context, orgID, orderID string) (bool, error)

	// MarkQueued transitions retrying->queued with fresh content, handing
	// the job back to the polling agent. Returns false on a lost race.
	MarkQueued(ctx context.Context, orgID, orderID, content string) (bool, error)

	// MarkSent records a successful delivery: status sent, attempts+1,
	// last error cleared.
	MarkSent(ctx context.Context, orgID, orderID string) error

	// MarkFailed records a failed delivery: status failed, attempts+1,
	// last error set.
	MarkFailed(ctx context.Context, orgID, orderID, errMsg string) error

	// GetByID returns a job by id within the organization, or ErrNotFound.
	GetByID(ctx context.Context, orgID, jobID string) (*PrintJob, error)

	// List returns jobs for the organization, newest first. An empty or
	// "all" status returns every job.
	List(ctx context.Context, orgID, status string, limit int) ([]*PrintJob, error)

	// MarkRetryingByID is MarkRetry keyed by job id, for the admin retry
	// endpoint.
	MarkRetryingByID(ctx context.Context, orgID, jobID string) (bool, error)

	// ClaimNext atomically takes the oldest queued job for the
	// organization, moves it to printing and counts the attempt. Two
	// concurrent claimants never receive the same job. Returns (nil, nil)
	// when nothing is queued.
	ClaimNext(ctx context.Context, orgID string) (*PrintJob, error)

	// ReportStatus records the agent's terminal outcome for a claimed job.
	// Attempts are not touched; the claim already counted them. Returns
	// false when the job does not belong to the organization.
	ReportStatus(ctx context.Context, orgID, jobID string, status JobStatus, errMsg string) (bool, error)
}

// OrderStore keeps confirmed order payloads so failed jobs can be
// re-rendered on retry.
type OrderStore interface {
	PutOrder(ctx context.Context, rec *OrderRecord) error
	GetOrder(ctx context.Context, orgID, orderID string) (*OrderRecord, error)
}
