package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, organization_id, order_id, call_id, status, attempts,
	last_error, printer_target, content, created_at, updated_at`

// SQLJobStore implements JobStore over SQLite or PostgreSQL.
type SQLJobStore struct {
	db     *sqlx.DB
	driver string
}

func NewSQLJobStore(conn *sqlx.DB, driver string) *SQLJobStore {
	return &SQLJobStore{db: conn, driver: driver}
}

func (s *SQLJobStore) GetByOrder(ctx context.Context, orgID, orderID string) (*PrintJob, error) {
	var job PrintJob
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM print_jobs
		WHERE organization_id = ? AND order_id = ?`)
	err := s.db.GetContext(ctx, &job, query, orgID, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job by order: %w", err)
	}
	return &job, nil
}

func (s *SQLJobStore) Insert(ctx context.Context, job *PrintJob) (bool, error) {
	query := s.db.Rebind(`
		INSERT INTO print_jobs (id, organization_id, order_id, call_id, status,
			attempts, last_error, printer_target, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, order_id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query,
		job.ID, job.OrganizationID, job.OrderID, job.CallID, job.Status,
		job.Attempts, job.LastError, job.PrinterTarget, job.Content)
	if err != nil {
		return false, fmt.Errorf("failed to insert job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLJobStore) MarkRetry(ctx context.Context, orgID, orderID string) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE print_jobs
		SET status = 'retrying', last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE organization_id = ? AND order_id = ? AND status = 'failed'`,
		orgID, orderID)
}

func (s *SQLJobStore) MarkQueued(ctx context.Context, orgID, orderID, content string) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE print_jobs
		SET status = 'queued', content = ?, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE organization_id = ? AND order_id = ? AND status = 'retrying'`,
		content, orgID, orderID)
}

func (s *SQLJobStore) MarkSent(ctx context.Context, orgID, orderID string) error {
	_, err := s.conditionalUpdate(ctx, `
		UPDATE print_jobs
		SET status = 'sent', attempts = attempts + 1, last_error = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE organization_id = ? AND order_id = ?`,
		orgID, orderID)
	return err
}

func (s *SQLJobStore) MarkFailed(ctx context.Context, orgID, orderID, errMsg string) error {
	_, err := s.conditionalUpdate(ctx, `
		UPDATE print_jobs
		SET status = 'failed', attempts = attempts + 1, last_error = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE organization_id = ? AND order_id = ?`,
		errMsg, orgID, orderID)
	return err
}

func (s *SQLJobStore) GetByID(ctx context.Context, orgID, jobID string) (*PrintJob, error) {
	var job PrintJob
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM print_jobs
		WHERE organization_id = ? AND id = ?`)
	err := s.db.GetContext(ctx, &job, query, orgID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *SQLJobStore) List(ctx context.Context, orgID, status string, limit int) ([]*PrintJob, error) {
	var (
		query string
		args  []interface{}
	)
	if status == "" || status == "all" {
		query = `SELECT ` + jobColumns + ` FROM print_jobs
			WHERE organization_id = ?
			ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{orgID, limit}
	} else {
		query = `SELECT ` + jobColumns + ` FROM print_jobs
			WHERE organization_id = ? AND status = ?
			ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{orgID, status, limit}
	}

	var jobs []*PrintJob
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLJobStore) MarkRetryingByID(ctx context.Context, orgID, jobID string) (bool, error) {
	return s.conditionalUpdate(ctx, `
		UPDATE print_jobs
		SET status = 'retrying', last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE organization_id = ? AND id = ? AND status = 'failed'`,
		orgID, jobID)
}

// claimNextPostgres locks the oldest queued row and skips rows locked by
// concurrent claimants, so two agents never take the same job.
const claimNextPostgres = `
	UPDATE print_jobs
	SET status = 'printing', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
	WHERE id = (
		SELECT id FROM print_jobs
		WHERE organization_id = ? AND status = 'queued'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + jobColumns

// claimNextSQLite relies on the status predicate plus SQLite's single-writer
// discipline: the conditional UPDATE is atomic, so a raced claim simply
// matches zero rows.
const claimNextSQLite = `
	UPDATE print_jobs
	SET status = 'printing', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
	WHERE status = 'queued' AND id = (
		SELECT id FROM print_jobs
		WHERE organization_id = ? AND status = 'queued'
		ORDER BY created_at ASC
		LIMIT 1
	)
	RETURNING ` + jobColumns

func (s *SQLJobStore) ClaimNext(ctx context.Context, orgID string) (*PrintJob, error) {
	query := claimNextSQLite
	if s.driver == DriverPostgres {
		query = claimNextPostgres
	}

	var job PrintJob
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), orgID).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return &job, nil
}

const maxReportedErrorLen = 500

func (s *SQLJobStore) ReportStatus(ctx context.Context, orgID, jobID string, status JobStatus, errMsg string) (bool, error) {
	if len(errMsg) > maxReportedErrorLen {
		errMsg = errMsg[:maxReportedErrorLen]
	}

	var lastErr interface{}
	if status == StatusFailed && errMsg != "" {
		lastErr = errMsg
	}

	return s.conditionalUpdate(ctx, `
		UPDATE print_jobs
		SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE organization_id = ? AND id = ?`,
		string(status), lastErr, orgID, jobID)
}

func (s *SQLJobStore) conditionalUpdate(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}
