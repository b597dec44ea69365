package db

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process JobStore and OrderStore used by tests and by
// developer setups that do not want a database file. Transition semantics
// mirror the SQL store exactly.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*PrintJob    // key: orgID + "/" + orderID
	jobOrder []string                // insertion order, for FIFO claims
	orders   map[string]*OrderRecord // key: orgID + "/" + orderID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*PrintJob),
		orders: make(map[string]*OrderRecord),
	}
}

func key(orgID, orderID string) string { return orgID + "/" + orderID }

func (m *MemoryStore) GetByOrder(_ context.Context, orgID, orderID string) (*PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[key(orgID, orderID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) Insert(_ context.Context, job *PrintJob) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(job.OrganizationID, job.OrderID)
	if _, exists := m.jobs[k]; exists {
		return false, nil
	}
	cp := *job
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.jobs[k] = &cp
	m.jobOrder = append(m.jobOrder, k)
	return true, nil
}

func (m *MemoryStore) MarkRetry(_ context.Context, orgID, orderID string) (bool, error) {
	return m.transition(orgID, orderID, StatusFailed, func(j *PrintJob) {
		j.Status = StatusRetrying
		j.LastError = nil
	})
}

func (m *MemoryStore) MarkQueued(_ context.Context, orgID, orderID, content string) (bool, error) {
	return m.transition(orgID, orderID, StatusRetrying, func(j *PrintJob) {
		j.Status = StatusQueued
		j.Content = content
		j.LastError = nil
	})
}

func (m *MemoryStore) MarkSent(_ context.Context, orgID, orderID string) error {
	_, err := m.transition(orgID, orderID, "", func(j *PrintJob) {
		j.Status = StatusSent
		j.Attempts++
		j.LastError = nil
	})
	return err
}

func (m *MemoryStore) MarkFailed(_ context.Context, orgID, orderID, errMsg string) error {
	_, err := m.transition(orgID, orderID, "", func(j *PrintJob) {
		j.Status = StatusFailed
		j.Attempts++
		msg := errMsg
		j.LastError = &msg
	})
	return err
}

func (m *MemoryStore) GetByID(_ context.Context, orgID, jobID string) (*PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.OrganizationID == orgID && job.ID == jobID {
			cp := *job
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(_ context.Context, orgID, status string, limit int) ([]*PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []*PrintJob
	for i := len(m.jobOrder) - 1; i >= 0; i-- {
		job := m.jobs[m.jobOrder[i]]
		if job.OrganizationID != orgID {
			continue
		}
		if status != "" && status != "all" && string(job.Status) != status {
			continue
		}
		cp := *job
		jobs = append(jobs, &cp)
		if limit > 0 && len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

func (m *MemoryStore) MarkRetryingByID(_ context.Context, orgID, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.OrganizationID == orgID && job.ID == jobID {
			if job.Status != StatusFailed {
				return false, nil
			}
			job.Status = StatusRetrying
			job.LastError = nil
			job.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ClaimNext(_ context.Context, orgID string) (*PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.jobOrder {
		job := m.jobs[k]
		if job.OrganizationID != orgID || job.Status != StatusQueued {
			continue
		}
		job.Status = StatusPrinting
		job.Attempts++
		job.UpdatedAt = time.Now()
		cp := *job
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) ReportStatus(_ context.Context, orgID, jobID string, status JobStatus, errMsg string) (bool, error) {
	if len(errMsg) > maxReportedErrorLen {
		errMsg = errMsg[:maxReportedErrorLen]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.OrganizationID == orgID && job.ID == jobID {
			job.Status = status
			if status == StatusFailed && errMsg != "" {
				msg := errMsg
				job.LastError = &msg
			} else {
				job.LastError = nil
			}
			job.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// transition applies fn when the job exists and, if want is non-empty, is in
// the wanted state. Returns false on a state mismatch, ErrNotFound never.
func (m *MemoryStore) transition(orgID, orderID string, want JobStatus, fn func(*PrintJob)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[key(orgID, orderID)]
	if !ok {
		return false, nil
	}
	if want != "" && job.Status != want {
		return false, nil
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) PutOrder(_ context.Context, rec *OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.orders[key(rec.OrganizationID, rec.OrderID)] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, orgID, orderID string) (*OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.orders[key(orgID, orderID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}
