package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voiceorder/printspool/internal/db"
	"github.com/voiceorder/printspool/internal/printer"
	"github.com/voiceorder/printspool/internal/ticket"
)

// Result is the outcome of one pipeline invocation. The pipeline never
// returns a Go error across its public boundary; collaborator failures are
// folded into OK=false with a machine-readable code.
type Result struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	errMissingOrderID = "missing_order_id"
	errStore          = "store_error"
	errPrintFailed    = "print_failed"
)

// Pipeline turns a confirmed order into a print job exactly once per order.
// In push mode the ticket is sent through the provider synchronously; in
// queue mode the rendered ticket is cached on the job and left queued for
// the polling agent to claim.
type Pipeline struct {
	store     db.JobStore
	provider  printer.Provider
	queueMode bool
}

func New(store db.JobStore, provider printer.Provider, queueMode bool) *Pipeline {
	return &Pipeline{store: store, provider: provider, queueMode: queueMode}
}

// Run executes the idempotency and retry state machine for one order.
// Duplicate invocations for an order that is already queued, printing,
// retrying or sent are no-ops. A failed job is only re-attempted when
// allowRetrying is set.
func (p *Pipeline) Run(ctx context.Context, orgID string, order *ticket.Order, allowRetrying bool) Result {
	if order == nil || order.OrderID == "" {
		return Result{OK: false, Error: errMissingOrderID}
	}

	job, err := p.store.GetByOrder(ctx, orgID, order.OrderID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		log.Printf("[pipeline] lookup org=%s order=%s: %v", orgID, order.OrderID, err)
		return Result{OK: false, Error: errStore}
	}

	if job != nil {
		switch job.Status {
		case db.StatusSent, db.StatusQueued, db.StatusPrinting:
			return Result{OK: true, Skipped: true, JobID: job.ID}
		case db.StatusRetrying:
			// A concurrent caller already initiated this retry; never
			// duplicate it, even when retries are allowed.
			return Result{OK: true, Skipped: true, JobID: job.ID}
		case db.StatusFailed:
			if !allowRetrying {
				return Result{OK: true, Skipped: true, JobID: job.ID}
			}
			ok, err := p.store.MarkRetry(ctx, orgID, order.OrderID)
			if err != nil {
				log.Printf("[pipeline] mark retry org=%s order=%s: %v", orgID, order.OrderID, err)
				return Result{OK: false, Error: errStore}
			}
			if !ok {
				// Lost the race: someone else retried or the agent
				// delivered it in the meantime.
				return Result{OK: true, Skipped: true, JobID: job.ID}
			}
			return p.deliver(ctx, orgID, order, job)
		}
	}

	content := ""
	if p.queueMode {
		content = ticket.Render(order)
	}
	job = &db.PrintJob{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		OrderID:        order.OrderID,
		CallID:         order.CallID,
		Status:         db.StatusQueued,
		Attempts:       0,
		PrinterTarget:  order.PrinterTarget,
		Content:        content,
	}

	inserted, err := p.store.Insert(ctx, job)
	if err != nil {
		log.Printf("[pipeline] insert org=%s order=%s: %v", orgID, order.OrderID, err)
		return Result{OK: false, Error: errStore}
	}
	if !inserted {
		// First writer won; this invocation is the duplicate.
		existing, err := p.store.GetByOrder(ctx, orgID, order.OrderID)
		if err != nil {
			log.Printf("[pipeline] refetch org=%s order=%s: %v", orgID, order.OrderID, err)
			return Result{OK: false, Error: errStore}
		}
		return Result{OK: true, Skipped: true, JobID: existing.ID}
	}

	if p.queueMode {
		// The job sits queued until the agent claims it.
		return Result{OK: true, JobID: job.ID}
	}

	return p.deliver(ctx, orgID, order, job)
}

// Resume completes a retry for a job the caller has already transitioned to
// retrying (the admin retry endpoint does the conditional transition itself
// so a lost race surfaces there as a conflict).
func (p *Pipeline) Resume(ctx context.Context, orgID string, order *ticket.Order) Result {
	if order == nil || order.OrderID == "" {
		return Result{OK: false, Error: errMissingOrderID}
	}

	job, err := p.store.GetByOrder(ctx, orgID, order.OrderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Result{OK: true, Skipped: true}
		}
		log.Printf("[pipeline] resume lookup org=%s order=%s: %v", orgID, order.OrderID, err)
		return Result{OK: false, Error: errStore}
	}
	if job.Status != db.StatusRetrying {
		return Result{OK: true, Skipped: true, JobID: job.ID}
	}

	return p.deliver(ctx, orgID, order, job)
}

// deliver renders and hands off a job that this invocation owns (freshly
// inserted or just promoted to retrying).
func (p *Pipeline) deliver(ctx context.Context, orgID string, order *ticket.Order, job *db.PrintJob) Result {
	content := ticket.Render(order)

	if p.queueMode {
		ok, err := p.store.MarkQueued(ctx, orgID, order.OrderID, content)
		if err != nil {
			log.Printf("[pipeline] requeue org=%s order=%s: %v", orgID, order.OrderID, err)
			return Result{OK: false, Error: errStore}
		}
		if !ok {
			return Result{OK: true, Skipped: true, JobID: job.ID}
		}
		return Result{OK: true, JobID: job.ID}
	}

	res := p.provider.Send(ctx, content, printer.Meta{
		OrganizationID: orgID,
		OrderID:        order.OrderID,
		PrinterTarget:  job.PrinterTarget,
		CreatedAt:      time.Now(),
	})

	if res.OK {
		if err := p.store.MarkSent(ctx, orgID, order.OrderID); err != nil {
			log.Printf("[pipeline] mark sent org=%s order=%s: %v", orgID, order.OrderID, err)
			return Result{OK: false, Error: errStore}
		}
		return Result{OK: true, JobID: job.ID}
	}

	code := res.Error
	if code == "" {
		code = errPrintFailed
	}
	if err := p.store.MarkFailed(ctx, orgID, order.OrderID, code); err != nil {
		log.Printf("[pipeline] mark failed org=%s order=%s: %v", orgID, order.OrderID, err)
		return Result{OK: false, Error: errStore}
	}
	return Result{OK: false, JobID: job.ID, Error: code}
}
