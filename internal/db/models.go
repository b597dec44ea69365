package db

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get operations when no row matches within the
// calling organization.
var ErrNotFound = errors.New("not found")

type JobStatus string

const (
	StatusQueued   JobStatus = "queued"
	StatusPrinting JobStatus = "printing"
	StatusSent     JobStatus = "sent"
	StatusFailed   JobStatus = "failed"
	StatusRetrying JobStatus = "retrying"
)

// ValidStatus reports whether s is one of the job lifecycle statuses.
func ValidStatus(s string) bool {
	switch JobStatus(s) {
	case StatusQueued, StatusPrinting, StatusSent, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// PrintJob tracks one kitchen ticket per (organization, order). Rows are
// never deleted; they are the audit trail for what reached the printer.
type PrintJob struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	OrderID        string    `db:"order_id" json:"order_id"`
	CallID         string    `db:"call_id" json:"call_id,omitempty"`
	Status         JobStatus `db:"status" json:"status"`
	Attempts       int       `db:"attempts" json:"attempts"`
	LastError      *string   `db:"last_error" json:"last_error,omitempty"`
	PrinterTarget  string    `db:"printer_target" json:"printer_target,omitempty"`
	Content        string    `db:"content" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderRecord is the stored order payload keyed by organization + order id.
type OrderRecord struct {
	OrganizationID string    `db:"organization_id"`
	OrderID        string    `db:"order_id"`
	Payload        []byte    `db:"payload"`
	CreatedAt      time.Time `db:"created_at"`
}
