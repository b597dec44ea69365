package printer

import (
	"context"
	"time"
)

// Meta travels with the ticket text so a provider can route and trace it.
type Meta struct {
	OrganizationID string
	OrderID        string
	PrinterTarget  string
	CreatedAt      time.Time
}

// Result is the uniform outcome of a send attempt. Providers never return
// Go errors across this boundary; every failure mode becomes OK=false with
// a machine-readable code in Error.
type Result struct {
	OK    bool
	JobID string
	Error string
	// Deferred is reserved for future asynchronous delivery. No caller
	// acts on it today; an OK result is treated as delivered.
	Deferred bool
}

// Provider abstracts how a rendered ticket reaches a physical printer.
type Provider interface {
	Send(ctx context.Context, ticketText string, meta Meta) Result
}
