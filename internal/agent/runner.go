package agent

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const (
	reasonEmptyTicket = "empty_ticket_text"

	// spoolerOutputCap bounds how much spooler output is kept for error
	// reports, so an oversized ticket cannot balloon memory.
	spoolerOutputCap = 8 * 1024
)

// Runner is the agent's poll loop: claim a job, feed the OS print spooler,
// report the outcome. Cycles run strictly one at a time.
type Runner struct {
	client    *Client
	state     *State
	spoolDir  string
	printCmd  string
	printArgs []string
	interval  time.Duration
	busy      atomic.Bool
}

type RunnerConfig struct {
	SpoolDir     string
	PrintCommand string
	PrintArgs    []string
	PollInterval time.Duration
}

func NewRunner(client *Client, state *State, cfg RunnerConfig) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PrintCommand == "" {
		cfg.PrintCommand = "lp"
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = os.TempDir()
	}
	return &Runner{
		client:    client,
		state:     state,
		spoolDir:  cfg.SpoolDir,
		printCmd:  cfg.PrintCommand,
		printArgs: cfg.PrintArgs,
		interval:  cfg.PollInterval,
	}
}

// Run polls until ctx is cancelled. A cycle in progress always finishes; an
// in-flight print is never abandoned silently.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[agent] polling every %v", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[agent] shutting down")
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if !r.busy.CompareAndSwap(false, true) {
		return
	}
	defer r.busy.Store(false)

	job, err := r.client.ClaimNext(ctx)
	if err != nil {
		log.Printf("[agent] claim: %v", err)
		return
	}
	if job == nil {
		return
	}

	log.Printf("[agent] claimed job %s", job.PrintJobID)

	// Once a job is claimed, finish it even if shutdown was requested; an
	// in-progress print must not be abandoned silently.
	handleCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	r.handle(handleCtx, job)
}

// handle never lets one bad job kill the loop; print and report errors are
// logged and the next cycle carries on.
func (r *Runner) handle(ctx context.Context, job *ClaimedJob) {
	if r.state.Printed(job.PrintJobID) {
		log.Printf("[agent] job %s already printed, acknowledging", job.PrintJobID)
		r.report(ctx, job.PrintJobID, "sent", "")
		return
	}

	if strings.TrimSpace(job.Content) == "" {
		r.report(ctx, job.PrintJobID, "failed", reasonEmptyTicket)
		return
	}

	if err := r.print(ctx, job); err != nil {
		log.Printf("[agent] print job %s: %v", job.PrintJobID, err)
		r.report(ctx, job.PrintJobID, "failed", err.Error())
		return
	}

	if err := r.state.MarkPrinted(job.PrintJobID); err != nil {
		log.Printf("[agent] persist state for job %s: %v", job.PrintJobID, err)
	}
	r.report(ctx, job.PrintJobID, "sent", "")
}

func (r *Runner) print(ctx context.Context, job *ClaimedJob) error {
	path := filepath.Join(r.spoolDir, fmt.Sprintf("ticket_%s.txt", job.PrintJobID))
	if err := os.WriteFile(path, []byte(job.Content+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write spool file: %w", err)
	}
	defer os.Remove(path)

	args := append(append([]string(nil), r.printArgs...), path)
	cmd := exec.CommandContext(ctx, r.printCmd, args...)

	var out boundedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg == "" {
			return fmt.Errorf("spooler failed: %v", err)
		}
		return fmt.Errorf("spooler failed: %v: %s", err, msg)
	}
	return nil
}

func (r *Runner) report(ctx context.Context, jobID, status, errMsg string) {
	if err := r.client.Report(ctx, jobID, status, errMsg); err != nil {
		log.Printf("[agent] report job %s: %v", jobID, err)
	}
}

type boundedBuffer struct {
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := spoolerOutputCap - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return b.buf.String() }
