package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeServer records status reports and serves a fixed claim queue.
type fakeServer struct {
	mu      sync.Mutex
	queue   []ClaimedJob
	reports []reportBody
	srv     *httptest.Server
}

type reportBody struct {
	PrintJobID string `json:"print_job_id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
}

func newFakeServer(t *testing.T, queue ...ClaimedJob) *fakeServer {
	t.Helper()
	f := &fakeServer{queue: queue}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent/print-jobs/next", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.queue) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		job := f.queue[0]
		f.queue = f.queue[1:]
		json.NewEncoder(w).Encode(job)
	})
	mux.HandleFunc("/api/agent/print-jobs/report", func(w http.ResponseWriter, r *http.Request) {
		var body reportBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.reports = append(f.reports, body)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) reported() []reportBody {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reportBody(nil), f.reports...)
}

func newTestRunner(t *testing.T, srv *fakeServer, printCmd string) *Runner {
	t.Helper()
	state, err := LoadState(filepath.Join(t.TempDir(), "printed.json"))
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	client := NewClient(srv.srv.URL, "test-token", 0)
	return NewRunner(client, state, RunnerConfig{
		SpoolDir:     t.TempDir(),
		PrintCommand: printCmd,
	})
}

func TestCyclePrintsAndReportsSent(t *testing.T) {
	srv := newFakeServer(t, ClaimedJob{PrintJobID: "job-1", Content: "RECEIPT\nTOTAL: 10.00"})
	r := newTestRunner(t, srv, "true")

	r.cycle(context.Background())

	reports := srv.reported()
	if len(reports) != 1 || reports[0].Status != "sent" || reports[0].PrintJobID != "job-1" {
		t.Fatalf("reports = %+v", reports)
	}
	if !r.state.Printed("job-1") {
		t.Errorf("successful print not recorded in state")
	}
}

func TestCycleReportsSpoolerFailure(t *testing.T) {
	srv := newFakeServer(t, ClaimedJob{PrintJobID: "job-1", Content: "RECEIPT"})
	r := newTestRunner(t, srv, "false")

	r.cycle(context.Background())

	reports := srv.reported()
	if len(reports) != 1 || reports[0].Status != "failed" {
		t.Fatalf("reports = %+v", reports)
	}
	if !strings.Contains(reports[0].Error, "spooler failed") {
		t.Errorf("report error = %q", reports[0].Error)
	}
	if r.state.Printed("job-1") {
		t.Errorf("failed print recorded as printed")
	}
}

func TestCycleRejectsBlankTicket(t *testing.T) {
	srv := newFakeServer(t, ClaimedJob{PrintJobID: "job-1", Content: "   \n  "})
	r := newTestRunner(t, srv, "true")

	r.cycle(context.Background())

	reports := srv.reported()
	if len(reports) != 1 || reports[0].Status != "failed" || reports[0].Error != reasonEmptyTicket {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestCycleAcknowledgesAlreadyPrintedWithoutReprint(t *testing.T) {
	srv := newFakeServer(t, ClaimedJob{PrintJobID: "job-1", Content: "RECEIPT"})
	// A spooler command that cannot succeed proves the printer is not touched.
	r := newTestRunner(t, srv, "/nonexistent-spooler")
	if err := r.state.MarkPrinted("job-1"); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	r.cycle(context.Background())

	reports := srv.reported()
	if len(reports) != 1 || reports[0].Status != "sent" {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestCycleIdlesOnEmptyQueue(t *testing.T) {
	srv := newFakeServer(t)
	r := newTestRunner(t, srv, "true")

	r.cycle(context.Background())

	if reports := srv.reported(); len(reports) != 0 {
		t.Errorf("reports on empty queue: %+v", reports)
	}
}

func TestBoundedBufferCapsRetainedOutput(t *testing.T) {
	var b boundedBuffer
	chunk := strings.Repeat("x", 3000)
	for i := 0; i < 4; i++ {
		n, err := b.Write([]byte(chunk))
		if err != nil || n != len(chunk) {
			t.Fatalf("write %d: n=%d err=%v", i, n, err)
		}
	}
	if len(b.String()) != spoolerOutputCap {
		t.Errorf("retained %d bytes, want %d", len(b.String()), spoolerOutputCap)
	}
}

func TestClientClaimNextHandlesEmptyAndError(t *testing.T) {
	srv := newFakeServer(t)
	client := NewClient(srv.srv.URL, "test-token", 0)

	job, err := client.ClaimNext(context.Background())
	if err != nil || job != nil {
		t.Errorf("empty queue: job=%v err=%v", job, err)
	}

	bad := NewClient(srv.srv.URL, "wrong-token", 0)
	if _, err := bad.ClaimNext(context.Background()); err == nil {
		t.Errorf("unauthorized claim did not error")
	}
}
