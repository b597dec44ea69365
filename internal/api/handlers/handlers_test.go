package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voiceorder/printspool/internal/api/middleware"
	"github.com/voiceorder/printspool/internal/db"
	"github.com/voiceorder/printspool/internal/pipeline"
	"github.com/voiceorder/printspool/internal/printer"
	"github.com/voiceorder/printspool/internal/ticket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	result printer.Result
	calls  int
}

func (s *stubProvider) Send(_ context.Context, _ string, _ printer.Meta) printer.Result {
	s.calls++
	return s.result
}

type testEnv struct {
	store    *db.MemoryStore
	provider *stubProvider
	router   *gin.Engine
}

// newTestEnv wires the real routes against the in-memory store, with a stub
// in place of the token middleware so tests pick the organization directly.
func newTestEnv(queueMode bool) *testEnv {
	store := db.NewMemoryStore()
	provider := &stubProvider{result: printer.Result{OK: true, JobID: "job-456"}}
	pipe := pipeline.New(store, provider, queueMode)

	orderHandler := NewOrderHandler(store, pipe)
	agentHandler := NewAgentHandler(store)
	adminHandler := NewAdminHandler(store, store, pipe)

	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(middleware.ContextOrgKey, "org-1")
	})
	api.POST("/orders/confirmed", orderHandler.OrderConfirmed)
	api.GET("/agent/print-jobs/next", agentHandler.ClaimNext)
	api.POST("/agent/print-jobs/report", agentHandler.ReportStatus)

	admin := r.Group("/api/admin/orgs/:org")
	admin.GET("/print-jobs", adminHandler.ListJobs)
	admin.GET("/print-jobs/:id", adminHandler.GetJob)
	admin.POST("/print-jobs/:id/retry", adminHandler.RetryJob)

	return &testEnv{store: store, provider: provider, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func confirmOrder(t *testing.T, env *testEnv, orderID string) {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/orders/confirmed", ticket.Order{
		OrderID: orderID,
		Items:   []ticket.LineItem{{Name: "Pizza", Quantity: 1}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm %s: status %d body %s", orderID, w.Code, w.Body.String())
	}
}

func TestOrderConfirmedCreatesAndDeduplicates(t *testing.T) {
	env := newTestEnv(false)

	confirmOrder(t, env, "order-1")
	res := decode[pipeline.Result](t, env.do(t, http.MethodPost, "/api/orders/confirmed", ticket.Order{OrderID: "order-1"}))
	if !res.OK || !res.Skipped {
		t.Errorf("redelivery = %+v, want skipped", res)
	}
	if env.provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", env.provider.calls)
	}
}

func TestOrderConfirmedRejectsMissingOrderID(t *testing.T) {
	env := newTestEnv(false)
	w := env.do(t, http.MethodPost, "/api/orders/confirmed", ticket.Order{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestOrderConfirmedDeliveryFailureIsStill200(t *testing.T) {
	env := newTestEnv(false)
	env.provider.result = printer.Result{OK: false, Error: "printer_offline"}

	w := env.do(t, http.MethodPost, "/api/orders/confirmed", ticket.Order{OrderID: "order-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	res := decode[pipeline.Result](t, w)
	if res.OK || res.Error != "printer_offline" {
		t.Errorf("result = %+v", res)
	}
}

func TestAgentClaimCycle(t *testing.T) {
	env := newTestEnv(true)

	w := env.do(t, http.MethodGet, "/api/agent/print-jobs/next", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("empty claim status = %d, want 204", w.Code)
	}

	confirmOrder(t, env, "order-1")

	w = env.do(t, http.MethodGet, "/api/agent/print-jobs/next", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d body %s", w.Code, w.Body.String())
	}
	claim := decode[map[string]string](t, w)
	if claim["print_job_id"] == "" || claim["content"] == "" {
		t.Fatalf("claim response = %v", claim)
	}

	// Claimed jobs do not come back on the next poll.
	if w := env.do(t, http.MethodGet, "/api/agent/print-jobs/next", nil); w.Code != http.StatusNoContent {
		t.Errorf("second claim status = %d, want 204", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/agent/print-jobs/report", gin.H{
		"print_job_id": claim["print_job_id"],
		"status":       "sent",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d body %s", w.Code, w.Body.String())
	}

	job, err := env.store.GetByOrder(context.Background(), "org-1", "order-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != db.StatusSent || job.Attempts != 1 {
		t.Errorf("job = status=%s attempts=%d", job.Status, job.Attempts)
	}
}

func TestAgentReportValidation(t *testing.T) {
	env := newTestEnv(true)

	w := env.do(t, http.MethodPost, "/api/agent/print-jobs/report", gin.H{"print_job_id": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing status: %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/agent/print-jobs/report", gin.H{"print_job_id": "x", "status": "printing"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-terminal status: %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/agent/print-jobs/report", gin.H{"print_job_id": "no-such", "status": "sent"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job: %d, want 404", w.Code)
	}
}

func TestAdminListJobs(t *testing.T) {
	env := newTestEnv(false)
	env.provider.result = printer.Result{OK: false, Error: "printer_offline"}
	confirmOrder(t, env, "order-1")
	env.provider.result = printer.Result{OK: true}
	confirmOrder(t, env, "order-2")

	w := env.do(t, http.MethodGet, "/api/admin/orgs/org-1/print-jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	body := decode[map[string][]*db.PrintJob](t, w)
	if len(body["jobs"]) != 2 || body["jobs"][0].OrderID != "order-2" {
		t.Errorf("list = %+v, want newest first", body["jobs"])
	}

	w = env.do(t, http.MethodGet, "/api/admin/orgs/org-1/print-jobs?status=failed", nil)
	body = decode[map[string][]*db.PrintJob](t, w)
	if len(body["jobs"]) != 1 || body["jobs"][0].OrderID != "order-1" {
		t.Errorf("failed filter = %+v", body["jobs"])
	}

	if w := env.do(t, http.MethodGet, "/api/admin/orgs/org-1/print-jobs?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid filter status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/admin/orgs/org-2/print-jobs", nil)
	body = decode[map[string][]*db.PrintJob](t, w)
	if len(body["jobs"]) != 0 {
		t.Errorf("org-2 sees %d jobs of org-1", len(body["jobs"]))
	}
}

func TestAdminGetJob(t *testing.T) {
	env := newTestEnv(false)
	confirmOrder(t, env, "order-1")
	job, _ := env.store.GetByOrder(context.Background(), "org-1", "order-1")

	w := env.do(t, http.MethodGet, "/api/admin/orgs/org-1/print-jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[db.PrintJob](t, w)
	if got.ID != job.ID || got.Status != db.StatusSent {
		t.Errorf("got %+v", got)
	}

	if w := env.do(t, http.MethodGet, "/api/admin/orgs/org-1/print-jobs/no-such", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", w.Code)
	}
}

func TestAdminRetryFlow(t *testing.T) {
	env := newTestEnv(false)
	env.provider.result = printer.Result{OK: false, Error: "printer_offline"}
	confirmOrder(t, env, "order-1")
	job, _ := env.store.GetByOrder(context.Background(), "org-1", "order-1")

	env.provider.result = printer.Result{OK: true, JobID: "job-456"}
	w := env.do(t, http.MethodPost, "/api/admin/orgs/org-1/print-jobs/"+job.ID+"/retry", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retry status = %d body %s", w.Code, w.Body.String())
	}
	res := decode[map[string]any](t, w)
	if res["status"] != "retrying" {
		t.Errorf("retry response = %v", res)
	}

	// The reprint runs asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, _ = env.store.GetByOrder(context.Background(), "org-1", "order-1")
		if job.Status == db.StatusSent || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != db.StatusSent || job.Attempts != 2 {
		t.Errorf("after retry: status=%s attempts=%d", job.Status, job.Attempts)
	}

	// A second retry hits a job that is no longer failed.
	w = env.do(t, http.MethodPost, "/api/admin/orgs/org-1/print-jobs/"+job.ID+"/retry", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("retry of sent job status = %d, want 409", w.Code)
	}
}

func TestAdminRetryMissingJobAndOrder(t *testing.T) {
	env := newTestEnv(false)

	w := env.do(t, http.MethodPost, "/api/admin/orgs/org-1/print-jobs/no-such/retry", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", w.Code)
	}

	// A failed job whose order record is gone cannot be re-rendered.
	env.provider.result = printer.Result{OK: false, Error: "printer_offline"}
	confirmOrder(t, env, "order-1")
	job, _ := env.store.GetByOrder(context.Background(), "org-1", "order-1")

	fresh := db.NewMemoryStore()
	pipe := pipeline.New(env.store, env.provider, false)
	adminHandler := NewAdminHandler(env.store, fresh, pipe)
	r := gin.New()
	r.POST("/api/admin/orgs/:org/print-jobs/:id/retry", adminHandler.RetryJob)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/orgs/org-1/print-jobs/"+job.ID+"/retry", strings.NewReader(""))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing order status = %d, want 404", rec.Code)
	}
}
