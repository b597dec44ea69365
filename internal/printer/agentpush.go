package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AgentPushProvider posts tickets to a printer agent that accepts inbound
// connections. Agents behind NAT use the polling protocol instead.
type AgentPushProvider struct {
	baseURL   string
	authToken string
	client    *http.Client
}

type AgentPushConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type pushRequest struct {
	Ticket         string `json:"ticket"`
	OrganizationID string `json:"organization_id"`
	OrderID        string `json:"order_id"`
	PrinterTarget  string `json:"printer_target,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type pushResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

func NewAgentPushProvider(cfg AgentPushConfig) *AgentPushProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AgentPushProvider{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *AgentPushProvider) Send(ctx context.Context, ticketText string, meta Meta) Result {
	payload, err := json.Marshal(pushRequest{
		Ticket:         ticketText,
		OrganizationID: meta.OrganizationID,
		OrderID:        meta.OrderID,
		PrinterTarget:  meta.PrinterTarget,
		CreatedAt:      meta.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Result{OK: false, Error: "agent_marshal_failed"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/print", bytes.NewReader(payload))
	if err != nil {
		return Result{OK: false, Error: "agent_unreachable"}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{OK: false, Error: "agent_unreachable"}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed pushResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = pushResponse{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := parsed.Error
		if code == "" {
			code = fmt.Sprintf("agent_error_%d", resp.StatusCode)
		}
		return Result{OK: false, Error: code}
	}

	if !parsed.OK {
		code := parsed.Error
		if code == "" {
			code = "agent_rejected"
		}
		return Result{OK: false, Error: code}
	}

	return Result{OK: true, JobID: parsed.JobID}
}
