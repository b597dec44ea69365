package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the server side of the polling protocol.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type ClaimedJob struct {
	PrintJobID string `json:"print_job_id"`
	Content    string `json:"content"`
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// ClaimNext asks the server for the oldest queued job. Returns (nil, nil)
// when the queue is empty.
func (c *Client) ClaimNext(ctx context.Context) (*ClaimedJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/agent/print-jobs/next", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("claim failed: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var job ClaimedJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode claim response: %w", err)
	}
	return &job, nil
}

// Report tells the server how a claimed job ended.
func (c *Client) Report(ctx context.Context, jobID, status, errMsg string) error {
	payload, err := json.Marshal(map[string]string{
		"print_job_id": jobID,
		"status":       status,
		"error":        errMsg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/agent/print-jobs/report", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to report status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("report failed: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
