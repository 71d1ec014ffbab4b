// Package provider is the submission boundary. Providers own media
// synthesis; this package only ships the generic parameter map and reads
// back a job state plus asset reference.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Handle identifies a submitted generation job at the provider.
type Handle string

// State is the provider-reported job state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Result is one poll observation.
type Result struct {
	State    State  `json:"state"`
	AssetRef string `json:"asset_ref"`
	Error    string `json:"error"`
}

// Submitter is what the orchestrator needs from a provider.
type Submitter interface {
	Submit(ctx context.Context, capabilityID string, params map[string]interface{}) (Handle, error)
	Poll(ctx context.Context, h Handle) (Result, error)
}

// QueueClient talks to a queue-style HTTP provider: POST to enqueue, GET to
// poll.
type QueueClient struct {
	baseURL string
	httpc   *http.Client
}

// NewQueueClient creates a client against baseURL. A nil http.Client gets a
// sane default timeout.
func NewQueueClient(baseURL string, httpc *http.Client) *QueueClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &QueueClient{baseURL: baseURL, httpc: httpc}
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

func (c *QueueClient) Submit(ctx context.Context, capabilityID string, params map[string]interface{}) (Handle, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal parameters: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, capabilityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit to %s: %w", capabilityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("submit to %s: status %d: %s", capabilityID, resp.StatusCode, snippet)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if sr.RequestID == "" {
		return "", fmt.Errorf("submit to %s: empty request id", capabilityID)
	}

	log.Info().
		Str("model", capabilityID).
		Str("handle", sr.RequestID).
		Msg("Generation job submitted")
	return Handle(sr.RequestID), nil
}

func (c *QueueClient) Poll(ctx context.Context, h Handle) (Result, error) {
	url := fmt.Sprintf("%s/requests/%s", c.baseURL, h)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("poll %s: %w", h, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("poll %s: status %d", h, resp.StatusCode)
	}

	var r Result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("decode poll response: %w", err)
	}
	return r, nil
}

// Await polls until the job reaches a terminal state or the wait budget runs
// out. Transient poll errors are retried until the deadline.
func Await(ctx context.Context, s Submitter, h Handle, interval, maxWait time.Duration) (Result, error) {
	deadline := time.Now().Add(maxWait)
	for {
		r, err := s.Poll(ctx, h)
		if err != nil {
			log.Warn().Err(err).Str("handle", string(h)).Msg("Poll failed, will retry")
		} else if r.State == StateCompleted || r.State == StateFailed {
			return r, nil
		}

		if time.Now().After(deadline) {
			return Result{}, fmt.Errorf("job %s did not finish within %s", h, maxWait)
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}
