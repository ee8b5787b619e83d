// Package agentclient is the HTTP glue to the external agent runtime.
// The scheduler treats the runtime as a black box behind the AgentRunner
// interface; this client is the production implementation.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/taskhive/internal/scheduler"
)

// Client posts prompt bundles to the agent runtime's run endpoint and
// returns the textual result.
type Client struct {
	url    string
	token  string
	client *http.Client
}

// New creates a client for the given run endpoint. timeout 0 means the
// call is bounded only by the run's context.
func New(url, token string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type runRequest struct {
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Prompt        string   `json:"prompt"`
	Attachments   []string `json:"attachments,omitempty"`
	CtxPlanning   string   `json:"ctx_planning"`
	CtxReasoning  string   `json:"ctx_reasoning"`
	CtxDeepSearch string   `json:"ctx_deep_search"`
	ContextKey    string   `json:"context_key"`
}

type runResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// Run implements scheduler.AgentRunner. Cancellation propagates through
// ctx; the agent is expected to abandon the run when the request drops.
func (c *Client) Run(ctx context.Context, bundle scheduler.Bundle) (string, error) {
	body, err := json.Marshal(runRequest{
		SystemPrompt:  bundle.SystemPrompt,
		Prompt:        bundle.Prompt,
		Attachments:   bundle.Attachments,
		CtxPlanning:   string(bundle.CtxPlanning),
		CtxReasoning:  string(bundle.CtxReasoning),
		CtxDeepSearch: string(bundle.CtxDeepSearch),
		ContextKey:    bundle.ContextRef.Key,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent returned status %d: %s", resp.StatusCode, data)
	}

	var rr runResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	if rr.Error != "" {
		return "", fmt.Errorf("agent error: %s", rr.Error)
	}
	return rr.Result, nil
}
