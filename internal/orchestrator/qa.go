package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"forumagent/internal/resilience"
)

// QAClient asks the community Q&A front-end a question on behalf of a
// persona and returns the answer.
type QAClient interface {
	Ask(ctx context.Context, username, game, question string) (string, error)
}

// HTTPQAClient talks to the Q&A front-end over HTTP.
type HTTPQAClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPQAClient creates a client with an explicit per-call timeout.
func NewHTTPQAClient(baseURL string, timeout time.Duration) *HTTPQAClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPQAClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type qaRequest struct {
	Username string `json:"username"`
	Game     string `json:"game"`
	Question string `json:"question"`
}

type qaResponse struct {
	Answer string `json:"answer"`
}

// Ask implements QAClient.
func (c *HTTPQAClient) Ask(ctx context.Context, username, game, question string) (string, error) {
	body, err := json.Marshal(qaRequest{Username: username, Game: game, Question: question})
	if err != nil {
		return "", resilience.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/qa", bytes.NewReader(body))
	if err != nil {
		return "", resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("qa request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := resilience.FromResponse(resp); err != nil {
		return "", err
	}

	var out qaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("qa response decode failed: %w", err)
	}
	if out.Answer == "" {
		return "", resilience.Permanent(fmt.Errorf("qa returned an empty answer"))
	}
	return out.Answer, nil
}
