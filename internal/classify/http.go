// SPDX-License-Identifier: MIT

package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/khaas/earshot/internal/log"
)

// HTTPConfig configures the remote classifier client.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
}

// HTTPClassifier talks to a remote classification service over HTTP.
// Status and transport errors are surfaced untouched so the dispatcher
// can decide what is retriable.
type HTTPClassifier struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPClassifier builds a remote classifier client. Per-attempt
// timeouts are owned by the dispatcher via request contexts.
func NewHTTPClassifier(cfg HTTPConfig) *HTTPClassifier {
	return &HTTPClassifier{cfg: cfg, client: &http.Client{}}
}

// Classify posts one typed request and decodes the ranked response.
func (c *HTTPClassifier) Classify(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("classifier request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger := log.WithComponentFromContext(ctx, "classify")
		logger.Debug().
			Int("status", resp.StatusCode).
			Msg("classifier non-OK response")
		return Response{}, &StatusError{Code: resp.StatusCode}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
