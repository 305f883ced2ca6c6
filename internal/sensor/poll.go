// SPDX-License-Identifier: MIT

package sensor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/khaas/earshot/internal/log"
)

// PollConfig configures the remote trigger poller.
type PollConfig struct {
	// FeedURL is the channel feed endpoint returning the latest flag
	// value, e.g. an IoT channel API with ?results=1.
	FeedURL string
	// Field is the feed field holding the flag, e.g. "field2".
	Field string
	// Interval is the poll cadence.
	Interval time.Duration
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// RemoteTriggerPoller polls an HTTP channel feed for an external trigger
// flag. The feed is untrusted: transport errors, bad status codes and
// unparseable bodies all map to "not triggered".
type RemoteTriggerPoller struct {
	cfg     PollConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewRemoteTriggerPoller builds a poller paced at cfg.Interval.
func NewRemoteTriggerPoller(cfg PollConfig) *RemoteTriggerPoller {
	if cfg.Field == "" {
		cfg.Field = "field1"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RemoteTriggerPoller{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// feedResponse is the subset of the channel feed payload we read.
type feedResponse struct {
	Feeds []map[string]any `json:"feeds"`
}

// Poll waits for the next poll slot and reads the flag once.
func (p *RemoteTriggerPoller) Poll(ctx context.Context) (TriggerSignal, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return TriggerSignal{}, err
	}
	sig := TriggerSignal{PolledAt: time.Now()}
	sig.Active = p.readFlag(ctx) == 1
	return sig, nil
}

// readFlag fetches the latest feed entry and parses the configured
// field. Every failure mode returns 0.
func (p *RemoteTriggerPoller) readFlag(ctx context.Context) int {
	logger := log.WithComponent("sensor")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.FeedURL, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("trigger poll request build failed")
		return 0
	}
	resp, err := p.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("trigger poll failed")
		return 0
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", resp.StatusCode).Msg("trigger poll bad status")
		return 0
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		logger.Warn().Err(err).Msg("trigger poll unparseable body")
		return 0
	}
	if len(feed.Feeds) == 0 {
		return 0
	}

	raw, ok := feed.Feeds[0][p.cfg.Field]
	if !ok || raw == nil {
		return 0
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	case float64:
		return int(v)
	default:
		return 0
	}
}
