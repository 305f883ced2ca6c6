// SPDX-License-Identifier: MIT

package classify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/khaas/earshot/internal/capture"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/metrics"
)

// DispatchConfig bounds the retry schedule for one classification. With
// the defaults (5 attempts, 1s initial delay, doubling) the worst-case
// wait between attempts sums to ~15s plus per-attempt timeouts.
type DispatchConfig struct {
	MaxAttempts    int           // total attempt cap, e.g. 5
	InitialDelay   time.Duration // first backoff delay, e.g. 1s
	Multiplier     float64       // delay growth factor, e.g. 2
	MaxElapsed     time.Duration // hard wall-clock budget for all attempts
	AttemptTimeout time.Duration // per-attempt HTTP timeout
	TopK           int           // labels kept for downstream sinks, e.g. 3
	Prompt         string
}

// Error is a per-event classification failure after retries were
// exhausted. It never crashes the pipeline loop.
type Error struct {
	EventID detect.EventID
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("classify %s: %v", e.EventID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Dispatcher hands captures to the Classifier with bounded
// retry-with-backoff and truncates results to the configured top-K.
type Dispatcher struct {
	cfg        DispatchConfig
	classifier Classifier
	references []Example
}

// NewDispatcher builds a dispatcher. References are optional labelled
// examples embedded in every request.
func NewDispatcher(cfg DispatchConfig, classifier Classifier, references []Example) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Dispatcher{cfg: cfg, classifier: classifier, references: references}
}

// Dispatch classifies one capture. Transient failures (HTTP 429, 5xx,
// network errors) are retried with exponential backoff up to the
// configured attempt cap and elapsed-time budget; other 4xx fail
// immediately. Exhaustion yields an *Error for this event only.
func (d *Dispatcher) Dispatch(ctx context.Context, cap capture.Capture) (Result, error) {
	logger := log.WithComponentFromContext(ctx, "classify")
	start := time.Now()

	req := Request{
		Prompt:     d.cfg.Prompt,
		Capture:    base64.StdEncoding.EncodeToString(cap.ArtifactBytes()),
		MIME:       cap.MIME,
		References: d.references,
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.cfg.InitialDelay
	expo.Multiplier = d.cfg.Multiplier
	expo.RandomizationFactor = 0

	attempt := 0
	operation := func() (Response, error) {
		attempt++
		attemptCtx := ctx
		if d.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
			defer cancel()
		}
		resp, err := d.classifier.Classify(attemptCtx, req)
		if err == nil {
			metrics.IncClassifyAttempt("success")
			return resp, nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Transient() {
			metrics.IncClassifyAttempt("permanent")
			return Response{}, backoff.Permanent(err)
		}
		metrics.IncClassifyAttempt("transient")
		logger.Warn().Err(err).
			Str(log.FieldEventID, string(cap.EventID)).
			Int(log.FieldAttempt, attempt).
			Msg("classification attempt failed")
		return Response{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(d.cfg.MaxAttempts)),
	}
	if d.cfg.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(d.cfg.MaxElapsed))
	}

	resp, err := backoff.Retry(ctx, operation, opts...)
	metrics.ObserveClassifyDuration(time.Since(start).Seconds())
	if err != nil {
		return Result{}, &Error{EventID: cap.EventID, Err: err}
	}

	labels := resp.Labels
	if len(labels) > d.cfg.TopK {
		labels = labels[:d.cfg.TopK]
	}
	logger.Info().
		Str(log.FieldEventID, string(cap.EventID)).
		Int(log.FieldAttempt, attempt).
		Str("top_label", Result{Labels: labels}.TopLabel().Label).
		Msg("classification succeeded")

	return Result{
		EventID: cap.EventID,
		Labels:  labels,
		RawText: resp.RawText,
	}, nil
}
