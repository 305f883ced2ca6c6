// SPDX-License-Identifier: MIT

package deliver

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/khaas/earshot/internal/capture"
	"github.com/khaas/earshot/internal/classify"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/metrics"
)

// RetryConfig bounds the per-sink retry schedule.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	OpTimeout    time.Duration // hard timeout per sink operation
}

// Fanout performs the three delivery steps in order. The notifier is
// optional; a nil notifier skips step 3.
type Fanout struct {
	cfg      RetryConfig
	objects  ObjectStore
	records  RecordStore
	notifier Notifier
}

// NewFanout builds a fan-out over the given sinks.
func NewFanout(cfg RetryConfig, objects ObjectStore, records RecordStore, notifier Notifier) *Fanout {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	return &Fanout{cfg: cfg, objects: objects, records: records, notifier: notifier}
}

// Deliver runs the fan-out for one event:
//  1. upload the raw artifact under its deterministic key;
//  2. upsert the delivery record, with a blank artifact URL when the
//     upload failed (the record is never blocked on the artifact);
//  3. notify, only when step 2 succeeded, best-effort.
//
// Failures are retried per sink within the configured bounds, then
// recorded in the report and on the persisted record itself.
func (f *Fanout) Deliver(ctx context.Context, cap capture.Capture, res classify.Result) Report {
	logger := log.WithComponentFromContext(ctx, "deliver")
	report := Report{EventID: cap.EventID}

	// Step 1: artifact upload.
	url, err := f.upload(ctx, cap)
	if err != nil {
		metrics.IncDelivery("object_store", "failure")
		report.Errors = append(report.Errors, &SinkError{Sink: "object_store", EventID: cap.EventID, Err: err})
		logger.Error().Err(err).
			Str(log.FieldEventID, string(cap.EventID)).
			Str(log.FieldSink, "object_store").
			Msg("artifact upload failed")
	} else {
		metrics.IncDelivery("object_store", "success")
		report.Uploaded = true
		report.ArtifactURL = url
	}

	// Step 2: record upsert, keyed by event ID.
	rec := buildRecord(cap, res, report)
	if err := f.upsert(ctx, rec); err != nil {
		metrics.IncDelivery("record_store", "failure")
		report.Errors = append(report.Errors, &SinkError{Sink: "record_store", EventID: cap.EventID, Err: err})
		logger.Error().Err(err).
			Str(log.FieldEventID, string(cap.EventID)).
			Str(log.FieldSink, "record_store").
			Msg("record upsert failed")
	} else {
		metrics.IncDelivery("record_store", "success")
		report.Persisted = true
	}

	// Step 3: notification, only once the record exists, tried once.
	if f.notifier != nil && report.Persisted {
		if err := f.notify(ctx, rec); err != nil {
			metrics.IncDelivery("notifier", "failure")
			report.Errors = append(report.Errors, &SinkError{Sink: "notifier", EventID: cap.EventID, Err: err})
			logger.Warn().Err(err).
				Str(log.FieldEventID, string(cap.EventID)).
				Str(log.FieldSink, "notifier").
				Msg("notification failed")
			rec.NotifyStatus = StatusFailed
		} else {
			metrics.IncDelivery("notifier", "success")
			report.Notified = true
			rec.NotifyStatus = StatusOK
		}
		// Best-effort status update; the upsert is idempotent.
		if err := f.upsert(ctx, rec); err != nil {
			logger.Warn().Err(err).Str(log.FieldEventID, string(cap.EventID)).Msg("notify status update failed")
		}
	}

	logger.Info().
		Str(log.FieldEventID, string(cap.EventID)).
		Bool("uploaded", report.Uploaded).
		Bool("persisted", report.Persisted).
		Bool("notified", report.Notified).
		Str(log.FieldArtifactURL, report.ArtifactURL).
		Msg("delivery finished")
	return report
}

func buildRecord(cap capture.Capture, res classify.Result, report Report) Record {
	labels := make([]string, 0, len(res.Labels))
	scores := make([]float64, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, l.Label)
		scores = append(scores, l.Score)
	}
	uploadStatus := StatusOK
	if !report.Uploaded {
		uploadStatus = StatusFailed
	}
	return Record{
		EventID:      cap.EventID,
		Labels:       labels,
		Scores:       scores,
		ArtifactURL:  report.ArtifactURL,
		RawText:      res.RawText,
		UploadStatus: uploadStatus,
		Degraded:     res.Degraded,
		CreatedAt:    time.Now().UTC(),
	}
}

func (f *Fanout) upload(ctx context.Context, cap capture.Capture) (string, error) {
	return retrySink(ctx, f.cfg, func(opCtx context.Context) (string, error) {
		return f.objects.Put(opCtx, cap.ArtifactKey(), cap.ArtifactBytes(), cap.MIME)
	})
}

func (f *Fanout) upsert(ctx context.Context, rec Record) error {
	_, err := retrySink(ctx, f.cfg, func(opCtx context.Context) (struct{}, error) {
		return struct{}{}, f.records.Upsert(opCtx, rec)
	})
	return err
}

func (f *Fanout) notify(ctx context.Context, rec Record) error {
	opCtx := ctx
	if f.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, f.cfg.OpTimeout)
		defer cancel()
	}
	return f.notifier.Send(opCtx, Summary{
		EventID:     rec.EventID,
		Labels:      rec.Labels,
		Scores:      rec.Scores,
		ArtifactURL: rec.ArtifactURL,
		Degraded:    rec.Degraded,
	})
}

// retrySink runs one sink operation under the shared retry policy, with
// a hard timeout per attempt.
func retrySink[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = cfg.InitialDelay
	expo.Multiplier = cfg.Multiplier
	expo.RandomizationFactor = 0

	return backoff.Retry(ctx, func() (T, error) {
		opCtx := ctx
		if cfg.OpTimeout > 0 {
			var cancel context.CancelFunc
			opCtx, cancel = context.WithTimeout(ctx, cfg.OpTimeout)
			defer cancel()
		}
		return op(opCtx)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(cfg.MaxAttempts)))
}
