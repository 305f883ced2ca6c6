// SPDX-License-Identifier: MIT

// Package deliver fans one classified event out to its sinks: durable
// artifact storage, the structured record store, and the human
// notification channel. Every step is independently retried and
// idempotent on the event ID.
package deliver

import (
	"context"
	"fmt"
	"time"

	"github.com/khaas/earshot/internal/detect"
)

// Record is the unit persisted to the record store, keyed by EventID.
// Upserting the same EventID twice must leave exactly one logical row.
type Record struct {
	EventID     detect.EventID `json:"event_id"`
	Labels      []string       `json:"labels"`
	Scores      []float64      `json:"scores"`
	ArtifactURL string         `json:"artifact_url,omitempty"`
	RawText     string         `json:"raw_text,omitempty"`
	// UploadStatus flags a missing artifact so a reconciliation pass
	// can find records whose upload never completed.
	UploadStatus string    `json:"upload_status"`
	NotifyStatus string    `json:"notify_status,omitempty"`
	Degraded     bool      `json:"degraded"`
	CreatedAt    time.Time `json:"created_at"`
}

// Sink status flag values stored on the record.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ObjectStore durably stores raw artifacts under deterministic keys.
// Put with the same key must be safe to repeat.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, mime string) (string, error)
}

// RecordStore persists delivery records with upsert semantics.
type RecordStore interface {
	Upsert(ctx context.Context, rec Record) error
}

// Summary is what the notifier sends: top labels plus links to the
// artifact and the persisted record.
type Summary struct {
	EventID     detect.EventID
	Labels      []string
	Scores      []float64
	ArtifactURL string
	Degraded    bool
}

// Notifier sends a best-effort human notification.
type Notifier interface {
	Send(ctx context.Context, s Summary) error
}

// SinkError is a per-sink delivery failure. It is recorded, never
// escalated to process termination.
type SinkError struct {
	Sink    string
	EventID detect.EventID
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.EventID, e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Report states what each fan-out step achieved for one event.
type Report struct {
	EventID     detect.EventID
	ArtifactURL string
	Uploaded    bool
	Persisted   bool
	Notified    bool
	// Errors collects per-sink failures for logging; the pipeline
	// proceeds to the next event regardless.
	Errors []error
}
