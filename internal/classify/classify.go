// SPDX-License-Identifier: MIT

// Package classify hands captured artifacts to an external classifier
// capability and shields the pipeline from its failure modes.
package classify

import (
	"context"
	"fmt"

	"github.com/khaas/earshot/internal/detect"
)

// Example is one labelled reference artifact embedded in a request to
// steer the classifier.
type Example struct {
	Label string `json:"label"`
	MIME  string `json:"mime_type"`
	// Data is the base64-encoded artifact.
	Data string `json:"data"`
}

// Request is the typed classifier input. No dynamic payload shapes:
// every field the remote end needs is explicit.
type Request struct {
	Prompt     string    `json:"prompt"`
	Capture    string    `json:"capture_bytes"` // base64
	MIME       string    `json:"mime_type"`
	References []Example `json:"reference_examples,omitempty"`
}

// ScoredLabel is one ranked classification label.
type ScoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Response is what the classifier capability returns: labels already
// ordered by descending confidence, plus the raw model text.
type Response struct {
	Labels  []ScoredLabel `json:"labels"`
	RawText string        `json:"raw_text"`
}

// Classifier is the external classification capability. Implementations
// may run in-process or remote; the pipeline does not care.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// Result is the pipeline-facing classification outcome for one event.
type Result struct {
	EventID detect.EventID
	Labels  []ScoredLabel
	RawText string
	// Degraded marks the persist-on-failure fallback: classification
	// failed but the raw artifact is still delivered.
	Degraded bool
}

// TopLabel returns the highest-ranked label, or "unknown" when empty.
func (r Result) TopLabel() ScoredLabel {
	if len(r.Labels) == 0 {
		return ScoredLabel{Label: "unknown"}
	}
	return r.Labels[0]
}

// DegradedResult builds the fallback result used when classification
// exhausts its retries, so the artifact is not lost.
func DegradedResult(eventID detect.EventID, cause error) Result {
	return Result{
		EventID:  eventID,
		Labels:   []ScoredLabel{{Label: "unknown", Score: 0}},
		RawText:  fmt.Sprintf("classification failed: %v", cause),
		Degraded: true,
	}
}

// StatusError is an HTTP-level classifier failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classifier returned status %d", e.Code)
}

// Transient reports whether the status is worth retrying: 429 and 5xx
// are; other 4xx are not.
func (e *StatusError) Transient() bool {
	return e.Code == 429 || e.Code >= 500
}
