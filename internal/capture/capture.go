// SPDX-License-Identifier: MIT

// Package capture assembles the bounded window of raw sensor data that
// follows an accepted trigger.
package capture

import (
	"fmt"
	"time"

	"github.com/khaas/earshot/internal/detect"
)

// Capture is the raw artifact taken for one trigger event. Immutable
// once returned by a capturer.
type Capture struct {
	EventID detect.EventID
	MIME    string

	// Samples holds the PCM window for the audio variant.
	Samples    []int16
	SampleRate int

	// Image holds the encoded still for the camera variant.
	Image []byte

	Duration time.Duration
}

// ArtifactBytes returns the encoded artifact: WAV for audio captures,
// the image bytes as-is for stills.
func (c Capture) ArtifactBytes() []byte {
	if len(c.Image) > 0 {
		return c.Image
	}
	return EncodeWAV(c.Samples, c.SampleRate)
}

// ArtifactKey returns the deterministic object-store key for this
// capture, derived from the event ID so re-upload is idempotent.
func (c Capture) ArtifactKey() string {
	if len(c.Image) > 0 {
		return fmt.Sprintf("img_%s.jpg", c.EventID)
	}
	return fmt.Sprintf("rec_%s.wav", c.EventID)
}

// Error is a per-event capture failure. The event is abandoned and
// logged; the pipeline keeps listening.
type Error struct {
	EventID detect.EventID
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %s: %s: %v", e.EventID, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
