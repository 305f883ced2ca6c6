// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"time"

	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/sensor"
)

// WindowConfig fixes the audio capture window.
type WindowConfig struct {
	Duration   time.Duration // e.g. 2s
	SampleRate int
	FrameSize  int
}

// FrameCount returns how many frames cover the window, rounded up.
func (c WindowConfig) FrameCount() int {
	total := int(c.Duration.Seconds() * float64(c.SampleRate))
	n := (total + c.FrameSize - 1) / c.FrameSize
	if n < 1 {
		n = 1
	}
	return n
}

// WindowCapturer drains a fixed number of frames directly from the
// source following a trigger. Because it consumes the source, only one
// capture may be active at a time; the detector's cooldown enforces
// that.
type WindowCapturer struct {
	cfg    WindowConfig
	source sensor.Source
}

// NewWindowCapturer builds an audio capturer over the given source.
func NewWindowCapturer(cfg WindowConfig, source sensor.Source) *WindowCapturer {
	return &WindowCapturer{cfg: cfg, source: source}
}

// Capture assembles the window for one event: exactly FrameCount()
// frames in production order, no skips, no partial windows. A source
// failure mid-window yields a capture error carrying the cause.
func (w *WindowCapturer) Capture(ctx context.Context, event detect.TriggerEvent) (Capture, error) {
	logger := log.WithComponentFromContext(ctx, "capture")
	frames := w.cfg.FrameCount()

	samples := make([]int16, 0, frames*w.cfg.FrameSize)
	for i := 0; i < frames; i++ {
		f, err := w.source.NextFrame(ctx)
		if err != nil {
			return Capture{}, &Error{EventID: event.ID, Op: "read frame", Err: err}
		}
		samples = append(samples, f.Samples...)
	}

	logger.Info().
		Str(log.FieldEventID, string(event.ID)).
		Int(log.FieldFrames, frames).
		Dur("window", w.cfg.Duration).
		Msg("window captured")

	return Capture{
		EventID:    event.ID,
		MIME:       "audio/wav",
		Samples:    samples,
		SampleRate: w.cfg.SampleRate,
		Duration:   w.cfg.Duration,
	}, nil
}
