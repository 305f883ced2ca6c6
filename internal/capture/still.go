// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"time"

	"github.com/khaas/earshot/internal/clock"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/sensor"
)

// StillConfig fixes the camera capture behaviour.
type StillConfig struct {
	// WarmupFrames are read and discarded so exposure and focus settle
	// before the real shot.
	WarmupFrames int
	// WarmupDelay is the pause between warm-up reads.
	WarmupDelay time.Duration
	MIME        string
}

// StillCapturer takes exactly one still image per trigger after a
// warm-up phase.
type StillCapturer struct {
	cfg    StillConfig
	device sensor.StillDevice
	clk    clock.Clock
}

// NewStillCapturer builds a camera capturer over an opened device.
func NewStillCapturer(cfg StillConfig, device sensor.StillDevice, clk clock.Clock) *StillCapturer {
	if cfg.MIME == "" {
		cfg.MIME = "image/jpeg"
	}
	return &StillCapturer{cfg: cfg, device: device, clk: clk}
}

// Capture discards the warm-up frames, then takes the still. Any read
// failure abandons the event with a capture error; the pipeline keeps
// listening.
func (s *StillCapturer) Capture(ctx context.Context, event detect.TriggerEvent) (Capture, error) {
	logger := log.WithComponentFromContext(ctx, "capture")

	for i := 0; i < s.cfg.WarmupFrames; i++ {
		if _, err := s.device.ReadStill(); err != nil {
			return Capture{}, &Error{EventID: event.ID, Op: "warm-up read", Err: err}
		}
		if err := s.clk.Sleep(ctx, s.cfg.WarmupDelay); err != nil {
			return Capture{}, &Error{EventID: event.ID, Op: "warm-up wait", Err: err}
		}
	}

	img, err := s.device.ReadStill()
	if err != nil {
		return Capture{}, &Error{EventID: event.ID, Op: "still read", Err: err}
	}

	logger.Info().
		Str(log.FieldEventID, string(event.ID)).
		Int("warmup_frames", s.cfg.WarmupFrames).
		Int("bytes", len(img)).
		Msg("still captured")

	return Capture{
		EventID: event.ID,
		MIME:    s.cfg.MIME,
		Image:   img,
	}, nil
}
