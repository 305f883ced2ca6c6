// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/metrics"
	"github.com/khaas/earshot/internal/sensor"
)

// RunAudio drives the audio listening loop until ctx is cancelled or
// the source fails. The loop reads every frame, feeds the detector, and
// on an accepted trigger captures the window on this same goroutine so
// the source handle never has two readers. Classification and delivery
// for the event run concurrently with the next frame reads.
func (p *Pipeline) RunAudio(ctx context.Context, source sensor.Source, det *detect.ThresholdDetector) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Info().Str(log.FieldNewState, string(StateListening)).Msg("listening for loud frames")

	for {
		frame, err := source.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info().Msg("listening stopped, draining in-flight events")
				p.Drain()
				return nil
			}
			// The stream is gone but captures already taken are not:
			// drain in-flight events before surfacing the fatal error.
			p.Drain()
			return fmt.Errorf("audio source: %w", err)
		}
		metrics.IncFrameRead()

		event, verdict := det.Evaluate(frame)
		if verdict.Suppressed {
			metrics.IncTriggerSuppressed()
			logger.Debug().
				Int(log.FieldPeak, verdict.Peak).
				Float64(log.FieldRMS, verdict.RMS).
				Msg("trigger suppressed inside cooldown")
		}
		if event == nil {
			continue
		}

		logger.Info().
			Int(log.FieldPeak, verdict.Peak).
			Float64(log.FieldRMS, verdict.RMS).
			Str(log.FieldEventID, string(event.ID)).
			Msg("loud frame detected")

		if err := p.handleTrigger(ctx, *event); err != nil {
			p.Drain()
			return err
		}
	}
}
