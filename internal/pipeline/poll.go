// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/khaas/earshot/internal/clock"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/metrics"
	"github.com/khaas/earshot/internal/sensor"
)

// RunPoll drives the remote-flag listening loop until ctx is cancelled.
// Poll errors are already mapped to inactive signals by the poller, so
// nothing here is fatal except cancellation; the poll variant has no
// stream to lose.
func (p *Pipeline) RunPoll(ctx context.Context, poller sensor.TriggerPoller, det *detect.FlagDetector, quiet time.Duration, clk clock.Clock) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")
	logger.Info().Str(log.FieldNewState, string(StateListening)).Msg("polling remote trigger")

	for {
		sig, err := poller.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info().Msg("polling stopped, draining in-flight events")
				p.Drain()
				return nil
			}
			p.Drain()
			return err
		}
		metrics.IncTriggerPoll(sig.Active)

		event, verdict := det.Evaluate(sig)
		if verdict.Suppressed {
			metrics.IncTriggerSuppressed()
			logger.Debug().Msg("trigger suppressed inside cooldown")
		}
		if event == nil {
			continue
		}

		logger.Info().Str(log.FieldEventID, string(event.ID)).Msg("remote trigger active")

		if err := p.handleTrigger(ctx, *event); err != nil {
			p.Drain()
			return err
		}

		// Quiet period after handling, so a flag the device has not yet
		// reset does not re-fire immediately.
		if quiet > 0 {
			if err := clk.Sleep(ctx, quiet); err != nil {
				logger.Info().Msg("polling stopped, draining in-flight events")
				p.Drain()
				return nil
			}
		}
	}
}
