// SPDX-License-Identifier: MIT

// Package pipeline owns the capture/classify/deliver lifecycle: it runs
// the listening loop, spawns one concurrent processing flow per
// accepted trigger, and drains in-flight events on shutdown.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/khaas/earshot/internal/capture"
	"github.com/khaas/earshot/internal/classify"
	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
	"github.com/khaas/earshot/internal/log"
	"github.com/khaas/earshot/internal/metrics"
)

// State names for one event's flow. Listening runs continuously and
// concurrently with them.
type State string

const (
	StateListening  State = "listening"
	StateCapturing  State = "capturing"
	StateClassify   State = "classifying"
	StateDelivering State = "delivering"
	StateIdle       State = "idle"
)

// Capturer assembles the bounded window for one trigger event.
type Capturer interface {
	Capture(ctx context.Context, event detect.TriggerEvent) (capture.Capture, error)
}

// Config bounds the pipeline's lifecycle behaviour.
type Config struct {
	// EventBudget caps one event's classify+deliver flow.
	EventBudget time.Duration
	// DrainTimeout caps how long shutdown waits for in-flight events.
	DrainTimeout time.Duration
}

// Pipeline coordinates one sensor stream's event flows. Source reads
// are never blocked by classification or delivery I/O: those run in
// per-event goroutines tracked for shutdown drain.
type Pipeline struct {
	cfg        Config
	capturer   Capturer
	dispatcher *classify.Dispatcher
	fanout     *deliver.Fanout

	wg sync.WaitGroup
}

// New builds a pipeline over the given stages. The capturer may be nil
// at construction and supplied later via SetCapturer, since it wraps a
// device that is only opened when a run loop starts.
func New(cfg Config, capturer Capturer, dispatcher *classify.Dispatcher, fanout *deliver.Fanout) *Pipeline {
	if cfg.EventBudget <= 0 {
		cfg.EventBudget = 2 * time.Minute
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Pipeline{cfg: cfg, capturer: capturer, dispatcher: dispatcher, fanout: fanout}
}

// SetCapturer installs the mode-specific capturer before a run loop
// starts. Not safe to call while a loop is running.
func (p *Pipeline) SetCapturer(c Capturer) { p.capturer = c }

// handleTrigger runs the Capturing stage synchronously (the audio
// capturer consumes frames from the shared source, so it must run on
// the listening path) and hands the capture to a concurrent flow.
// It returns a fatal error only when the source itself failed.
func (p *Pipeline) handleTrigger(ctx context.Context, event detect.TriggerEvent) error {
	ctx = log.ContextWithEventID(ctx, string(event.ID))
	logger := log.WithComponentFromContext(ctx, "pipeline")
	metrics.IncTrigger(string(event.Reason))
	metrics.EventStarted()

	logger.Info().
		Str(log.FieldReason, string(event.Reason)).
		Str(log.FieldOldState, string(StateListening)).
		Str(log.FieldNewState, string(StateCapturing)).
		Msg("trigger accepted")

	cap, err := p.capturer.Capture(ctx, event)
	if err != nil {
		metrics.IncCapture("failure")
		metrics.EventFinished()
		if fatal := sourceFatal(err); fatal != nil {
			return fatal
		}
		// Per-event failure: abandon the event, keep listening.
		logger.Error().Err(err).
			Str(log.FieldOldState, string(StateCapturing)).
			Str(log.FieldNewState, string(StateListening)).
			Msg("capture failed, event abandoned")
		return nil
	}
	metrics.IncCapture("success")

	p.wg.Add(1)
	go p.processCaptured(ctx, cap)
	return nil
}

// processCaptured runs Classifying and Delivering for one event,
// decoupled from the listening loop. Shutdown cancellation does not
// abort it: a capture already taken is never dropped, only bounded by
// the event budget.
func (p *Pipeline) processCaptured(ctx context.Context, cap capture.Capture) {
	defer p.wg.Done()
	defer metrics.EventFinished()

	flowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.EventBudget)
	defer cancel()
	logger := log.WithComponentFromContext(flowCtx, "pipeline")

	logger.Debug().
		Str(log.FieldOldState, string(StateCapturing)).
		Str(log.FieldNewState, string(StateClassify)).
		Msg("classifying")

	result, err := p.dispatcher.Dispatch(flowCtx, cap)
	if err != nil {
		// Persist-on-failure: deliver the artifact with a degraded
		// label rather than losing it.
		logger.Error().Err(err).Msg("classification failed, delivering degraded result")
		result = classify.DegradedResult(cap.EventID, err)
	}

	logger.Debug().
		Str(log.FieldOldState, string(StateClassify)).
		Str(log.FieldNewState, string(StateDelivering)).
		Msg("delivering")

	report := p.fanout.Deliver(flowCtx, cap, result)
	for _, derr := range report.Errors {
		logger.Warn().Err(derr).Msg("delivery sink failed")
	}

	logger.Debug().
		Str(log.FieldOldState, string(StateDelivering)).
		Str(log.FieldNewState, string(StateIdle)).
		Msg("event finished")
}

// Drain waits for in-flight events to finish, up to the configured
// drain timeout, and reports whether everything completed.
func (p *Pipeline) Drain() bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(p.cfg.DrainTimeout):
		logger := log.WithComponent("pipeline")
		logger.Warn().
			Dur("timeout", p.cfg.DrainTimeout).
			Msg("shutdown drain deadline reached with events still in flight")
		return false
	}
}
