// SPDX-License-Identifier: MIT

// Package sensor produces the raw inputs the pipeline observes: a
// continuous stream of fixed-size audio frames, single still images, or
// a remotely polled trigger flag.
package sensor

import (
	"context"
	"errors"
	"time"
)

// ErrSourceFailed marks a sensor stream as unusable after bounded
// reconnection attempts. It is the only sensor error that may terminate
// the process.
var ErrSourceFailed = errors.New("sensor: source failed")

// Frame is one timestamped, fixed-size block of PCM samples. Immutable
// once produced.
type Frame struct {
	CapturedAt time.Time
	Samples    []int16
}

// Source yields sensor frames in order, blocking until the next one is
// available. Implementations never drop frames between calls.
type Source interface {
	// NextFrame blocks until the next frame is available. A returned
	// error wrapping ErrSourceFailed means the stream is unusable.
	NextFrame(ctx context.Context) (Frame, error)
	Close() error
}

// TriggerSignal is the result of one remote trigger poll. Active reports
// whether the external flag requests a capture.
type TriggerSignal struct {
	PolledAt time.Time
	Active   bool
}

// TriggerPoller polls an external flag at a fixed cadence.
type TriggerPoller interface {
	// Poll blocks until the next poll slot, then reports the flag state.
	// Poll failures map to an inactive signal, never an error: the
	// remote feed is untrusted input.
	Poll(ctx context.Context) (TriggerSignal, error)
}
