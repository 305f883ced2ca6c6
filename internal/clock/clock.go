// SPDX-License-Identifier: MIT

// Package clock abstracts wall-clock access so cooldown, warm-up and
// backoff logic can be tested without real delays.
package clock

import (
	"context"
	"time"
)

// Clock provides the time operations used by the pipeline.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	// It returns ctx.Err() when cancelled early.
	Sleep(ctx context.Context, d time.Duration) error
}

// System returns a Clock backed by the real time package.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
