// SPDX-License-Identifier: MIT

package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for tests. Sleep returns immediately
// after advancing the fake time, so backoff schedules can be exercised
// without real delays.
type Fake struct {
	mu  sync.Mutex
	now time.Time

	// Slept records every Sleep duration in call order.
	Slept []time.Duration
}

// NewFake returns a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.Slept = append(f.Slept, d)
	return nil
}
