// SPDX-License-Identifier: MIT

package detect

import (
	"math"
	"time"

	"github.com/khaas/earshot/internal/clock"
	"github.com/khaas/earshot/internal/sensor"
)

// Config holds the trigger predicate inputs. Thresholds are
// configuration, not behaviour.
type Config struct {
	PeakThreshold int     // absolute sample amplitude, e.g. 30000
	RMSThreshold  float64 // RMS energy over one frame, e.g. 7200
	MinGap        time.Duration
}

// Verdict reports what one evaluation saw. Suppressed means the
// predicate was satisfied but the debounce gap had not elapsed; such
// triggers are discarded, never queued.
type Verdict struct {
	Peak       int
	RMS        float64
	Fired      bool
	Suppressed bool
}

// ThresholdDetector fires when a frame's peak amplitude or RMS energy
// crosses its threshold, at most once per MinGap.
type ThresholdDetector struct {
	cfg Config
	clk clock.Clock

	ids           idSource
	lastTriggerAt time.Time
}

// NewThresholdDetector builds a detector over the given thresholds.
func NewThresholdDetector(cfg Config, clk clock.Clock) *ThresholdDetector {
	return &ThresholdDetector{cfg: cfg, clk: clk}
}

// Evaluate inspects one frame. It returns a TriggerEvent when the
// predicate fires outside the cooldown window, nil otherwise.
func (d *ThresholdDetector) Evaluate(f sensor.Frame) (*TriggerEvent, Verdict) {
	peak, rms := frameLevels(f.Samples)
	v := Verdict{Peak: peak, RMS: rms}

	hit := peak > d.cfg.PeakThreshold || rms > d.cfg.RMSThreshold
	if !hit {
		return nil, v
	}

	now := d.clk.Now()
	if !d.lastTriggerAt.IsZero() && now.Sub(d.lastTriggerAt) <= d.cfg.MinGap {
		v.Suppressed = true
		return nil, v
	}
	d.lastTriggerAt = now
	v.Fired = true

	reason := ReasonRMSThreshold
	if peak > d.cfg.PeakThreshold {
		reason = ReasonPeakThreshold
	}
	return &TriggerEvent{
		ID:         d.ids.next(now),
		Reason:     reason,
		DetectedAt: now,
	}, v
}

// FlagDetector fires when the polled external flag is active, at most
// once per MinGap.
type FlagDetector struct {
	minGap time.Duration
	clk    clock.Clock

	ids           idSource
	lastTriggerAt time.Time
}

// NewFlagDetector builds a detector over the poll variant's gap.
func NewFlagDetector(minGap time.Duration, clk clock.Clock) *FlagDetector {
	return &FlagDetector{minGap: minGap, clk: clk}
}

// Evaluate inspects one poll signal.
func (d *FlagDetector) Evaluate(sig sensor.TriggerSignal) (*TriggerEvent, Verdict) {
	var v Verdict
	if !sig.Active {
		return nil, v
	}
	now := d.clk.Now()
	if !d.lastTriggerAt.IsZero() && now.Sub(d.lastTriggerAt) <= d.minGap {
		v.Suppressed = true
		return nil, v
	}
	d.lastTriggerAt = now
	v.Fired = true
	return &TriggerEvent{
		ID:         d.ids.next(now),
		Reason:     ReasonExternalFlag,
		DetectedAt: now,
	}, v
}

// frameLevels computes peak amplitude and RMS energy over one frame.
func frameLevels(samples []int16) (int, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var peak int
	var sumSq float64
	for _, s := range samples {
		a := int(s)
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
		sumSq += float64(s) * float64(s)
	}
	return peak, math.Sqrt(sumSq / float64(len(samples)))
}
