// SPDX-License-Identifier: MIT

// Package detect decides when a capture cycle starts: it evaluates
// incoming frames or poll signals against configured thresholds and
// enforces the debounce gap between accepted triggers.
package detect

import (
	"fmt"
	"sync"
	"time"
)

// TriggerReason states which predicate fired the event.
type TriggerReason string

const (
	ReasonPeakThreshold TriggerReason = "peak_threshold"
	ReasonRMSThreshold  TriggerReason = "rms_threshold"
	ReasonExternalFlag  TriggerReason = "external_flag"
)

// EventID identifies one trigger event. It is the event's unix second,
// with a "-<n>" suffix when multiple events share a second, and doubles
// as the idempotency key for every delivery sink.
type EventID string

// TriggerEvent is emitted once per accepted trigger. Immutable.
type TriggerEvent struct {
	ID         EventID
	Reason     TriggerReason
	DetectedAt time.Time
}

// idSource mints monotonically non-decreasing event IDs. Same-second
// collisions are disambiguated with a sequence suffix instead of being
// overwritten.
type idSource struct {
	mu      sync.Mutex
	lastSec int64
	seq     int
}

func (s *idSource) next(at time.Time) EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := at.Unix()
	if sec < s.lastSec {
		// Clock went backwards; stay on the last second so IDs keep
		// their ordering guarantee.
		sec = s.lastSec
	}
	if sec == s.lastSec {
		s.seq++
		return EventID(fmt.Sprintf("%d-%d", sec, s.seq+1))
	}
	s.lastSec = sec
	s.seq = 0
	return EventID(fmt.Sprintf("%d", sec))
}
