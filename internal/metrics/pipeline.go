// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sensor metrics
	framesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earshot_frames_read_total",
		Help: "Total number of sensor frames read",
	})

	triggerPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earshot_trigger_polls_total",
		Help: "Remote trigger polls by outcome",
	}, []string{"outcome"}) // outcome=active|inactive

	// Detector metrics
	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earshot_triggers_total",
		Help: "Accepted trigger events by reason",
	}, []string{"reason"}) // reason=peak_threshold|rms_threshold|external_flag

	triggersSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "earshot_triggers_suppressed_total",
		Help: "Triggers discarded inside the cooldown window",
	})

	// Capture metrics
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earshot_captures_total",
		Help: "Capture attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	// Classification metrics
	classifyAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earshot_classify_attempts_total",
		Help: "Classification attempts by outcome",
	}, []string{"outcome"}) // outcome=success|transient|permanent

	classifyDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "earshot_classify_duration_seconds",
		Help:    "Total wall-clock time of one classification including retries",
		Buckets: prometheus.DefBuckets,
	})

	// Delivery metrics
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "earshot_deliveries_total",
		Help: "Delivery attempts per sink by outcome",
	}, []string{"sink", "outcome"}) // sink=object_store|record_store|notifier

	// Pipeline metrics
	eventsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "earshot_events_in_flight",
		Help: "Trigger events currently between capture and delivery",
	})
)

func IncFrameRead()               { framesReadTotal.Inc() }
func IncTriggerPoll(active bool)  { triggerPollsTotal.WithLabelValues(pollOutcome(active)).Inc() }
func IncTrigger(reason string)    { triggersTotal.WithLabelValues(reason).Inc() }
func IncTriggerSuppressed()       { triggersSuppressedTotal.Inc() }
func IncCapture(outcome string)   { capturesTotal.WithLabelValues(outcome).Inc() }
func IncClassifyAttempt(o string) { classifyAttemptsTotal.WithLabelValues(o).Inc() }

func ObserveClassifyDuration(seconds float64) { classifyDurationSeconds.Observe(seconds) }

func IncDelivery(sink, outcome string) { deliveriesTotal.WithLabelValues(sink, outcome).Inc() }

func EventStarted()  { eventsInFlight.Inc() }
func EventFinished() { eventsInFlight.Dec() }

func pollOutcome(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
