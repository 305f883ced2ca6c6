// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldEventID   = "event_id"

	// Process / pipeline fields
	FieldComponent = "component"
	FieldReason    = "reason"
	FieldAttempt   = "attempt"
	FieldSink      = "sink"

	// Sensor fields
	FieldDevice     = "device"
	FieldPeak       = "peak"
	FieldRMS        = "rms"
	FieldFrames     = "frames"
	FieldSampleRate = "sample_rate"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath        = "path"
	FieldArtifactURL = "artifact_url"
)
