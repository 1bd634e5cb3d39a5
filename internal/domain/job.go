package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// JobMode enumerates supported generation job categories.
type JobMode string

const (
	JobModeGenerate JobMode = "generate"
	JobModeIterate  JobMode = "iterate"
)

// JobStatus enumerates job lifecycle states. Transitions only move forward:
// queued -> processing -> done|error. Cancelled is reachable from queued only.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job encapsulates one queued unit of asynchronous generation work.
// Input and Output are opaque to the core: Input is validated for shape at
// admission and Output is validated against the design-output schema by the
// worker, but neither is interpreted beyond that.
type Job struct {
	ID           string
	Mode         JobMode
	Input        json.RawMessage
	Status       JobStatus
	Output       json.RawMessage
	ErrorMessage string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidMode reports whether m names a supported job mode.
func ValidMode(m JobMode) bool {
	return m == JobModeGenerate || m == JobModeIterate
}

func requiredInputFields(mode JobMode) []string {
	switch mode {
	case JobModeGenerate:
		return []string{"prompt", "design_system"}
	case JobModeIterate:
		return []string{"prompt", "design_system", "image", "current_design"}
	default:
		return nil
	}
}

// ValidateJobInput checks that input carries the fields required by mode.
// It returns a *ValidationError listing every missing field so the caller can
// surface all of them in one response.
func ValidateJobInput(mode JobMode, input json.RawMessage) error {
	if len(bytes.TrimSpace(input)) == 0 {
		return &ValidationError{MissingFields: []string{"input"}}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return &ValidationError{Message: "input must be a JSON object"}
	}
	var missing []string
	for _, name := range requiredInputFields(mode) {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}
	return nil
}
