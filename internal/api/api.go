// Package api defines the data shapes exchanged across the control
// surface boundary (spec.md §6). The HTTP/WebSocket transport itself is
// out of scope; these are plain structs a future handler marshals.
package api

import (
	"time"

	"github.com/flowforge/autoflow/internal/model"
)

// JobSubmission is the request body for "submit job".
type JobSubmission struct {
	RecorderJSON model.RecordingTranscript `json:"recorderJSON"`
	Options      *JobSubmissionOptions     `json:"options,omitempty"`
}

// JobSubmissionOptions carries operator-facing, non-scheduling metadata.
type JobSubmissionOptions struct {
	Priority   int               `json:"priority,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	TargetURL  string            `json:"targetUrl,omitempty"`
}

// JobSubmissionResult is the response to "submit job".
type JobSubmissionResult struct {
	JobID              string        `json:"jobId"`
	Status             model.JobStatus `json:"status"`
	EstimatedDuration  time.Duration `json:"estimatedDuration,omitempty"`
}

// JobStatus is the response to "get job".
type JobStatus struct {
	JobID    string                   `json:"jobId"`
	Status   model.JobStatus          `json:"status"`
	Progress *float64                 `json:"progress,omitempty"`
	Result   *model.ExecutionResult   `json:"result,omitempty"`
	Logs     []model.LogLine          `json:"logs,omitempty"`
}

// ArtifactList is the response to "get artifacts".
type ArtifactList struct {
	JobID       string   `json:"jobId"`
	Screenshots []string `json:"screenshots"`
}

// StreamError is the JSON error event shape sent over the screenshot
// stream before it closes (spec.md §6 close codes 1008/1011).
type StreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Stream close codes, named for readability at call sites that would
// otherwise pass a bare WebSocket status code.
const (
	StreamCloseSessionNotFound = 1008
	StreamCloseStartupFailure  = 1011
)

// FromJob projects a model.Job onto the wire-level JobStatus shape.
func FromJob(job model.Job) JobStatus {
	return JobStatus{
		JobID:  job.ID,
		Status: job.Status,
		Result: job.Result,
		Logs:   job.Logs,
	}
}

// NewSubmission builds a JobSubmission from a raw transcript and options.
func NewSubmission(recording model.RecordingTranscript, opts *JobSubmissionOptions) JobSubmission {
	return JobSubmission{RecorderJSON: recording, Options: opts}
}
