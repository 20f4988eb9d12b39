// Package history records the outcome of each resource run so operators
// can see what was ingested, when, and why a run failed.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/datastorer/internal/core"
)

// DefaultLimit is the number of runs Recent returns when limit <= 0.
const DefaultLimit = 50

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one finished resource ingestion.
type Run struct {
	ID           string    `json:"id"`
	ResourceID   string    `json:"resourceId"`
	ResourceName string    `json:"resourceName,omitempty"`
	Status       Status    `json:"status"`
	Records      int       `json:"records"`
	Batches      int       `json:"batches"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder stores runs. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// FromOutcome builds a Run from a pipeline result. result may be nil when
// the run failed before producing one. Records counts what was committed,
// including the batches before a failed upload.
func FromOutcome(res core.Resource, result *core.Result, err error, started, finished time.Time) Run {
	run := Run{
		ResourceID:   res.ID,
		ResourceName: res.Name,
		Status:       StatusSucceeded,
		StartedAt:    started,
		FinishedAt:   finished,
	}
	if result != nil {
		run.ID = result.RunID
		run.Records = result.Records
		run.Batches = result.Batches
	}
	if err != nil {
		run.Status = StatusFailed
		run.ErrorCode = core.MapError(err).Code
		run.Error = err.Error()

		var uploadErr *core.UploadError
		if errors.As(err, &uploadErr) {
			run.Records = uploadErr.Committed
		}
	}
	return run
}
