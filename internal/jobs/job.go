// Package jobs owns the render job lifecycle: an in-memory registry of job
// records and a fixed-size worker pool that executes renders.
package jobs

// Status is the lifecycle state of a render job. Transitions are one-way:
// queued -> processing -> completed or error.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job is the pollable record of one render request. Values returned from
// the manager are snapshots; callers never share memory with the registry.
type Job struct {
	ID         string  `json:"job_id"`
	Status     Status  `json:"status"`
	Progress   float64 `json:"progress"`
	Message    string  `json:"message,omitempty"`
	ResultPath string  `json:"-"`
}

// Update is a partial merge into a job record; nil fields are left
// untouched.
type Update struct {
	Status     *Status
	Progress   *float64
	Message    *string
	ResultPath *string
}

func statusPtr(s Status) *Status  { return &s }
func floatPtr(f float64) *float64 { return &f }
func stringPtr(s string) *string  { return &s }
