package domain

import (
	"maps"
	"time"
)

// JobKind enumerates the operations a job can run.
type JobKind string

const (
	JobKindDownload JobKind = "download"
	JobKindConvert  JobKind = "convert"
	JobKindQR       JobKind = "qr"
	JobKindHash     JobKind = "hash"
	JobKindPalette  JobKind = "palette"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job in status s may move to next.
// Staying in the same non-terminal state is allowed so progress can be refreshed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobStatusPending:
		return next.Valid()
	case JobStatusProcessing:
		return next != JobStatusPending && next.Valid()
	}
	return false
}

// Job is one unit of background work as seen by pollers.
type Job struct {
	ID        string         `json:"id"`
	Kind      JobKind        `json:"kind"`
	Status    JobStatus      `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Owner     string         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	if j.Metadata != nil {
		j.Metadata = maps.Clone(j.Metadata)
	}
	return j
}

// JobUpdate is a partial update. Nil fields are left untouched and Metadata
// keys are merged into the existing map.
type JobUpdate struct {
	Status   *JobStatus
	Progress *int
	Message  *string
	Result   *string
	Error    *string
	Metadata map[string]any
}

// JobStats aggregates registry contents for the admin endpoint.
type JobStats struct {
	Pending      int   `json:"pending"`
	Processing   int   `json:"processing"`
	Completed    int   `json:"completed"`
	Failed       int   `json:"failed"`
	TotalTracked int   `json:"total_tracked"`
	TotalCreated int64 `json:"total_created"`
}

// Ptr returns a pointer to v. It keeps JobUpdate literals short.
func Ptr[T any](v T) *T {
	return &v
}
