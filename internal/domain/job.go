package domain

import "time"

// JobKind enumerates the categories of externally executed work.
type JobKind string

const (
	JobKindGeneration JobKind = "generation"
	JobKindEdit       JobKind = "edit"
	JobKindTraining   JobKind = "training"
)

// ValidKind reports whether k is a kind this service accepts.
func ValidKind(k JobKind) bool {
	switch k {
	case JobKindGeneration, JobKindEdit, JobKindTraining:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether s is an absorbing state. A terminal job accepts
// no further mutation; redeliveries of the same terminal event are no-ops.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Job is the authoritative record of one unit of externally executed work.
// ExternalID is the provider-assigned correlation id, set exactly once at
// submission, before any webhook can reference it.
type Job struct {
	ID            string
	ExternalID    string
	UserID        string
	Kind          JobKind
	Status        JobStatus
	Outputs       []string
	ErrorMessage  string
	ResourceCost  int
	CompensatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// DebitFor returns the ledger debit applied when admitting a job of the
// given kind. Generation and edit jobs consume credits, training jobs
// consume model slots; both pools charge one unit per job.
func DebitFor(kind JobKind) int {
	return 1
}
