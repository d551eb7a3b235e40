package batch

import (
	"fmt"
	"strings"
)

// JobStatus is the lifecycle state of one job inside a batch.
type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusRunning         JobStatus = "running"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
	JobStatusAttentionNeeded JobStatus = "attention_needed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusAttentionNeeded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusAttentionNeeded:
		return true
	case JobStatusPending, JobStatusRunning:
		return false
	}
	return false
}

// Rank orders statuses along the lifecycle: pending 0, running 1, terminal 2.
func (s JobStatus) Rank() int {
	switch {
	case s == JobStatusRunning:
		return 1
	case s.IsTerminal():
		return 2
	}
	return 0
}

// CanTransition reports whether from -> to is a legal job transition.
// pending -> running, running -> {completed, failed, attention_needed}.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to.IsTerminal()
	case JobStatusCompleted, JobStatusFailed, JobStatusAttentionNeeded:
		return false
	}
	return false
}

// ParseJobStatus converts external input into a JobStatus, rejecting unknown values.
func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Provenance tags which store answered a request.
type Provenance string

const (
	ProvenancePrimary  Provenance = "primary"
	ProvenanceFallback Provenance = "fallback"
)
