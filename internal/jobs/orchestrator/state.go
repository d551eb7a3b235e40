package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
)

// JobSpec is one submitted job. Payload is the script body or reference the
// job was submitted with; a job missing either field is skipped.
type JobSpec struct {
	JobID       string `json:"job_id" validate:"required"`
	JobName     string `json:"job_name"`
	IsScheduled bool   `json:"is_scheduled"`
	Payload     string `json:"payload" validate:"required"`
}

func (j JobSpec) Input() batch.JobInput {
	return batch.JobInput{JobID: j.JobID, JobName: j.JobName, IsScheduled: j.IsScheduled}
}

func Inputs(jobs []JobSpec) []batch.JobInput {
	out := make([]batch.JobInput, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Input())
	}
	return out
}

// ExecutionResult is what a JobExecutor reports for one job. StatusType is
// only consulted on success; batch.JobStatusAttentionNeeded flags a result a
// human should look at.
type ExecutionResult struct {
	Success    bool
	StatusType batch.JobStatus
	Message    string
	Findings   string
	ResultRef  string
}

// JobExecutor runs one job to completion. Timeouts are its own concern.
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) (ExecutionResult, error)
}

// StateTracker is the subset of the batch state tracker the orchestrator reports into.
type StateTracker interface {
	UpdateJobStatus(ctx context.Context, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, batch.Provenance, error)
	Complete(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error)
}

// Summary counts how a batch run ended. AttentionNeeded jobs are not counted
// in Success; NotStarted jobs were left pending by cancellation or a fatal error.
type Summary struct {
	Total           int `json:"total"`
	Success         int `json:"success"`
	Failed          int `json:"failed"`
	AttentionNeeded int `json:"attention_needed"`
	Skipped         int `json:"skipped"`
	NotStarted      int `json:"not_started"`
}

func (s Summary) processed() int {
	return s.Success + s.Failed + s.AttentionNeeded + s.Skipped
}

// ValidationError marks a malformed job entry.
type ValidationError struct {
	JobID string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job %q: %v", e.JobID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExecutionError is a job executor failure, recorded as the job's message.
type ExecutionError struct {
	JobID string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// FatalError is an unexpected failure of the driving loop itself.
type FatalError struct {
	BatchID string
	Val     any
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("batch %s aborted: %v", e.BatchID, e.Val)
}

func (e *FatalError) Unwrap() error {
	if err, ok := e.Val.(error); ok {
		return err
	}
	return nil
}

var errExecutorFailed = errors.New("executor reported failure")
