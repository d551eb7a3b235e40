package batch

import (
	"time"

	"github.com/yungbote/scriptrunner-backend/internal/pkg/pointers"
)

// JobInput is what a caller supplies per job when a batch is created.
type JobInput struct {
	JobID       string `json:"job_id"`
	JobName     string `json:"job_name"`
	IsScheduled bool   `json:"is_scheduled"`
}

// JobRecord tracks one job inside a BatchExecution document.
type JobRecord struct {
	JobID       string     `json:"job_id"`
	JobName     string     `json:"job_name"`
	IsScheduled bool       `json:"is_scheduled"`
	Status      JobStatus  `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Message     *string    `json:"message,omitempty"`
	Findings    *string    `json:"findings,omitempty"`
	ResultRef   *string    `json:"result_ref,omitempty"`
}

// BatchExecution is the authoritative per-batch document.
// TotalJobs always equals len(Jobs); CompletedAt is written at most once.
type BatchExecution struct {
	BatchID     string      `json:"batch_id"`
	Jobs        []JobRecord `json:"jobs"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	TotalJobs   int         `json:"total_jobs"`
	IsActive    bool        `json:"is_active"`
}

// JobUpdate carries the optional fields attached to a status update.
// Nil pointers leave the stored value untouched.
type JobUpdate struct {
	Message   *string `json:"message,omitempty"`
	Findings  *string `json:"findings,omitempty"`
	ResultRef *string `json:"result_ref,omitempty"`
}

// Stats summarises a store's contents.
type Stats struct {
	ActiveCount    int        `json:"active_count"`
	TotalDocuments int        `json:"total_documents"`
	Provenance     Provenance `json:"provenance"`
}

func NewBatchExecution(batchID string, jobs []JobInput, now time.Time) *BatchExecution {
	records := make([]JobRecord, 0, len(jobs))
	for _, j := range jobs {
		records = append(records, JobRecord{
			JobID:       j.JobID,
			JobName:     j.JobName,
			IsScheduled: j.IsScheduled,
			Status:      JobStatusPending,
		})
	}
	return &BatchExecution{
		BatchID:   batchID,
		Jobs:      records,
		StartedAt: now.UTC(),
		TotalJobs: len(records),
		IsActive:  true,
	}
}

// FindJob returns the first job with the given ID.
func (b *BatchExecution) FindJob(jobID string) (*JobRecord, bool) {
	for i := range b.Jobs {
		if b.Jobs[i].JobID == jobID {
			return &b.Jobs[i], true
		}
	}
	return nil, false
}

func (b *BatchExecution) AllTerminal() bool {
	for i := range b.Jobs {
		if !b.Jobs[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// ApplyJobStatus moves the first job matching jobID to status, attaching any
// fields in upd, then closes the batch if every job is terminal. Unknown job
// IDs and illegal transitions leave the document unchanged and return false.
func (b *BatchExecution) ApplyJobStatus(jobID string, status JobStatus, upd JobUpdate, now time.Time) bool {
	job, ok := b.FindJob(jobID)
	if !ok || !CanTransition(job.Status, status) {
		return false
	}
	now = now.UTC()
	job.Status = status
	switch status {
	case JobStatusRunning:
		job.StartTime = pointers.Time(now)
	case JobStatusCompleted, JobStatusFailed, JobStatusAttentionNeeded:
		job.EndTime = pointers.Time(now)
	case JobStatusPending:
	}
	if upd.Message != nil {
		job.Message = pointers.String(*upd.Message)
	}
	if upd.Findings != nil {
		job.Findings = pointers.String(*upd.Findings)
	}
	if upd.ResultRef != nil {
		job.ResultRef = pointers.String(*upd.ResultRef)
	}
	if b.IsActive && b.AllTerminal() {
		b.close(now)
	}
	return true
}

// Progress orders snapshots of the same batch. Every legal transition and
// closing the batch move it strictly forward.
func (b *BatchExecution) Progress() int {
	n := 0
	for i := range b.Jobs {
		n += b.Jobs[i].Status.Rank()
	}
	if !b.IsActive {
		n++
	}
	return n
}

// ForceComplete marks the batch inactive regardless of job state.
func (b *BatchExecution) ForceComplete(now time.Time) {
	b.close(now.UTC())
}

func (b *BatchExecution) close(now time.Time) {
	b.IsActive = false
	if b.CompletedAt == nil {
		b.CompletedAt = pointers.Time(now)
	}
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (b *BatchExecution) Clone() *BatchExecution {
	if b == nil {
		return nil
	}
	out := *b
	out.CompletedAt = pointers.Clone(b.CompletedAt)
	out.Jobs = make([]JobRecord, len(b.Jobs))
	for i, j := range b.Jobs {
		j.StartTime = pointers.Clone(j.StartTime)
		j.EndTime = pointers.Clone(j.EndTime)
		j.Message = pointers.Clone(j.Message)
		j.Findings = pointers.Clone(j.Findings)
		j.ResultRef = pointers.Clone(j.ResultRef)
		out.Jobs[i] = j
	}
	return &out
}
