package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/yungbote/scriptrunner-backend/internal/pkg/pointers"
)

func threeJobs() []JobInput {
	return []JobInput{
		{JobID: "J1", JobName: "first"},
		{JobID: "J2", JobName: "second", IsScheduled: true},
		{JobID: "J3", JobName: "third"},
	}
}

func TestNewBatchExecution(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := NewBatchExecution("b1", threeJobs(), now)
	if !b.IsActive || b.TotalJobs != 3 || len(b.Jobs) != 3 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	if !b.StartedAt.Equal(now) || b.CompletedAt != nil {
		t.Fatalf("unexpected timestamps: started=%v completed=%v", b.StartedAt, b.CompletedAt)
	}
	for _, j := range b.Jobs {
		if j.Status != JobStatusPending {
			t.Fatalf("job %s: expected pending got %s", j.JobID, j.Status)
		}
	}
	if !b.Jobs[1].IsScheduled {
		t.Fatalf("is_scheduled not carried")
	}
}

func TestApplyJobStatusLifecycle(t *testing.T) {
	t0 := time.Now().UTC()
	b := NewBatchExecution("b1", threeJobs(), t0)

	if !b.ApplyJobStatus("J1", JobStatusRunning, JobUpdate{}, t0.Add(time.Second)) {
		t.Fatalf("pending->running rejected")
	}
	if !b.ApplyJobStatus("J1", JobStatusCompleted, JobUpdate{Message: pointers.String("ok")}, t0.Add(2*time.Second)) {
		t.Fatalf("running->completed rejected")
	}
	j1, _ := b.FindJob("J1")
	if j1.StartTime == nil || j1.EndTime == nil || pointers.StringOrEmpty(j1.Message) != "ok" {
		t.Fatalf("J1 fields not stamped: %+v", j1)
	}
	if !b.IsActive || b.CompletedAt != nil {
		t.Fatalf("batch closed early")
	}

	b.ApplyJobStatus("J2", JobStatusRunning, JobUpdate{}, t0)
	b.ApplyJobStatus("J2", JobStatusFailed, JobUpdate{Message: pointers.String("boom")}, t0)
	b.ApplyJobStatus("J3", JobStatusRunning, JobUpdate{}, t0)
	closedAt := t0.Add(10 * time.Second)
	b.ApplyJobStatus("J3", JobStatusAttentionNeeded, JobUpdate{Findings: pointers.String("2 rows")}, closedAt)

	if b.IsActive || b.CompletedAt == nil || !b.CompletedAt.Equal(closedAt) {
		t.Fatalf("batch not closed: active=%v completed=%v", b.IsActive, b.CompletedAt)
	}
	if !b.AllTerminal() {
		t.Fatalf("expected all terminal")
	}
}

func TestApplyJobStatusRejectsIllegalTransitions(t *testing.T) {
	now := time.Now()
	b := NewBatchExecution("b1", threeJobs(), now)

	if b.ApplyJobStatus("J1", JobStatusCompleted, JobUpdate{}, now) {
		t.Fatalf("pending->completed accepted")
	}
	b.ApplyJobStatus("J1", JobStatusRunning, JobUpdate{}, now)
	b.ApplyJobStatus("J1", JobStatusFailed, JobUpdate{}, now)
	for _, next := range []JobStatus{JobStatusRunning, JobStatusCompleted, JobStatusPending, JobStatusAttentionNeeded} {
		if b.ApplyJobStatus("J1", next, JobUpdate{Message: pointers.String("late")}, now) {
			t.Fatalf("terminal failed -> %s accepted", next)
		}
	}
	j1, _ := b.FindJob("J1")
	if j1.Status != JobStatusFailed || j1.Message != nil {
		t.Fatalf("terminal job mutated: %+v", j1)
	}
}

func TestApplyJobStatusUnknownJob(t *testing.T) {
	now := time.Now()
	b := NewBatchExecution("b1", threeJobs(), now)
	before := b.Clone()
	if b.ApplyJobStatus("nope", JobStatusRunning, JobUpdate{}, now) {
		t.Fatalf("unknown job accepted")
	}
	if len(b.Jobs) != len(before.Jobs) || b.TotalJobs != 3 {
		t.Fatalf("document changed on unknown job")
	}
}

func TestApplyJobStatusDuplicateIDsUpdatesFirst(t *testing.T) {
	now := time.Now()
	b := NewBatchExecution("b1", []JobInput{{JobID: "J"}, {JobID: "J"}}, now)
	b.ApplyJobStatus("J", JobStatusRunning, JobUpdate{}, now)
	if b.Jobs[0].Status != JobStatusRunning || b.Jobs[1].Status != JobStatusPending {
		t.Fatalf("expected only first match updated: %+v", b.Jobs)
	}
}

func TestForceCompleteIsMonotonic(t *testing.T) {
	t0 := time.Now().UTC()
	b := NewBatchExecution("b1", threeJobs(), t0)
	b.ForceComplete(t0.Add(time.Minute))
	first := *b.CompletedAt
	b.ForceComplete(t0.Add(time.Hour))
	if b.IsActive || !b.CompletedAt.Equal(first) {
		t.Fatalf("completed_at moved: %v -> %v", first, b.CompletedAt)
	}
	if b.Jobs[0].Status != JobStatusPending {
		t.Fatalf("force complete touched jobs")
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	b := NewBatchExecution("b1", threeJobs(), now)
	b.ApplyJobStatus("J1", JobStatusRunning, JobUpdate{Message: pointers.String("m")}, now)
	c := b.Clone()
	*c.Jobs[0].Message = "changed"
	c.Jobs[1].Status = JobStatusRunning
	if *b.Jobs[0].Message != "m" || b.Jobs[1].Status != JobStatusPending {
		t.Fatalf("clone shares state with original")
	}
}

func TestParseJobStatus(t *testing.T) {
	if s, err := ParseJobStatus(" Attention_Needed "); err != nil || s != JobStatusAttentionNeeded {
		t.Fatalf("ParseJobStatus: %v %v", s, err)
	}
	if _, err := ParseJobStatus("cancelled"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	all := []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusAttentionNeeded}
	legal := map[[2]JobStatus]bool{
		{JobStatusPending, JobStatusRunning}:         true,
		{JobStatusRunning, JobStatusCompleted}:       true,
		{JobStatusRunning, JobStatusFailed}:          true,
		{JobStatusRunning, JobStatusAttentionNeeded}: true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != legal[[2]JobStatus{from, to}] {
				t.Fatalf("CanTransition(%s,%s)=%v", from, to, got)
			}
		}
	}
}

func TestProgressMovesForwardOnEveryTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := NewBatchExecution("b1", threeJobs(), now)
	last := doc.Progress()
	step := func(jobID string, status JobStatus) {
		t.Helper()
		if !doc.ApplyJobStatus(jobID, status, JobUpdate{}, now) {
			t.Fatalf("%s -> %s rejected", jobID, status)
		}
		if p := doc.Progress(); p <= last {
			t.Fatalf("%s -> %s: progress %d did not advance past %d", jobID, status, p, last)
		}
		last = doc.Progress()
	}
	step("J1", JobStatusRunning)
	step("J1", JobStatusCompleted)
	step("J2", JobStatusRunning)
	step("J2", JobStatusFailed)
	step("J3", JobStatusRunning)
	step("J3", JobStatusAttentionNeeded)

	active := NewBatchExecution("b2", threeJobs(), now)
	before := active.Progress()
	active.ForceComplete(now)
	if active.Progress() <= before {
		t.Fatalf("closing the batch did not advance progress")
	}
}
