package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/scriptrunner-backend/internal/data/batchstate"
	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/pkg/pointers"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type trackerCall struct {
	JobID  string
	Status batch.JobStatus
	Upd    batch.JobUpdate
}

type fakeTracker struct {
	mu        sync.Mutex
	calls     []trackerCall
	completed int
	failFor   map[string]bool
	staleFor  map[string]bool
	panicOn   string
}

func (f *fakeTracker) UpdateJobStatus(_ context.Context, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, batch.Provenance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == jobID {
		panic("tracker exploded")
	}
	f.calls = append(f.calls, trackerCall{JobID: jobID, Status: status, Upd: upd})
	if f.failFor[jobID+":"+string(status)] {
		return nil, "", batch.ErrStoreUnavailable
	}
	if f.staleFor[jobID+":"+string(status)] {
		delete(f.staleFor, jobID+":"+string(status))
		return &batch.BatchExecution{
			BatchID: batchID,
			Jobs:    []batch.JobRecord{{JobID: jobID, Status: batch.JobStatusPending}},
		}, batch.ProvenancePrimary, nil
	}
	return &batch.BatchExecution{
		BatchID: batchID,
		Jobs:    []batch.JobRecord{{JobID: jobID, Status: status}},
	}, batch.ProvenancePrimary, nil
}

func (f *fakeTracker) Complete(_ context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
	return &batch.BatchExecution{BatchID: batchID}, batch.ProvenancePrimary, nil
}

func (f *fakeTracker) statuses(jobID string) []batch.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []batch.JobStatus
	for _, c := range f.calls {
		if c.JobID == jobID {
			out = append(out, c.Status)
		}
	}
	return out
}

type scriptedExecutor struct {
	mu      sync.Mutex
	order   []string
	results map[string]ExecutionResult
	errs    map[string]error
	panics  map[string]bool
	onRun   func(jobID string)
}

func (e *scriptedExecutor) Execute(_ context.Context, jobID string) (ExecutionResult, error) {
	e.mu.Lock()
	e.order = append(e.order, jobID)
	hook := e.onRun
	e.mu.Unlock()
	if hook != nil {
		hook(jobID)
	}
	if e.panics[jobID] {
		panic("executor exploded")
	}
	if err := e.errs[jobID]; err != nil {
		return ExecutionResult{}, err
	}
	if res, ok := e.results[jobID]; ok {
		return res, nil
	}
	return ExecutionResult{Success: true}, nil
}

func specs(ids ...string) []JobSpec {
	out := make([]JobSpec, 0, len(ids))
	for _, id := range ids {
		out = append(out, JobSpec{JobID: id, JobName: "job " + id, Payload: "select 1"})
	}
	return out
}

func newTestOrchestrator(tr StateTracker, ex JobExecutor) *Orchestrator {
	return New(tr, ex, logger.Nop(), Options{Throttle: -1})
}

func TestRunMapsOutcomes(t *testing.T) {
	tr := &fakeTracker{}
	ex := &scriptedExecutor{
		results: map[string]ExecutionResult{
			"ok":     {Success: true, Message: "done", ResultRef: "r1"},
			"attn":   {Success: true, StatusType: batch.JobStatusAttentionNeeded, Findings: "3 rows"},
			"refuse": {Success: false, Message: "permission denied"},
		},
		errs: map[string]error{"boom": errors.New("connection reset")},
	}
	o := newTestOrchestrator(tr, ex)

	summary, err := o.Run(context.Background(), "b1", specs("ok", "attn", "refuse", "boom"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := Summary{Total: 4, Success: 1, AttentionNeeded: 1, Failed: 2}
	if summary != want {
		t.Fatalf("summary: got=%+v want=%+v", summary, want)
	}
	if tr.completed != 1 {
		t.Fatalf("expected one Complete call, got %d", tr.completed)
	}

	expect := map[string]batch.JobStatus{
		"ok":     batch.JobStatusCompleted,
		"attn":   batch.JobStatusAttentionNeeded,
		"refuse": batch.JobStatusFailed,
		"boom":   batch.JobStatusFailed,
	}
	for id, terminal := range expect {
		got := tr.statuses(id)
		if len(got) != 2 || got[0] != batch.JobStatusRunning || got[1] != terminal {
			t.Fatalf("%s: unexpected transitions %v", id, got)
		}
	}

	for _, c := range tr.calls {
		switch {
		case c.JobID == "boom" && c.Status == batch.JobStatusFailed:
			if pointers.StringOrEmpty(c.Upd.Message) != "connection reset" {
				t.Fatalf("error text not captured: %+v", c.Upd)
			}
		case c.JobID == "refuse" && c.Status == batch.JobStatusFailed:
			if pointers.StringOrEmpty(c.Upd.Message) != "permission denied" {
				t.Fatalf("failure message not captured: %+v", c.Upd)
			}
		case c.JobID == "attn" && c.Status == batch.JobStatusAttentionNeeded:
			if pointers.StringOrEmpty(c.Upd.Findings) != "3 rows" {
				t.Fatalf("findings not captured: %+v", c.Upd)
			}
		case c.JobID == "ok" && c.Status == batch.JobStatusCompleted:
			if pointers.StringOrEmpty(c.Upd.ResultRef) != "r1" {
				t.Fatalf("result ref not captured: %+v", c.Upd)
			}
		}
	}
}

func TestRunIsSequentialInSubmissionOrder(t *testing.T) {
	tr := &fakeTracker{}
	var inflight, maxInflight int
	var mu sync.Mutex
	ex := &scriptedExecutor{onRun: func(string) {
		mu.Lock()
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
	}}
	o := newTestOrchestrator(tr, ex)

	if _, err := o.Run(context.Background(), "b1", specs("a", "b", "c", "d")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxInflight != 1 {
		t.Fatalf("jobs overlapped: max in flight %d", maxInflight)
	}
	got := ex.order
	if len(got) != 4 || got[0] != "a" || got[1] != "b" || got[2] != "c" || got[3] != "d" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestRunSkipsMalformedJobs(t *testing.T) {
	tr := &fakeTracker{}
	ex := &scriptedExecutor{}
	o := newTestOrchestrator(tr, ex)

	jobs := []JobSpec{
		{JobID: "good", Payload: "select 1"},
		{JobID: "", Payload: "select 1"},
		{JobID: "no-payload", Payload: "   "},
		{JobID: "also-good", Payload: "select 2"},
	}
	summary, err := o.Run(context.Background(), "b1", jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 2 || summary.Success != 2 || summary.NotStarted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := tr.statuses("no-payload"); len(got) != 0 {
		t.Fatalf("malformed job was transitioned: %v", got)
	}
	if len(ex.order) != 2 {
		t.Fatalf("malformed jobs executed: %v", ex.order)
	}
}

func TestRunToleratesTrackingFailures(t *testing.T) {
	tr := &fakeTracker{failFor: map[string]bool{
		"a:" + string(batch.JobStatusRunning):   true,
		"b:" + string(batch.JobStatusCompleted): true,
	}}
	ex := &scriptedExecutor{}
	o := newTestOrchestrator(tr, ex)

	summary, err := o.Run(context.Background(), "b1", specs("a", "b", "c"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Success != 3 || len(ex.order) != 3 {
		t.Fatalf("tracking failure blocked execution: %+v order=%v", summary, ex.order)
	}
	// A failed running mark is retried before the terminal update.
	got := tr.statuses("a")
	if len(got) != 3 || got[0] != batch.JobStatusRunning || got[1] != batch.JobStatusRunning || got[2] != batch.JobStatusCompleted {
		t.Fatalf("unexpected transitions for a: %v", got)
	}
}

func TestRunRetriesRunningMarkTheTrackerDidNotApply(t *testing.T) {
	tr := &fakeTracker{staleFor: map[string]bool{"a:" + string(batch.JobStatusRunning): true}}
	ex := &scriptedExecutor{}

	summary, err := newTestOrchestrator(tr, ex).Run(context.Background(), "b1", specs("a"))
	if err != nil || summary.Success != 1 {
		t.Fatalf("Run: summary=%+v err=%v", summary, err)
	}
	got := tr.statuses("a")
	if len(got) != 3 || got[1] != batch.JobStatusRunning || got[2] != batch.JobStatusCompleted {
		t.Fatalf("unexpected transitions for a: %v", got)
	}
}

func TestRunRecoversExecutorPanicAsFailure(t *testing.T) {
	tr := &fakeTracker{}
	ex := &scriptedExecutor{panics: map[string]bool{"a": true}}
	o := newTestOrchestrator(tr, ex)

	summary, err := o.Run(context.Background(), "b1", specs("a", "b"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Success != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunCompletesBatchOnFatalError(t *testing.T) {
	tr := &fakeTracker{panicOn: "b"}
	ex := &scriptedExecutor{}
	o := newTestOrchestrator(tr, ex)

	summary, err := o.Run(context.Background(), "b1", specs("a", "b", "c"))
	var fatal *FatalError
	if !errors.As(err, &fatal) || fatal.BatchID != "b1" {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if tr.completed != 1 {
		t.Fatalf("batch not completed after fatal error")
	}
	if summary.Success != 1 || summary.NotStarted != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRunCancellationStopsFutureJobsOnly(t *testing.T) {
	tr := &fakeTracker{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := &scriptedExecutor{onRun: func(id string) {
		if id == "a" {
			cancel()
		}
	}}
	o := New(tr, ex, logger.Nop(), Options{Throttle: time.Hour})

	done := make(chan struct{})
	var summary Summary
	var err error
	go func() {
		summary, err = o.Run(ctx, "b1", specs("a", "b", "c"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("throttle ignored cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Success != 1 || summary.NotStarted != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	// The job in flight when cancel fired still reached a terminal state.
	if got := tr.statuses("a"); len(got) != 2 || got[1] != batch.JobStatusCompleted {
		t.Fatalf("in-flight job not finished: %v", got)
	}
	if got := tr.statuses("b"); len(got) != 0 {
		t.Fatalf("job started after cancel: %v", got)
	}
	if tr.completed != 1 {
		t.Fatalf("cancelled batch not completed")
	}
}

func TestRunThrottlesBetweenJobs(t *testing.T) {
	tr := &fakeTracker{}
	ex := &scriptedExecutor{}
	o := New(tr, ex, logger.Nop(), Options{Throttle: 20 * time.Millisecond})

	start := time.Now()
	if _, err := o.Run(context.Background(), "b1", specs("a", "b", "c")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected two throttle pauses, elapsed %v", elapsed)
	}
}

func TestRunAgainstRedisTracker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	tracker := batchstate.NewTracker(
		batchstate.NewRedisStore(rdb, logger.Nop(), batchstate.RedisOptions{}),
		batchstate.NewFallbackStore(),
		logger.Nop(),
	)
	ctx := context.Background()
	jobs := specs("J1", "J2", "J3")
	if _, _, err := tracker.Create(ctx, "b1", Inputs(jobs)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ex := &scriptedExecutor{
		results: map[string]ExecutionResult{"J3": {Success: true, StatusType: batch.JobStatusAttentionNeeded, Findings: "1 row"}},
		errs:    map[string]error{"J2": errors.New("syntax error")},
	}
	summary, err := newTestOrchestrator(tracker, ex).Run(ctx, "b1", jobs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Success != 1 || summary.Failed != 1 || summary.AttentionNeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	doc, prov, err := tracker.Get(ctx, "b1")
	if err != nil || prov != batch.ProvenancePrimary {
		t.Fatalf("Get: prov=%s err=%v", prov, err)
	}
	if doc.IsActive || doc.CompletedAt == nil || doc.TotalJobs != 3 {
		t.Fatalf("batch not closed: %+v", doc)
	}
	want := []batch.JobStatus{batch.JobStatusCompleted, batch.JobStatusFailed, batch.JobStatusAttentionNeeded}
	for i, j := range doc.Jobs {
		if j.Status != want[i] || j.StartTime == nil || j.EndTime == nil {
			t.Fatalf("job %s: %+v", j.JobID, j)
		}
	}
	if pointers.StringOrEmpty(doc.Jobs[1].Message) != "syntax error" {
		t.Fatalf("failure message missing: %+v", doc.Jobs[1])
	}
}

// flakyPrimary fails the listed UpdateJobStatus calls, counted from 1, and
// passes everything else through to the wrapped store.
type flakyPrimary struct {
	batchstate.PrimaryStore
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (f *flakyPrimary) UpdateJobStatus(ctx context.Context, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failOn[f.calls]
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: connection reset", batch.ErrStoreUnavailable)
	}
	return f.PrimaryStore.UpdateJobStatus(ctx, batchID, jobID, status, upd)
}

func TestRunSurvivesOneTransientPrimaryFailure(t *testing.T) {
	cases := []struct {
		name   string
		failOn int
	}{
		{name: "first running mark", failOn: 1},
		{name: "first terminal mark", failOn: 2},
		{name: "last terminal mark", failOn: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			store := batchstate.NewRedisStore(rdb, logger.Nop(), batchstate.RedisOptions{})
			tracker := batchstate.NewTracker(
				&flakyPrimary{PrimaryStore: store, failOn: map[int]bool{tc.failOn: true}},
				batchstate.NewFallbackStore(),
				logger.Nop(),
			)
			ctx := context.Background()
			jobs := specs("J1", "J2")
			if _, _, err := tracker.Create(ctx, "b1", Inputs(jobs)); err != nil {
				t.Fatalf("Create: %v", err)
			}

			ex := &scriptedExecutor{results: map[string]ExecutionResult{
				"J1": {Success: true, Message: "j1 done", ResultRef: "r1"},
				"J2": {Success: true, Message: "j2 done", ResultRef: "r2"},
			}}
			summary, err := newTestOrchestrator(tracker, ex).Run(ctx, "b1", jobs)
			if err != nil || summary.Success != 2 {
				t.Fatalf("Run: summary=%+v err=%v", summary, err)
			}

			doc, err := store.Get(ctx, "b1")
			if err != nil {
				t.Fatalf("primary Get: %v", err)
			}
			if doc.IsActive || doc.CompletedAt == nil {
				t.Fatalf("primary batch not closed: %+v", doc)
			}
			for i, j := range doc.Jobs {
				ref := fmt.Sprintf("r%d", i+1)
				if j.Status != batch.JobStatusCompleted || j.StartTime == nil || j.EndTime == nil || pointers.StringOrEmpty(j.ResultRef) != ref {
					t.Fatalf("primary lost outcome of %s: %+v", j.JobID, j)
				}
			}
			if ids, err := store.ListActive(ctx); err != nil || len(ids) != 0 {
				t.Fatalf("active index: ids=%v err=%v", ids, err)
			}
		})
	}
}
