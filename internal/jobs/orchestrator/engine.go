package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/pkg/pointers"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

const DefaultThrottle = time.Second

// -------------------- Public API --------------------

type Options struct {
	// Throttle is the pause between consecutive jobs. Zero means
	// DefaultThrottle; a negative value disables the pause.
	Throttle time.Duration
}

// Orchestrator drives one batch at a time through its jobs, strictly in
// submission order. It never aborts a batch because one job failed and it
// never lets a tracking failure block execution.
type Orchestrator struct {
	tracker  StateTracker
	executor JobExecutor
	log      *logger.Logger
	throttle time.Duration
	validate *validator.Validate
	tracer   trace.Tracer
}

func New(tracker StateTracker, executor JobExecutor, baseLog *logger.Logger, opts Options) *Orchestrator {
	throttle := opts.Throttle
	switch {
	case throttle == 0:
		throttle = DefaultThrottle
	case throttle < 0:
		throttle = 0
	}
	return &Orchestrator{
		tracker:  tracker,
		executor: executor,
		log:      baseLog.With("component", "BatchOrchestrator"),
		throttle: throttle,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer("github.com/yungbote/scriptrunner-backend/internal/jobs/orchestrator"),
	}
}

// Run executes jobs one by one and reports each transition into the tracker.
// Whatever happens inside the loop, the batch is completed before Run
// returns. A cancelled ctx stops jobs that have not started yet; the job in
// flight runs to completion.
func (o *Orchestrator) Run(ctx context.Context, batchID string, jobs []JobSpec) (summary Summary, err error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_batch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.jobs", len(jobs)),
	))
	defer span.End()

	log := o.log.With("batch_id", batchID)
	started := time.Now()
	summary.Total = len(jobs)
	log.Info("Batch run started", "jobs", len(jobs))

	defer func() {
		o.complete(ctx, log, batchID)
		summary.NotStarted = summary.Total - summary.processed()
		fields := []interface{}{
			"total", summary.Total,
			"success", summary.Success,
			"failed", summary.Failed,
			"attention_needed", summary.AttentionNeeded,
			"skipped", summary.Skipped,
			"not_started", summary.NotStarted,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("Batch run aborted", append(fields, "error", err)...)
			return
		}
		log.Info("Batch run finished", fields...)
	}()

	err = o.runJobs(ctx, log, batchID, jobs, &summary)
	return summary, err
}

// -------------------- loop --------------------

func (o *Orchestrator) runJobs(ctx context.Context, log *logger.Logger, batchID string, jobs []JobSpec, summary *Summary) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{BatchID: batchID, Val: r}
		}
	}()

	for i, job := range jobs {
		if cerr := ctx.Err(); cerr != nil {
			log.Warn("Batch cancelled, remaining jobs not started", "remaining", len(jobs)-i)
			return cerr
		}
		if verr := o.validateJob(job); verr != nil {
			summary.Skipped++
			log.Warn("Skipping malformed job", "job_index", i, "error", verr)
			continue
		}

		switch o.runJob(ctx, log, batchID, job) {
		case batch.JobStatusCompleted:
			summary.Success++
		case batch.JobStatusAttentionNeeded:
			summary.AttentionNeeded++
		case batch.JobStatusFailed:
			summary.Failed++
		case batch.JobStatusPending, batch.JobStatusRunning:
		}

		if i < len(jobs)-1 {
			o.pause(ctx)
		}
	}
	return nil
}

func (o *Orchestrator) runJob(ctx context.Context, log *logger.Logger, batchID string, job JobSpec) batch.JobStatus {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_job", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.String("job.id", job.JobID),
	))
	defer span.End()
	jlog := log.With("job_id", job.JobID)

	running := o.mark(ctx, jlog, batchID, job.JobID, batch.JobStatusRunning, batch.JobUpdate{})

	res, execErr := o.safeExecute(context.WithoutCancel(ctx), job.JobID)
	status, upd := outcome(res, execErr)
	switch status {
	case batch.JobStatusFailed:
		jlog.Warn("Job failed", "error", &ExecutionError{JobID: job.JobID, Err: failureCause(res, execErr)})
		span.SetStatus(codes.Error, pointers.StringOrEmpty(upd.Message))
	case batch.JobStatusAttentionNeeded:
		jlog.Info("Job needs attention", "findings", res.Findings)
	case batch.JobStatusCompleted, batch.JobStatusPending, batch.JobStatusRunning:
		jlog.Debug("Job completed")
	}

	// Terminal updates are only legal out of running; retry the running mark
	// once if the first attempt was not recorded.
	if !running {
		o.mark(ctx, jlog, batchID, job.JobID, batch.JobStatusRunning, batch.JobUpdate{})
	}
	o.mark(ctx, jlog, batchID, job.JobID, status, upd)
	span.SetAttributes(attribute.String("job.status", string(status)))
	return status
}

// -------------------- tight helpers --------------------

func (o *Orchestrator) validateJob(job JobSpec) error {
	job.JobID = strings.TrimSpace(job.JobID)
	job.Payload = strings.TrimSpace(job.Payload)
	if err := o.validate.Struct(job); err != nil {
		return &ValidationError{JobID: job.JobID, Err: err}
	}
	return nil
}

// mark is best effort: failures are logged and reported as false, never
// returned. An update the tracker accepted but did not apply counts as failed.
func (o *Orchestrator) mark(ctx context.Context, log *logger.Logger, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) bool {
	doc, prov, err := o.tracker.UpdateJobStatus(context.WithoutCancel(ctx), batchID, jobID, status, upd)
	if err != nil {
		log.Warn("Job status update failed", "status", status, "error", err)
		return false
	}
	if job, ok := doc.FindJob(jobID); !ok || job.Status != status {
		log.Warn("Job status update not applied", "status", status, "provenance", prov)
		return false
	}
	if prov == batch.ProvenanceFallback {
		log.Debug("Job status recorded in fallback store", "status", status)
	}
	return true
}

func (o *Orchestrator) complete(ctx context.Context, log *logger.Logger, batchID string) {
	_, prov, err := o.tracker.Complete(context.WithoutCancel(ctx), batchID)
	if err != nil {
		log.Warn("Failed to complete batch", "error", err)
		return
	}
	if prov == batch.ProvenanceFallback {
		log.Warn("Batch completed in fallback store only")
	}
}

func (o *Orchestrator) safeExecute(ctx context.Context, jobID string) (res ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return o.executor.Execute(ctx, jobID)
}

func (o *Orchestrator) pause(ctx context.Context) {
	if o.throttle <= 0 {
		return
	}
	t := time.NewTimer(o.throttle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// outcome maps an executor result onto the job's terminal status and fields.
func outcome(res ExecutionResult, err error) (batch.JobStatus, batch.JobUpdate) {
	upd := batch.JobUpdate{
		Findings:  optional(res.Findings),
		ResultRef: optional(res.ResultRef),
	}
	switch {
	case err != nil:
		upd.Message = pointers.String(err.Error())
		return batch.JobStatusFailed, upd
	case !res.Success:
		upd.Message = pointers.String(failureCause(res, nil).Error())
		return batch.JobStatusFailed, upd
	case res.StatusType == batch.JobStatusAttentionNeeded:
		upd.Message = optional(res.Message)
		return batch.JobStatusAttentionNeeded, upd
	default:
		upd.Message = optional(res.Message)
		return batch.JobStatusCompleted, upd
	}
}

func failureCause(res ExecutionResult, err error) error {
	if err != nil {
		return err
	}
	if msg := strings.TrimSpace(res.Message); msg != "" {
		return errors.New(msg)
	}
	return errExecutorFailed
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return pointers.String(s)
}
