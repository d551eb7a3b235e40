package batchstate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

// Tracker prefers the primary store and degrades to the in-process fallback
// when the primary is unreachable. Every answer is tagged with the store that
// produced it.
type Tracker struct {
	primary  PrimaryStore
	fallback *FallbackStore
	log      *logger.Logger
}

func NewTracker(primary PrimaryStore, fallback *FallbackStore, baseLog *logger.Logger) *Tracker {
	if fallback == nil {
		fallback = NewFallbackStore()
	}
	return &Tracker{
		primary:  primary,
		fallback: fallback,
		log:      baseLog.With("component", "BatchStateTracker"),
	}
}

func isUnavailable(err error) bool { return errors.Is(err, batch.ErrStoreUnavailable) }
func isNotFound(err error) bool    { return errors.Is(err, batch.ErrNotFound) }

func (t *Tracker) Create(ctx context.Context, batchID string, jobs []batch.JobInput) (*batch.BatchExecution, batch.Provenance, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, "", fmt.Errorf("%w: batch id required", batch.ErrInvalidArgument)
	}
	if len(jobs) == 0 {
		return nil, "", fmt.Errorf("%w: batch %s has no jobs", batch.ErrInvalidArgument, batchID)
	}
	doc, err := t.primary.Create(ctx, batchID, jobs)
	switch {
	case err == nil:
		t.fallback.Put(doc)
		return doc, batch.ProvenancePrimary, nil
	case isUnavailable(err):
		t.log.Warn("primary store unavailable, creating batch in fallback", "batch_id", batchID, "error", err)
		return t.fallback.Create(batchID, jobs), batch.ProvenanceFallback, nil
	default:
		return nil, "", err
	}
}

// Get reads the primary. A primary miss is only answered from the fallback
// for batches the fallback created; a mirrored copy of a batch the primary no
// longer holds has expired there and is dropped.
func (t *Tracker) Get(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error) {
	doc, err := t.primary.Get(ctx, batchID)
	switch {
	case err == nil:
		return doc, batch.ProvenancePrimary, nil
	case isNotFound(err) && !t.ownedByFallback(batchID):
		return nil, "", batch.ErrNotFound
	case isUnavailable(err), isNotFound(err):
		if fb, ok := t.fallback.Get(batchID); ok {
			if isUnavailable(err) {
				t.log.Debug("serving batch from fallback", "batch_id", batchID)
			}
			return fb, batch.ProvenanceFallback, nil
		}
		return nil, "", batch.ErrNotFound
	default:
		return nil, "", err
	}
}

func (t *Tracker) UpdateJobStatus(ctx context.Context, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, batch.Provenance, error) {
	if !status.IsValid() {
		return nil, "", fmt.Errorf("%w: %q", batch.ErrInvalidStatus, status)
	}
	doc, err := t.primary.UpdateJobStatus(ctx, batchID, jobID, status, upd)
	if err == nil {
		doc, err = t.catchUp(ctx, doc, jobID, status, upd)
	}
	switch {
	case err == nil:
		t.fallback.Mirror(doc)
		return doc, batch.ProvenancePrimary, nil
	case isNotFound(err) && !t.ownedByFallback(batchID):
		return nil, "", batch.ErrNotFound
	case isUnavailable(err), isNotFound(err):
		if isUnavailable(err) {
			t.log.Warn("primary store unavailable, updating fallback",
				"batch_id", batchID, "job_id", jobID, "status", status, "error", err)
		}
		fb, ferr := t.fallback.UpdateJobStatus(batchID, jobID, status, upd)
		if ferr != nil {
			return nil, "", ferr
		}
		return fb, batch.ProvenanceFallback, nil
	default:
		return nil, "", err
	}
}

func (t *Tracker) Complete(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error) {
	doc, err := t.primary.Get(ctx, batchID)
	if err == nil {
		_, err = t.replayFallback(ctx, doc)
	}
	if err == nil {
		doc, err = t.primary.Complete(ctx, batchID)
	}
	switch {
	case err == nil:
		t.fallback.Mirror(doc)
		return doc, batch.ProvenancePrimary, nil
	case isNotFound(err) && !t.ownedByFallback(batchID):
		return nil, "", batch.ErrNotFound
	case isUnavailable(err), isNotFound(err):
		if isUnavailable(err) {
			t.log.Warn("primary store unavailable, completing in fallback", "batch_id", batchID, "error", err)
		}
		fb, ferr := t.fallback.Complete(batchID)
		if ferr != nil {
			return nil, "", ferr
		}
		return fb, batch.ProvenanceFallback, nil
	default:
		return nil, "", err
	}
}

// ownedByFallback reports whether the fallback created batchID. A mirrored
// copy is evicted instead.
func (t *Tracker) ownedByFallback(batchID string) bool {
	if t.fallback.Owns(batchID) {
		return true
	}
	if _, ok := t.fallback.Get(batchID); ok {
		t.log.Debug("primary no longer holds batch, dropping fallback copy", "batch_id", batchID)
		t.fallback.Delete(batchID)
	}
	return false
}

// catchUp brings the primary level with progress that only reached the
// fallback, then retries the requested transition if the primary rejected it
// for arriving out of order.
func (t *Tracker) catchUp(ctx context.Context, doc *batch.BatchExecution, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, error) {
	doc, err := t.replayFallback(ctx, doc)
	if err != nil {
		return nil, err
	}
	job, ok := doc.FindJob(jobID)
	if !ok || job.Status == status || !batch.CanTransition(job.Status, status) {
		return doc, nil
	}
	return t.primary.UpdateJobStatus(ctx, doc.BatchID, jobID, status, upd)
}

// replayFallback re-sends onto the primary every job transition the fallback
// copy recorded beyond what doc shows.
func (t *Tracker) replayFallback(ctx context.Context, doc *batch.BatchExecution) (*batch.BatchExecution, error) {
	fb, ok := t.fallback.Get(doc.BatchID)
	if !ok {
		return doc, nil
	}
	for _, fj := range fb.Jobs {
		pj, ok := doc.FindJob(fj.JobID)
		if !ok || fj.Status.Rank() <= pj.Status.Rank() {
			continue
		}
		t.log.Info("replaying fallback progress onto primary",
			"batch_id", doc.BatchID, "job_id", fj.JobID, "status", fj.Status)
		var err error
		if pj.Status == batch.JobStatusPending {
			if doc, err = t.primary.UpdateJobStatus(ctx, doc.BatchID, fj.JobID, batch.JobStatusRunning, batch.JobUpdate{}); err != nil {
				return nil, err
			}
		}
		if fj.Status.IsTerminal() {
			upd := batch.JobUpdate{Message: fj.Message, Findings: fj.Findings, ResultRef: fj.ResultRef}
			if doc, err = t.primary.UpdateJobStatus(ctx, doc.BatchID, fj.JobID, fj.Status, upd); err != nil {
				return nil, err
			}
		}
	}
	if !fb.IsActive && doc.IsActive {
		return t.primary.Complete(ctx, doc.BatchID)
	}
	return doc, nil
}

func (t *Tracker) Delete(ctx context.Context, batchID string) (batch.Provenance, error) {
	err := t.primary.Delete(ctx, batchID)
	t.fallback.Delete(batchID)
	switch {
	case err == nil:
		return batch.ProvenancePrimary, nil
	case isUnavailable(err):
		t.log.Warn("primary store unavailable, deleted from fallback only", "batch_id", batchID, "error", err)
		return batch.ProvenanceFallback, nil
	default:
		return "", err
	}
}

func (t *Tracker) ListActive(ctx context.Context) ([]string, batch.Provenance, error) {
	ids, err := t.primary.ListActive(ctx)
	switch {
	case err == nil:
		return ids, batch.ProvenancePrimary, nil
	case isUnavailable(err):
		return t.fallback.ListActive(), batch.ProvenanceFallback, nil
	default:
		return nil, "", err
	}
}

func (t *Tracker) Stats(ctx context.Context) (batch.Stats, error) {
	st, err := t.primary.Stats(ctx)
	switch {
	case err == nil:
		st.Provenance = batch.ProvenancePrimary
		return st, nil
	case isUnavailable(err):
		return t.fallback.Stats(), nil
	default:
		return batch.Stats{}, err
	}
}

// SweepInactive reconciles the primary index and trims inactive fallback
// copies. The count reported is the primary's when it is reachable.
func (t *Tracker) SweepInactive(ctx context.Context) (int, batch.Provenance, error) {
	n, err := t.primary.SweepInactive(ctx)
	switch {
	case err == nil:
		t.fallback.SweepInactive()
		t.evictExpiredMirrors(ctx)
		return n, batch.ProvenancePrimary, nil
	case isUnavailable(err):
		return t.fallback.SweepInactive(), batch.ProvenanceFallback, nil
	default:
		return 0, "", err
	}
}

func (t *Tracker) evictExpiredMirrors(ctx context.Context) {
	for _, id := range t.fallback.Mirrored() {
		if _, err := t.primary.Get(ctx, id); isNotFound(err) {
			t.fallback.Delete(id)
		}
	}
}

// PrimaryHealthy reports whether the primary store answers a ping.
func (t *Tracker) PrimaryHealthy(ctx context.Context) error {
	return t.primary.Ping(ctx)
}
