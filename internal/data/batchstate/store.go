package batchstate

import (
	"context"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
)

// PrimaryStore is the authoritative, shared batch document store. Every
// transport failure surfaces as batch.ErrStoreUnavailable; missing documents
// as batch.ErrNotFound. Implementations do not retry.
type PrimaryStore interface {
	Create(ctx context.Context, batchID string, jobs []batch.JobInput) (*batch.BatchExecution, error)
	Get(ctx context.Context, batchID string) (*batch.BatchExecution, error)
	UpdateJobStatus(ctx context.Context, batchID, jobID string, status batch.JobStatus, upd batch.JobUpdate) (*batch.BatchExecution, error)
	Complete(ctx context.Context, batchID string) (*batch.BatchExecution, error)
	Delete(ctx context.Context, batchID string) error
	ListActive(ctx context.Context) ([]string, error)
	SweepInactive(ctx context.Context) (int, error)
	Stats(ctx context.Context) (batch.Stats, error)
	Ping(ctx context.Context) error
}
