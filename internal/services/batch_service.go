package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/orchestrator"
	"github.com/yungbote/scriptrunner-backend/internal/platform/ctxutil"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

var ErrBatchRunning = errors.New("batch already running")

type SubmitRequest struct {
	BatchID string                 `json:"batch_id"`
	Jobs    []orchestrator.JobSpec `json:"jobs" validate:"required,min=1"`
}

// BatchStateTracker is the state tracker surface the service exposes.
type BatchStateTracker interface {
	orchestrator.StateTracker
	Create(ctx context.Context, batchID string, jobs []batch.JobInput) (*batch.BatchExecution, batch.Provenance, error)
	Get(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error)
	Delete(ctx context.Context, batchID string) (batch.Provenance, error)
	ListActive(ctx context.Context) ([]string, batch.Provenance, error)
	SweepInactive(ctx context.Context) (int, batch.Provenance, error)
	Stats(ctx context.Context) (batch.Stats, error)
	PrimaryHealthy(ctx context.Context) error
}

type BatchRunner interface {
	Run(ctx context.Context, batchID string, jobs []orchestrator.JobSpec) (orchestrator.Summary, error)
}

type BatchService interface {
	// Submit records the batch and starts running it in the background. It
	// returns as soon as the batch document exists.
	Submit(ctx context.Context, req SubmitRequest) (string, batch.Provenance, error)
	// Cancel stops jobs of a running batch that have not started yet.
	Cancel(batchID string) bool
	Running(batchID string) bool
	Get(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error)
	ListActive(ctx context.Context) ([]string, batch.Provenance, error)
	Stats(ctx context.Context) (batch.Stats, error)
	SweepInactive(ctx context.Context) (int, batch.Provenance, error)
	Delete(ctx context.Context, batchID string) (batch.Provenance, error)
	Complete(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error)
	PrimaryHealthy(ctx context.Context) error
	// Shutdown cancels every running batch and waits for the runs to finish.
	Shutdown()
	Wait()
}

type batchService struct {
	log      *logger.Logger
	tracker  BatchStateTracker
	runner   BatchRunner
	validate *validator.Validate

	base    context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewBatchService(baseLog *logger.Logger, tracker BatchStateTracker, runner BatchRunner) BatchService {
	base, stop := context.WithCancel(context.Background())
	return &batchService{
		log:      baseLog.With("service", "BatchService"),
		tracker:  tracker,
		runner:   runner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		base:     base,
		stopAll:  stop,
		running:  map[string]context.CancelFunc{},
	}
}

func (s *batchService) Submit(ctx context.Context, req SubmitRequest) (string, batch.Provenance, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", "", fmt.Errorf("%w: %v", batch.ErrInvalidArgument, err)
	}
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	s.mu.Lock()
	if _, busy := s.running[batchID]; busy {
		s.mu.Unlock()
		return "", "", fmt.Errorf("%w: %s", ErrBatchRunning, batchID)
	}
	// The run outlives the request but keeps its values (trace data, span).
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running[batchID] = cancel
	s.mu.Unlock()

	_, prov, err := s.tracker.Create(ctx, batchID, orchestrator.Inputs(req.Jobs))
	if err != nil {
		s.forget(batchID)
		cancel()
		return "", "", err
	}

	log := s.log.With(append([]interface{}{"batch_id", batchID}, ctxutil.LogFields(ctx)...)...)
	stopOnShutdown := context.AfterFunc(s.base, cancel)
	jobs := append([]orchestrator.JobSpec(nil), req.Jobs...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stopOnShutdown()
		defer cancel()
		defer s.forget(batchID)
		if _, err := s.runner.Run(runCtx, batchID, jobs); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Batch run ended with error", "error", err)
		}
	}()

	log.Info("Batch submitted", "jobs", len(jobs), "provenance", prov)
	return batchID, prov, nil
}

func (s *batchService) forget(batchID string) {
	s.mu.Lock()
	delete(s.running, batchID)
	s.mu.Unlock()
}

func (s *batchService) Cancel(batchID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[batchID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	s.log.Info("Batch cancel requested", "batch_id", batchID)
	return true
}

func (s *batchService) Running(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[batchID]
	return ok
}

func (s *batchService) Get(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error) {
	return s.tracker.Get(ctx, batchID)
}

func (s *batchService) ListActive(ctx context.Context) ([]string, batch.Provenance, error) {
	return s.tracker.ListActive(ctx)
}

func (s *batchService) Stats(ctx context.Context) (batch.Stats, error) {
	return s.tracker.Stats(ctx)
}

func (s *batchService) SweepInactive(ctx context.Context) (int, batch.Provenance, error) {
	return s.tracker.SweepInactive(ctx)
}

func (s *batchService) Delete(ctx context.Context, batchID string) (batch.Provenance, error) {
	return s.tracker.Delete(ctx, batchID)
}

func (s *batchService) Complete(ctx context.Context, batchID string) (*batch.BatchExecution, batch.Provenance, error) {
	return s.tracker.Complete(ctx, batchID)
}

func (s *batchService) PrimaryHealthy(ctx context.Context) error {
	return s.tracker.PrimaryHealthy(ctx)
}

func (s *batchService) Shutdown() {
	s.stopAll()
	s.wg.Wait()
}

func (s *batchService) Wait() { s.wg.Wait() }
