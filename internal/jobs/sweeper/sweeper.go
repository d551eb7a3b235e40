package sweeper

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/scriptrunner-backend/internal/domain/batch"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

const DefaultSchedule = "@every 10m"

type Target interface {
	SweepInactive(ctx context.Context) (int, batch.Provenance, error)
}

// Sweeper periodically drops inactive batch documents that are still
// indexed as active.
type Sweeper struct {
	target   Target
	log      *logger.Logger
	schedule string
	cron     *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(target Target, baseLog *logger.Logger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		target:   target,
		log:      baseLog.With("component", "BatchSweeper"),
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("sweeper already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(s.ctx) }); err != nil {
		s.cancel()
		s.cancel = nil
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info("Sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a sweep in progress.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	<-s.cron.Stop().Done()
	cancel()
	s.log.Info("Sweeper stopped")
}

// Sweep runs one pass and returns how many documents were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, prov, err := s.target.SweepInactive(ctx)
	if err != nil {
		s.log.Warn("Sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.log.Info("Swept inactive batches", "removed", n, "provenance", prov)
	} else {
		s.log.Debug("Sweep found nothing to remove", "provenance", prov)
	}
	return n
}
