package app

import (
	"github.com/yungbote/scriptrunner-backend/internal/data/batchstate"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/executor"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/orchestrator"
	"github.com/yungbote/scriptrunner-backend/internal/jobs/sweeper"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
	"github.com/yungbote/scriptrunner-backend/internal/services"
)

type Services struct {
	Tracker      *batchstate.Tracker
	Orchestrator *orchestrator.Orchestrator
	Batches      services.BatchService
	Sweeper      *sweeper.Sweeper
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, repos Repos) Services {
	log.Info("Wiring services...")

	primary := batchstate.NewRedisStore(clients.Redis, log, batchstate.RedisOptions{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.TTL,
	})
	tracker := batchstate.NewTracker(primary, batchstate.NewFallbackStore(), log)

	exec := executor.NewSQLExecutor(clients.DB.DB(), repos.Script, repos.ExecutionResult, log, executor.Options{
		Timeout: cfg.ScriptTimeout,
	})
	throttle := cfg.JobThrottle
	if throttle == 0 {
		// An explicit zero turns the pause off.
		throttle = -1
	}
	orch := orchestrator.New(tracker, exec, log, orchestrator.Options{Throttle: throttle})

	var sw *sweeper.Sweeper
	if cfg.SweepSchedule != "off" {
		sw = sweeper.New(tracker, log, cfg.SweepSchedule)
	}

	return Services{
		Tracker:      tracker,
		Orchestrator: orch,
		Batches:      services.NewBatchService(log, tracker, orch),
		Sweeper:      sw,
	}
}
