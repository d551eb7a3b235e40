package app

import (
	httpH "github.com/yungbote/scriptrunner-backend/internal/http/handlers"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Batch  *httpH.BatchHandler
}

func wireHandlers(log *logger.Logger, svcs Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(svcs.Batches),
		Batch:  httpH.NewBatchHandler(svcs.Batches),
	}
}
