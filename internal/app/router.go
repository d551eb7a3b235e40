package app

import (
	"github.com/gin-gonic/gin"

	server "github.com/yungbote/scriptrunner-backend/internal/http"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

const serviceName = "scriptrunner"

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *server.Server {
	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.NewServer(server.RouterConfig{
		Log:            log,
		ServiceName:    serviceName,
		AllowedOrigins: cfg.AllowedOrigins,
		BatchHandler:   handlers.Batch,
		HealthHandler:  handlers.Health,
	})
}
