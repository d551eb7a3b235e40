package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/scriptrunner-backend/internal/http/handlers"
	httpMW "github.com/yungbote/scriptrunner-backend/internal/http/middleware"
	"github.com/yungbote/scriptrunner-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string

	BatchHandler  *httpH.BatchHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Batches
		if cfg.BatchHandler != nil {
			api.POST("/batches", cfg.BatchHandler.SubmitBatch)
			api.GET("/batches", cfg.BatchHandler.ListActive)
			api.GET("/batches/stats", cfg.BatchHandler.Stats)
			api.POST("/batches/sweep", cfg.BatchHandler.Sweep)
			api.GET("/batches/:id", cfg.BatchHandler.GetBatch)
			api.POST("/batches/:id/complete", cfg.BatchHandler.CompleteBatch)
			api.POST("/batches/:id/cancel", cfg.BatchHandler.CancelBatch)
			api.DELETE("/batches/:id", cfg.BatchHandler.DeleteBatch)
		}
	}

	return r
}
