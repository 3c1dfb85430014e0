package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/calegray/cardflow-backend/internal/http/handlers"
	"github.com/calegray/cardflow-backend/internal/http/middleware"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	MessageHandler *handlers.MessageHandler
	RecallHandler  *handlers.RecallHandler
	RecordHandler  *handlers.RecordHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("cardflow-backend"))
	router.Use(middleware.AttachTraceContext())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/webhook/message", cfg.MessageHandler.Inbound)
		api.POST("/webhook/regenerate", cfg.MessageHandler.Regenerate)
		api.POST("/recall", cfg.RecallHandler.Enqueue)
		api.GET("/records/:sessionId", cfg.RecordHandler.Get)
	}

	return router
}
