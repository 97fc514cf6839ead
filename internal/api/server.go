package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mercadia/salesgoals/internal/api/handlers"
	"github.com/mercadia/salesgoals/internal/api/middleware"
	"github.com/mercadia/salesgoals/internal/config"
	"github.com/mercadia/salesgoals/internal/service"
	"go.uber.org/zap"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	services *service.Services
	logger   *zap.Logger
}

func NewServer(cfg *config.Config, services *service.Services, logger *zap.Logger) *Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		router:   router,
		config:   cfg,
		services: services,
		logger:   logger,
	}

	server.setupRoutes()

	return server
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogger(s.logger))

	// хелсчек
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api/v1")

	authHandler := handlers.NewAuthHandler(s.services.Auth)
	goalHandler := handlers.NewGoalHandler(s.services.Ledger)
	reportHandler := handlers.NewReportHandler(s.services.Report)
	lifecycleHandler := handlers.NewLifecycleHandler(s.services.Lifecycle, s.services.Auth)

	// публичные маршруты
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.Auth(s.services.Auth))
	{
		goals := protected.Group("/goals")
		{
			goals.POST("", goalHandler.Create)
			goals.GET("", goalHandler.List)
			goals.GET("/access/:code", goalHandler.GetByAccessCode)
			goals.GET("/:id", goalHandler.GetByID)
			goals.PUT("/:id", goalHandler.Update)
			goals.DELETE("/:id", goalHandler.Delete)
			goals.POST("/:id/sales", goalHandler.RecordSale)
		}

		reports := protected.Group("/reports")
		{
			reports.GET("/ranking", reportHandler.GetRanking)
			reports.GET("/stats", reportHandler.GetStats)
			reports.GET("/closing", reportHandler.GetClosingReport)
		}

		lifecycle := protected.Group("/lifecycle")
		{
			lifecycle.GET("/can-close", lifecycleHandler.CanClose)
			lifecycle.POST("/close", lifecycleHandler.CloseMonth)
			lifecycle.POST("/reopen", lifecycleHandler.ReopenMonth)
		}
	}
}
