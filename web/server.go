package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"answer-engine/answers"
	"answer-engine/config"
	"answer-engine/database"
	"answer-engine/engine"
	"answer-engine/web/handlers"
	"answer-engine/web/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router  *gin.Engine
	limiter *middleware.UserRateLimiter
	logger  *zap.Logger
	config  *config.Config
}

func NewServer(cfg *config.Config, eng *engine.Engine, cache *answers.Cache, store *database.PostgresStore, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.IdentityMiddleware())

	limiter := middleware.NewUserRateLimiter(middleware.RateLimiterConfig{
		AnswersPerMinute: 10,
		UploadsPerHour:   30,
		BurstSize:        5,
		CleanupInterval:  10 * time.Minute,
	}, logger)

	server := &Server{
		router:  router,
		limiter: limiter,
		logger:  logger,
		config:  cfg,
	}

	server.setupRoutes(eng, cache, store)
	return server
}

func (s *Server) setupRoutes(eng *engine.Engine, cache *answers.Cache, store *database.PostgresStore) {
	answerHandler := handlers.NewAnswerHandler(eng, cache, s.logger)
	documentHandler := handlers.NewDocumentHandler(eng, store, s.logger)

	api := s.router.Group("/api")
	{
		api.POST("/answer",
			middleware.RateLimitMiddleware(s.limiter, "answer"), answerHandler.Ask)
		api.POST("/answers/:id/vote", answerHandler.Vote)
		api.POST("/answers/:id/publish", answerHandler.Publish)
		api.POST("/documents",
			middleware.RateLimitMiddleware(s.limiter, "upload"), documentHandler.Upload)
		api.GET("/documents", documentHandler.List)
		api.GET("/documents/:id", documentHandler.Get)
		api.DELETE("/documents/:id", documentHandler.Delete)
	}

	// Public rendered answer pages
	s.router.GET("/answers/:id", answerHandler.Show)

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.WebPort)
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	s.limiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
