package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pollwave/backend/internal/config"
	"github.com/pollwave/backend/internal/handlers"
	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/middleware"
	"github.com/pollwave/backend/internal/store"
)

type Server struct {
	cfg     config.Config
	store   store.Store
	handler *handlers.Handler
	limiter *middleware.ClientLimiter
}

func New(cfg config.Config, deps handlers.Deps) *Server {
	return &Server{
		cfg:     cfg,
		store:   deps.Store,
		handler: handlers.NewHandler(deps),
		limiter: middleware.NewClientLimiter(cfg.APIRateLimit, cfg.APIRateBurst),
	}
}

// HTTPServer wraps the router in an http.Server listening on cfg.Port.
func (s *Server) HTTPServer() *http.Server {
	logging.Module("server").WithField("port", s.cfg.Port).Info("server configured")
	return &http.Server{
		Addr:         "0.0.0.0:" + s.cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Admin-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		health := s.store.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(s.limiter.Middleware())
	{
		api.POST("/auth/anon", s.handler.Auth.AnonLogin)
		api.GET("/quota", s.handler.Quota.GetUsage)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware([]byte(s.cfg.JWTSecret)))
		{
			protected.GET("/me", s.handler.Auth.GetMe)

			protected.GET("/questions", s.handler.Poll.GetFeed)
			protected.POST("/questions", s.handler.Poll.CreatePoll)
			protected.POST("/questions/:id/vote", s.handler.Poll.VotePoll)

			protected.GET("/comments/:questionId", s.handler.Comment.GetComments)
			protected.POST("/comments/:questionId", s.handler.Comment.CreateComment)
		}

		admin := api.Group("/review")
		admin.Use(middleware.AdminOnly(s.cfg.AdminToken))
		{
			admin.GET("/pending", s.handler.Review.ListPending)
			admin.POST("/:id/approve", s.handler.Review.Approve)
			admin.POST("/:id/reject", s.handler.Review.Reject)
		}
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	log := logging.Module("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithField("method", c.Request.Method).
			WithField("path", c.FullPath()).
			WithField("status", c.Writer.Status()).
			WithField("latency", time.Since(start)).
			Debug("request")
	}
}
