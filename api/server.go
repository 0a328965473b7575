package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
	"github.com/sweetpotato0/agri-advisor/session"
)

// Limiter admits or rejects a call from a client.
type Limiter interface {
	Allow(client string) bool
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Pipeline    *advisory.Pipeline
	Chat        *advisory.ChatService
	Analyst     *advisory.Analyst
	Sessions    *session.Manager
	Environment advisory.EnvironmentSource
	// Chain wraps every advice call; it should include the rate limiter.
	Chain *middleware.Chain
	// Limiter guards the routes that do not go through Chain.
	Limiter Limiter
	Logger  *slog.Logger
}

// Server serves the advisory HTTP API.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// NewServer creates a server. A nil Chain runs the pipeline directly.
func NewServer(deps Deps) *Server {
	if deps.Chain == nil {
		deps.Chain = middleware.NewChain()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	return &Server{deps: deps, logger: logger}
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.POST("/advice", s.advice)

	limited := v1.Group("", s.rateLimit())
	limited.POST("/chat", s.chat)
	limited.POST("/analysis", s.analysis)
	limited.POST("/sessions/:id/environment", s.sessionEnvironment)
	limited.GET("/sessions/:id/history", s.sessionHistory)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Limiter != nil && !s.deps.Limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
