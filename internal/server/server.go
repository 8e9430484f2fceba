// Package server exposes the lock engine to the external UI over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/metrics"
	"github.com/eliteGoblin/focusd/app_lock/internal/prompt"
)

const shutdownTimeout = 5 * time.Second

// Engine is the part of usecase.Engine the API drives.
type Engine interface {
	HandleForeground(ctx context.Context, ev domain.ForegroundEvent)
	UnlockSucceeded(id domain.AppID) error
	ScreenOff()
	Status(ctx context.Context) (domain.EngineStatus, error)
}

// Prompts hands lock targets to an attached prompt UI.
type Prompts interface {
	Attach(l prompt.Listener) (detach func())
}

// Server wraps the HTTP server and dependencies
type Server struct {
	addr    string
	token   string
	router  *gin.Engine
	engine  Engine
	store   domain.ConfigStore
	prompts Prompts
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates the control API server. Every /api route requires token as a
// bearer credential.
func New(addr, token string, engine Engine, store domain.ConfigStore, prompts Prompts, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		addr:    addr,
		token:   token,
		router:  router,
		engine:  engine,
		store:   store,
		prompts: prompts,
		metrics: m,
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api", requireLocalClient(s.token, s.logger))
	api.GET("/status", s.status)
	api.GET("/locked", s.getLocked)
	api.PUT("/locked", s.putLocked)
	api.GET("/protect-settings", s.getProtect)
	api.PUT("/protect-settings", s.putProtect)
	api.POST("/unlock", s.unlock)
	api.POST("/screen-off", s.screenOff)
	api.POST("/foreground", s.foreground)
	api.GET("/lock-events", s.lockEvents)
}

// Handler returns the router (for tests and embedding).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("control API listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("control API shutdown incomplete", zap.Error(err))
		return srv.Close()
	}
	return nil
}

// requestLogger logs every request at debug level.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
