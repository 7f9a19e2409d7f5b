package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livex/config"
	"livex/internal/handler"
	"livex/internal/middleware"
	"livex/internal/websocket"
	"livex/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Health    *handler.HealthHandler
	Event     *handler.EventHandler
	Widget    *handler.WidgetHandler
	WebSocket *websocket.Handler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router, mainly for httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// SetupRoutes registers every route. limiter may be nil, in which case event
// submissions are not rate limited.
func (s *Server) SetupRoutes(handlers *Handlers, limiter middleware.IngestLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.AllowedOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/", handlers.Health.Root)
	s.engine.GET("/ping", handlers.Health.Ping)
	s.engine.GET("/health", handlers.Health.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ingest := []gin.HandlerFunc{handlers.Event.Ingest}
	if limiter != nil {
		ingest = append([]gin.HandlerFunc{middleware.IngestRateLimitMiddleware(limiter, s.logger)}, ingest...)
	}
	s.engine.POST("/event", ingest...)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/events", ingest...)
		v1.POST("/widgets", handlers.Widget.Create)
		v1.GET("/widgets/:id", handlers.Widget.Get)
	}

	s.engine.GET("/ws", handlers.WebSocket.Connect)
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if s.logger != nil {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
		return err
	case <-quit:
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Shutting down, waiting up to 5 seconds for in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
