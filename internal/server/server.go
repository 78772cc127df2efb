package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termbridge/internal/api/middleware"
	"github.com/GriffinCanCode/termbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/termbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/termbridge/internal/terminal"
	"github.com/GriffinCanCode/termbridge/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	registry *terminal.Registry
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	config   *config.Config
}

// New creates a new server instance
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Initializing terminal bridge",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("shell", cfg.Terminal.Shell),
		zap.String("output_mode", cfg.Terminal.OutputMode),
	)

	// Each server owns its registry so /metrics only reports this process
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetricsWith(promReg)

	tracer := tracing.New("termbridge", logger)

	registry := terminal.NewRegistry(cfg.Terminal.Options(), logger).
		WithMetrics(metrics).
		WithTracer(tracer)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.CORS.AllowOrigins

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(corsCfg))

	wsHandler := ws.NewHandler(registry, ws.Config{
		WriteTimeout:    cfg.Server.WriteTimeout,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		CheckOrigin:     corsCfg.OriginAllowed,
	}, logger).WithMetrics(metrics)

	s := &Server{
		router:   router,
		registry: registry,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	sessions := router.Group("/terminal/sessions")
	sessions.GET("", s.listSessions)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.closeSession)

	// Only session establishment is rate limited; an open socket is not
	// affected by later refusals.
	terminalWS := router.Group("/ws/terminal")
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limiter := middleware.NewIPLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		terminalWS.Use(limiter.Middleware())
	}
	terminalWS.GET("", wsHandler.Terminal)
	terminalWS.GET("/:id", wsHandler.Terminal)

	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry
func (s *Server) Registry() *terminal.Registry {
	return s.registry
}

// Run serves HTTP until Close is called. It returns nil after a graceful
// shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is Run on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", l.Addr().String()))
	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting requests, tears down every terminal session and
// flushes the tracer.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	// Hijacked WebSocket connections are not tracked by http.Server, so
	// Shutdown returns once plain requests drain. Sessions are closed below.
	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(httpErr))
	}

	sessErr := s.registry.Shutdown(ctx)
	if sessErr != nil {
		s.logger.Error("Terminal sessions did not close in time", zap.Error(sessErr))
	}

	s.tracer.Close()
	_ = s.logger.Sync()

	return errors.Join(httpErr, sessErr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.registry.Count(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.registry.List()})
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": terminal.ErrSessionNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.registry.Close(c.Param("id")); err != nil {
		s.logger.Warn("Failed to close session", zap.String("session_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
