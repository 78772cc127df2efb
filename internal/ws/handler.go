package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termbridge/internal/shared/id"
	"github.com/GriffinCanCode/termbridge/internal/terminal"
)

// Config controls the WebSocket endpoint
type Config struct {
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	// CheckOrigin decides whether a browser origin may connect. Nil allows all.
	CheckOrigin func(origin string) bool
}

// DefaultConfig returns the production endpoint settings
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 1 << 20,
	}
}

// Handler upgrades HTTP requests and binds each connection to a terminal
// session.
type Handler struct {
	registry *terminal.Registry
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler
func NewHandler(registry *terminal.Registry, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.CheckOrigin == nil {
				return true
			}
			return cfg.CheckOrigin(r.Header.Get("Origin"))
		},
	}
	return h
}

// WithMetrics adds connection metrics
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// Terminal serves GET /ws/terminal and /ws/terminal/:id. The session id comes
// from the path, then the session_id query parameter, and is generated when
// neither is given.
func (h *Handler) Terminal(c *gin.Context) {
	sid := c.Param("id")
	if sid == "" {
		sid = c.Query("session_id")
	}
	if sid == "" {
		sid = id.NewSessionID().String()
	} else if err := id.ValidateClientID(sid); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Warn("WebSocket upgrade failed", zap.String("session_id", sid), zap.Error(err))
		return
	}

	connID := id.NewConnID()
	logger := h.logger.With(
		zap.String("session_id", sid),
		zap.String("conn_id", connID.String()),
		zap.String("remote", c.ClientIP()),
	)

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	ch := NewConn(conn, h.cfg.WriteTimeout, h.cfg.MaxMessageBytes)
	defer ch.Close(websocket.CloseNormalClosure, "")

	start := time.Now()
	logger.Info("Terminal connection opened")

	if err := h.registry.Serve(c.Request.Context(), sid, ch); err != nil {
		logger.Warn("Terminal session failed to start", zap.Error(err))
		return
	}
	logger.Info("Terminal connection closed", zap.Duration("duration", time.Since(start)))
}
