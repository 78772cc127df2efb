package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/termbridge/internal/terminal"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	MaxMessageBytes int64         `envconfig:"WS_MAX_MESSAGE_BYTES" default:"1048576"`
}

// TerminalConfig holds shell and session supervision settings.
type TerminalConfig struct {
	Shell                 string        `envconfig:"TERMINAL_SHELL" default:"/bin/sh"`
	Term                  string        `envconfig:"TERMINAL_TERM" default:"xterm-256color"`
	WorkingDir            string        `envconfig:"TERMINAL_WORKDIR"`
	PollInterval          time.Duration `envconfig:"TERMINAL_POLL_INTERVAL" default:"50ms"`
	ReadBufferSize        int           `envconfig:"TERMINAL_READ_BUFFER" default:"4096"`
	HeartbeatInterval     time.Duration `envconfig:"TERMINAL_HEARTBEAT_INTERVAL" default:"5s"`
	HeartbeatTimeout      time.Duration `envconfig:"TERMINAL_HEARTBEAT_TIMEOUT" default:"15s"`
	KillGrace             time.Duration `envconfig:"TERMINAL_KILL_GRACE" default:"1s"`
	MaxSessions           int           `envconfig:"TERMINAL_MAX_SESSIONS" default:"64"`
	MaxConcurrentLaunches int           `envconfig:"TERMINAL_MAX_LAUNCHES" default:"4"`
	OutputMode            string        `envconfig:"TERMINAL_OUTPUT_MODE" default:"framed"`
	InputRateLimit        float64       `envconfig:"TERMINAL_INPUT_RATE" default:"200"`
	InputBurst            int           `envconfig:"TERMINAL_INPUT_BURST" default:"200"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig limits how fast one client IP may open sessions.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled           bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds cross-origin settings for the HTTP API.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	t := terminal.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageBytes: 1 << 20,
		},
		Terminal: TerminalConfig{
			Shell:                 t.Shell,
			Term:                  t.Term,
			PollInterval:          t.PollInterval,
			ReadBufferSize:        t.ReadBufferSize,
			HeartbeatInterval:     t.HeartbeatInterval,
			HeartbeatTimeout:      t.HeartbeatTimeout,
			KillGrace:             t.KillGrace,
			MaxSessions:           t.MaxSessions,
			MaxConcurrentLaunches: t.MaxConcurrentLaunches,
			OutputMode:            string(t.OutputMode),
			InputRateLimit:        t.InputRateLimit,
			InputBurst:            t.InputBurst,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Options converts the environment settings into session options. Raw
// output mode has no heartbeat exchange, so its watchdog is switched off.
func (t TerminalConfig) Options() terminal.Config {
	opts := terminal.Config{
		Shell:                 t.Shell,
		Term:                  t.Term,
		WorkingDir:            t.WorkingDir,
		PollInterval:          t.PollInterval,
		ReadBufferSize:        t.ReadBufferSize,
		HeartbeatInterval:     t.HeartbeatInterval,
		HeartbeatTimeout:      t.HeartbeatTimeout,
		KillGrace:             t.KillGrace,
		MaxSessions:           t.MaxSessions,
		MaxConcurrentLaunches: t.MaxConcurrentLaunches,
		OutputMode:            terminal.OutputMode(t.OutputMode),
		InputRateLimit:        t.InputRateLimit,
		InputBurst:            t.InputBurst,
		Clock:                 terminal.SystemClock{},
	}
	if opts.OutputMode == terminal.OutputRaw {
		opts.HeartbeatInterval = 0
		opts.HeartbeatTimeout = 0
	}
	return opts
}

// Validate checks every section.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("ws max message bytes must be positive")
	}
	if err := c.Terminal.Options().Validate(); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate limit needs a positive rate and burst")
	}
	return nil
}
