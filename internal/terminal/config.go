package terminal

import (
	"fmt"
	"time"
)

// Config controls how sessions are launched and supervised
type Config struct {
	Shell      string
	Term       string
	WorkingDir string

	// Pump
	PollInterval   time.Duration
	ReadBufferSize int

	// Liveness. A zero HeartbeatTimeout disables the watchdog. Raw output
	// mode has no heartbeat exchange, so the watchdog is always off there.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// Teardown
	KillGrace time.Duration

	// Limits. Zero MaxSessions means unlimited. Live sessions and launches
	// in progress both count; a session being replaced does not.
	MaxSessions           int
	MaxConcurrentLaunches int

	// Transport
	OutputMode     OutputMode
	InputRateLimit float64 // frames per second, 0 disables
	InputBurst     int

	Clock Clock
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Shell:                 DefaultShell,
		Term:                  DefaultTerm,
		PollInterval:          50 * time.Millisecond,
		ReadBufferSize:        4096,
		HeartbeatInterval:     5 * time.Second,
		HeartbeatTimeout:      15 * time.Second,
		KillGrace:             time.Second,
		MaxSessions:           64,
		MaxConcurrentLaunches: 4,
		OutputMode:            OutputFramed,
		InputRateLimit:        200,
		InputBurst:            200,
		Clock:                 SystemClock{},
	}
}

// Validate reports settings that cannot work
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive, got %d", c.ReadBufferSize)
	}
	if c.HeartbeatTimeout < 0 || c.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat durations must not be negative")
	}
	if c.HeartbeatTimeout > 0 && c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive when a timeout is set")
	}
	if c.HeartbeatTimeout > 0 && c.HeartbeatInterval > c.HeartbeatTimeout {
		return fmt.Errorf("heartbeat interval %s exceeds timeout %s", c.HeartbeatInterval, c.HeartbeatTimeout)
	}
	if c.KillGrace <= 0 {
		return fmt.Errorf("kill grace must be positive, got %s", c.KillGrace)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max sessions must not be negative, got %d", c.MaxSessions)
	}
	switch c.OutputMode {
	case OutputFramed:
	case OutputRaw:
		if c.HeartbeatTimeout > 0 {
			return fmt.Errorf("raw output mode sends no heartbeats; heartbeat timeout must be 0")
		}
	default:
		return fmt.Errorf("unknown output mode %q", c.OutputMode)
	}
	return nil
}

// withDefaults fills zero values that have no "disabled" meaning.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Shell == "" {
		c.Shell = d.Shell
	}
	if c.Term == "" {
		c.Term = d.Term
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.KillGrace <= 0 {
		c.KillGrace = d.KillGrace
	}
	if c.MaxConcurrentLaunches <= 0 {
		c.MaxConcurrentLaunches = d.MaxConcurrentLaunches
	}
	if c.OutputMode == "" {
		c.OutputMode = d.OutputMode
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.OutputMode == OutputRaw {
		c.HeartbeatTimeout = 0
		c.HeartbeatInterval = 0
	}
	return c
}
