package terminal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"heartbeat disabled", func(c *Config) { c.HeartbeatTimeout = 0; c.HeartbeatInterval = 0 }, false},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, true},
		{"zero buffer", func(c *Config) { c.ReadBufferSize = 0 }, true},
		{"negative timeout", func(c *Config) { c.HeartbeatTimeout = -time.Second }, true},
		{"timeout without interval", func(c *Config) { c.HeartbeatInterval = 0 }, true},
		{"interval above timeout", func(c *Config) { c.HeartbeatInterval = time.Minute }, true},
		{"zero grace", func(c *Config) { c.KillGrace = 0 }, true},
		{"negative max sessions", func(c *Config) { c.MaxSessions = -1 }, true},
		{"unknown output mode", func(c *Config) { c.OutputMode = "binary" }, true},
		{"raw output mode with watchdog", func(c *Config) { c.OutputMode = OutputRaw }, true},
		{"raw output mode", func(c *Config) {
			c.OutputMode = OutputRaw
			c.HeartbeatTimeout = 0
			c.HeartbeatInterval = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigWithDefaultsKeepsDisabledHeartbeat(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultShell, cfg.Shell)
	assert.Equal(t, DefaultTerm, cfg.Term)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 4096, cfg.ReadBufferSize)
	assert.Equal(t, OutputFramed, cfg.OutputMode)
	assert.NotNil(t, cfg.Clock)
	assert.Zero(t, cfg.HeartbeatTimeout)
	assert.Zero(t, cfg.MaxSessions)
}

func TestConfigWithDefaultsRawModeHasNoWatchdog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputMode = OutputRaw
	cfg = cfg.withDefaults()

	assert.Zero(t, cfg.HeartbeatTimeout)
	assert.Zero(t, cfg.HeartbeatInterval)
	assert.NoError(t, cfg.Validate())
}

func TestBuildEnvTermOverrideWins(t *testing.T) {
	env := buildEnv([]string{"PATH=/bin"}, "xterm-256color", map[string]string{"TERM": "dumb", "LANG": "C.UTF-8"})

	var terms []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "TERM=") {
			terms = append(terms, kv)
		}
	}
	assert.Equal(t, []string{"TERM=xterm-256color"}, terms)
	assert.Contains(t, env, "LANG=C.UTF-8")
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv([]string{"PATH=/bin", "TERM=dumb", "HOME=/root"}, "xterm-256color", map[string]string{"LANG": "C.UTF-8"})

	assert.Contains(t, env, "PATH=/bin")
	assert.Contains(t, env, "HOME=/root")
	assert.Contains(t, env, "TERM=xterm-256color")
	assert.Contains(t, env, "LANG=C.UTF-8")
	assert.NotContains(t, env, "TERM=dumb")
}
