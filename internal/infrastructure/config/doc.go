// Package config provides 12-factor configuration for the terminal bridge.
//
// Configuration is loaded from environment variables with defaults.
// CLI flags can override environment variables for development.
//
// Configuration Sections:
//   - Server: listen address, shutdown timeout, WebSocket limits
//   - Terminal: shell, TERM, pump and heartbeat timings, session limits
//   - Logging: log level and output format
//   - RateLimit: per-IP limit on opening sessions
//   - CORS: allowed origins
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	registry := terminal.NewRegistry(cfg.Terminal.Options(), logger)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, WS_WRITE_TIMEOUT, WS_MAX_MESSAGE_BYTES
//   - TERMINAL_SHELL, TERMINAL_TERM, TERMINAL_WORKDIR, TERMINAL_OUTPUT_MODE
//   - TERMINAL_HEARTBEAT_INTERVAL, TERMINAL_HEARTBEAT_TIMEOUT (0 disables)
//   - TERMINAL_MAX_SESSIONS, TERMINAL_MAX_LAUNCHES, TERMINAL_INPUT_RATE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, CORS_ORIGINS
package config
