// Package main is the entry point for the terminal bridge server.
//
// Each WebSocket connection to /ws/terminal/:id is attached to an
// interactive shell running on a pseudo-terminal. Keystrokes flow from the
// socket into the shell and shell output flows back.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -shell /bin/bash
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: close every session and shut down
package main
