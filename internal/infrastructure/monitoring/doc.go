/*
Package monitoring provides Prometheus metrics for the terminal bridge.

# Overview

Metrics cover the HTTP surface, the lifecycle of terminal sessions (started,
closed by reason, lifetime, launch failures, heartbeat timeouts), bytes
relayed through pty masters and WebSocket traffic.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Hand it to the session registry
	registry := terminal.NewRegistry(cfg, logger).WithMetrics(metrics)

Tests should use NewMetricsWith(prometheus.NewRegistry()) to avoid duplicate
registration against the default registry.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
