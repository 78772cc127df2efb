// Package server assembles the terminal bridge HTTP service.
//
// It owns the session registry and mounts it behind a gin router:
//
//	GET    /health                   liveness and active session count
//	GET    /metrics                  Prometheus exposition
//	GET    /terminal/sessions        snapshot of live sessions
//	GET    /terminal/sessions/:id    one session, 404 if absent
//	DELETE /terminal/sessions/:id    close a session (204 even if absent)
//	GET    /ws/terminal[/:id]        attach a WebSocket to a shell
//
// Middleware order is recovery, tracing, metrics, CORS. The per-IP rate
// limit applies to the WebSocket routes only.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg, logger)
//	go srv.Run()
//	defer srv.Close(ctx)
package server
