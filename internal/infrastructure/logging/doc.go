// Package logging builds the zap loggers used across the bridge.
//
// Two modes:
//   - Production: sampled JSON output for machine parsing
//   - Development: coloured console output at debug level
//
// Components receive a *zap.Logger and add their own fields, for example
// zap.String("session_id", id).
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", addr))
package logging
