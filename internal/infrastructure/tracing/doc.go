/*
Package tracing records lightweight spans for HTTP requests and terminal
session lifetimes.

Spans carry prefixed ULID trace and span ids, propagate through
context.Context and the X-Trace-ID / X-Span-ID headers, and are written to
the zap logger by a single collector goroutine. Submit never blocks; spans
are dropped when the 1000-entry buffer is full.

	tracer := tracing.New("termbridge", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "terminal.session")
	span.SetTag("session_id", sid)
	span.Finish()
	tracer.Submit(span)
*/
package tracing
