package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))
	t.Cleanup(tracer.Close)
	return tracer, logs
}

func TestStartSpanPropagatesParent(t *testing.T) {
	tracer, _ := newObserved(t)

	root, ctx := tracer.StartSpan(context.Background(), "root")
	assert.NotEmpty(t, root.TraceID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, root.TraceID, TraceIDFrom(ctx))
	assert.Equal(t, root.SpanID, SpanIDFrom(ctx))

	child, _ := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestSubmitLogsSpan(t *testing.T) {
	tracer, logs := newObserved(t)

	span, _ := tracer.StartSpan(context.Background(), "terminal.session")
	span.SetTag("session_id", "abc")
	span.SetError(errors.New("boom"))
	span.Finish()
	tracer.Submit(span)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Span completed with error").Len() == 1
	}, time.Second, 5*time.Millisecond)

	entry := logs.FilterMessage("Span completed with error").All()[0]
	assert.Equal(t, "abc", entry.ContextMap()["session_id"])
	assert.Equal(t, "terminal.session", entry.ContextMap()["operation"])
}

func TestSubmitAfterCloseIsDropped(t *testing.T) {
	tracer, logs := newObserved(t)
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()
	tracer.Submit(span)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, logs.FilterMessage("Span completed").Len())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObserved(t)

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderTraceID, "trace_upstream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace_upstream", rec.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, rec.Header().Get(HeaderSpanID))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Span completed").Len() == 1
	}, time.Second, 5*time.Millisecond)
	entry := logs.FilterMessage("Span completed").All()[0]
	assert.Equal(t, "GET /health", entry.ContextMap()["operation"])
	assert.EqualValues(t, http.StatusOK, entry.ContextMap()["status"])
}
