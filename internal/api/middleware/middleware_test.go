package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ws/terminal", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitPerIP(t *testing.T) {
	router := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ws/terminal", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestIPLimiterEvictsIdleClients(t *testing.T) {
	l := NewIPLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 1, l.Len())
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		wantAllowed string
	}{
		{"wildcard", []string{"*"}, "http://any.example", "*"},
		{"listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", "http://localhost:3000"},
		{"unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowOrigins = tt.origins
			router := newRouter(CORS(cfg))

			req := httptest.NewRequest(http.MethodGet, "/ws/terminal", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	cfg := CORSConfig{AllowOrigins: []string{"http://localhost:3000"}}
	assert.True(t, cfg.OriginAllowed("http://localhost:3000"))
	assert.True(t, cfg.OriginAllowed(""))
	assert.False(t, cfg.OriginAllowed("http://evil.example"))

	assert.True(t, CORSConfig{AllowOrigins: []string{"*"}}.OriginAllowed("http://x"))
}
