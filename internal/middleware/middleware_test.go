package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

func TestRecovererWritesJSON(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), logging.FromZap(zap.New(core)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/buckets", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Infrastructure","message":"internal error"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}

func TestRecovererRepanicsAbort(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }), logging.Nop())
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/buckets", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r http.Handler, tenant string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/buckets", nil)
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerTenant(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.Nop())
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	r := newLimitedRouter(rl)

	assert.Equal(t, http.StatusOK, hit(r, "tenant-a").Code)
	assert.Equal(t, http.StatusOK, hit(r, "tenant-a").Code)
	w := hit(r, "tenant-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// other tenants have their own bucket
	assert.Equal(t, http.StatusOK, hit(r, "tenant-b").Code)
	assert.Equal(t, http.StatusOK, hit(r, "").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit(r, "tenant-a").Code)
}

func TestRateLimitDropsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(1, 1, logging.Nop())
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	r := newLimitedRouter(rl)

	hit(r, "a")
	hit(r, "b")
	now = now.Add(idleAfter + sweepEvery + time.Second)
	hit(r, "c")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.entries, 1)
	assert.Contains(t, rl.entries, "c")
}
