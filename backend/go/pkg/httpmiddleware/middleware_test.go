package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"otherly/backend/go/pkg/logger"
	"otherly/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, TraceID(c))
	})
	return r
}

func TestRateLimitRejectsWhenBucketEmpty(t *testing.T) {
	r := newRouter(RateLimit(ratelimiter.NewTokenBucket(0.001, 2)))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTraceReusesCallerHeader(t *testing.T) {
	r := newRouter(Trace(), RequestLogger(logger.Nop()))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace-from-caller")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-from-caller", w.Body.String())
	assert.Equal(t, "trace-from-caller", w.Header().Get(TraceHeader))
}

func TestTraceGeneratesID(t *testing.T) {
	r := newRouter(Trace())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(TraceHeader))
}
