package httpmiddleware

import (
	"net/http"
	"time"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/pkg/logger"
	"otherly/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceHeader carries the trace id in and out of the API.
	TraceHeader = "X-Request-ID"
	// TraceKey is the gin context key holding the trace id.
	TraceKey = "traceID"
)

// RateLimit rejects requests with 429 when the limiter has no token.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":    false,
				"error": gin.H{"kind": "RateLimited", "message": "too many requests"},
			})
			return
		}
		c.Next()
	}
}

// Trace assigns every request a trace id, reusing the caller's if present.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// TraceID returns the trace id set by Trace, or "" outside it.
func TraceID(c *gin.Context) string {
	return c.GetString(TraceKey)
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithTrace(TraceID(c)).WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.FullPath(),
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMS:  time.Since(start).Milliseconds(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}
