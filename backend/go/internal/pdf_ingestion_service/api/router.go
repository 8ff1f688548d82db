package api

import (
	"otherly/backend/go/pkg/httpmiddleware"
	"otherly/backend/go/pkg/logger"
	"otherly/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with tracing, request logging and, when
// limiter is non-nil, rate limiting on the API group.
func NewRouter(api *API, limiter ratelimiter.RateLimiter, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), httpmiddleware.Trace(), httpmiddleware.RequestLogger(log))
	RegisterRoutes(router, api, limiter)
	return router
}

// RegisterRoutes registers all the routes for the PDF ingestion service.
func RegisterRoutes(router *gin.Engine, api *API, limiter ratelimiter.RateLimiter) {
	router.GET("/healthz", api.HealthHandler)

	v1 := router.Group("/api/v1")
	if limiter != nil {
		v1.Use(httpmiddleware.RateLimit(limiter))
	}

	ingestions := v1.Group("/ingestions")
	{
		ingestions.POST("", api.IngestHandler)
		ingestions.GET("/:projectId/:id", api.GetIngestionHandler)
		ingestions.GET("/:projectId/:id/manifest", api.GetManifestHandler)
	}

	v1.POST("/uploads", api.UploadHandler)
	v1.POST("/renders", api.RenderHandler)

	settings := v1.Group("/settings")
	{
		settings.GET("/:projectId", api.GetSettingsHandler)
		settings.POST("/:projectId", api.SaveSettingsHandler)
	}
}
