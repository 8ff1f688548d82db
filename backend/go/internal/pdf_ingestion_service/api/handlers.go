package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/pdf_ingestion_service/pipeline"
	"otherly/backend/go/internal/pdf_ingestion_service/service"
	"otherly/backend/go/internal/pdf_ingestion_service/store"
	"otherly/backend/go/pkg/httpmiddleware"
	"otherly/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// IngestionService is the part of service.IngestionService the handlers call.
type IngestionService interface {
	Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error)
	AsyncEnabled() bool
	Submit(ctx context.Context, req models.IngestRequest) (*models.IngestionRecord, error)
	GetIngestion(ctx context.Context, projectID, ingestionID string) (*service.IngestionStatus, error)
	GetManifest(ctx context.Context, projectID, ingestionID string) ([]byte, error)
	Render(ctx context.Context, req service.RenderRequest) (*pipeline.RenderResult, error)
	Upload(ctx context.Context, filename string, data []byte) (*service.UploadResult, error)
	GetSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error)
	SaveSettings(ctx context.Context, projectID string, settings *models.ProjectSettings) (*models.ProjectSettings, error)
}

// HealthCheck pings one backend.
type HealthCheck func(ctx context.Context) error

// API provides handlers for the PDF ingestion service.
type API struct {
	service        IngestionService
	checks         map[string]HealthCheck
	maxUploadBytes int64
	logger         *logger.Logger
}

// NewAPI creates a new API handler. checks are run by the health endpoint.
func NewAPI(service IngestionService, checks map[string]HealthCheck, maxUploadBytes int64, logger *logger.Logger) *API {
	return &API{
		service:        service,
		checks:         checks,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

var kindStatus = map[pipeline.Kind]int{
	pipeline.KindConfiguration:   http.StatusInternalServerError,
	pipeline.KindSourceFetch:     http.StatusBadGateway,
	pipeline.KindMalformedSource: http.StatusUnprocessableEntity,
	pipeline.KindExternalService: http.StatusBadGateway,
	pipeline.KindValidation:      http.StatusUnprocessableEntity,
}

func errorBody(kind, message string) gin.H {
	return gin.H{"ok": false, "error": gin.H{"kind": kind, "message": message}}
}

// fail writes err as the structured error response.
func (a *API) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("NotFound", "ingestion not found"))
		return
	}
	kind := pipeline.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		a.logger.WithTrace(httpmiddleware.TraceID(c)).WithError(models.ErrorInfo{Message: err.Error()}).Error("Unclassified handler error")
		c.JSON(http.StatusInternalServerError, errorBody("InternalError", "internal error"))
		return
	}
	c.JSON(status, errorBody(string(kind), pipeline.Message(err)))
}

func (a *API) badRequest(c *gin.Context, err error) {
	a.logger.WithTrace(httpmiddleware.TraceID(c)).WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
	c.JSON(http.StatusBadRequest, errorBody("BadRequest", "invalid request payload"))
}

// IngestHandler runs an ingestion, or queues it when async=true.
func (a *API) IngestHandler(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		rec, err := a.service.Submit(c.Request.Context(), req)
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"ok":          true,
			"projectId":   rec.ProjectID,
			"ingestionId": rec.IngestionID,
			"requestId":   rec.RequestID,
			"status":      rec.Status,
		})
		return
	}

	res, err := a.service.Ingest(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetIngestionHandler reports the record, progress and commit state of an ingestion.
func (a *API) GetIngestionHandler(c *gin.Context) {
	status, err := a.service.GetIngestion(c.Request.Context(), c.Param("projectId"), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetManifestHandler returns the committed manifest as stored.
func (a *API) GetManifestHandler(c *gin.Context) {
	body, err := a.service.GetManifest(c.Request.Context(), c.Param("projectId"), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// UploadHandler stores the multipart field "file".
func (a *API) UploadHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		a.badRequest(c, err)
		return
	}
	if a.maxUploadBytes > 0 && fh.Size > a.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody(string(pipeline.KindValidation), "file is too large"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		a.badRequest(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		a.badRequest(c, err)
		return
	}

	res, err := a.service.Upload(c.Request.Context(), fh.Filename, data)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RenderHandler renders and stores page images for one page range.
func (a *API) RenderHandler(c *gin.Context) {
	var req service.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, err)
		return
	}
	res, err := a.service.Render(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetSettingsHandler returns a project's settings.
func (a *API) GetSettingsHandler(c *gin.Context) {
	settings, err := a.service.GetSettings(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// SaveSettingsHandler replaces a project's settings.
func (a *API) SaveSettingsHandler(c *gin.Context) {
	var settings models.ProjectSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		a.badRequest(c, err)
		return
	}
	saved, err := a.service.SaveSettings(c.Request.Context(), c.Param("projectId"), &settings)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// HealthHandler runs every health check and reports 503 if any fails.
func (a *API) HealthHandler(c *gin.Context) {
	status := http.StatusOK
	results := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"ok": status == http.StatusOK, "checks": results})
}
