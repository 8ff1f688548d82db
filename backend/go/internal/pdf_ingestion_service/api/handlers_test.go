package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/pdf_ingestion_service/pipeline"
	"otherly/backend/go/internal/pdf_ingestion_service/service"
	"otherly/backend/go/internal/pdf_ingestion_service/store"
	"otherly/backend/go/pkg/logger"
	"otherly/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	ingestErr error
	submitted []models.IngestRequest
	uploads   map[string][]byte
	settings  *models.ProjectSettings
	manifest  []byte
}

func (s *stubService) Ingest(_ context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	return &models.IngestResult{OK: true, ProjectID: "default", IngestionID: "ingest-1", PageCount: 2, ManifestURL: "mem://m", Pages: []models.PageArtifact{}}, nil
}

func (s *stubService) AsyncEnabled() bool { return true }

func (s *stubService) Submit(_ context.Context, req models.IngestRequest) (*models.IngestionRecord, error) {
	s.submitted = append(s.submitted, req)
	return &models.IngestionRecord{ProjectID: "saga", IngestionID: "ingest-2", RequestID: "req-1", Status: models.IngestionStatusPending}, nil
}

func (s *stubService) GetIngestion(_ context.Context, projectID, ingestionID string) (*service.IngestionStatus, error) {
	if ingestionID != "ingest-1" {
		return nil, store.ErrNotFound
	}
	return &service.IngestionStatus{ProjectID: projectID, IngestionID: ingestionID, Committed: true}, nil
}

func (s *stubService) GetManifest(context.Context, string, string) ([]byte, error) {
	if s.manifest == nil {
		return nil, store.ErrNotFound
	}
	return s.manifest, nil
}

func (s *stubService) Render(_ context.Context, req service.RenderRequest) (*pipeline.RenderResult, error) {
	return &pipeline.RenderResult{PageCount: 9, StartPage: req.StartPage, EndPage: req.EndPage, PageImages: []pipeline.RenderedImage{}, Note: pipeline.NoImagesNote}, nil
}

func (s *stubService) Upload(_ context.Context, filename string, data []byte) (*service.UploadResult, error) {
	if s.uploads == nil {
		s.uploads = map[string][]byte{}
	}
	s.uploads[filename] = data
	return &service.UploadResult{URL: "mem://uploads/" + filename, Key: "uploads/" + filename, Size: len(data)}, nil
}

func (s *stubService) GetSettings(_ context.Context, projectID string) (*models.ProjectSettings, error) {
	if s.settings == nil {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, "settings", "settings store is not configured")
	}
	return s.settings, nil
}

func (s *stubService) SaveSettings(_ context.Context, projectID string, settings *models.ProjectSettings) (*models.ProjectSettings, error) {
	settings.ProjectID = projectID
	s.settings = settings
	return settings, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(svc IngestionService, checks map[string]HealthCheck, limiter ratelimiter.RateLimiter) *gin.Engine {
	return NewRouter(NewAPI(svc, checks, 1024, logger.Nop()), limiter, logger.Nop())
}

func do(t *testing.T, r http.Handler, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.OK)
	return body.Error.Kind, body.Error.Message
}

func TestIngestHandlerSync(t *testing.T) {
	r := newTestRouter(&stubService{}, nil, nil)

	w := do(t, r, http.MethodPost, "/api/v1/ingestions", []byte(`{"sourceUrl":"https://x/a.pdf"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var res models.IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, "ingest-1", res.IngestionID)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIngestHandlerAsync(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc, nil, nil)

	w := do(t, r, http.MethodPost, "/api/v1/ingestions?async=true", []byte(`{"sourceUrl":"https://x/a.pdf","projectId":"saga"}`), "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"ingestionId":"ingest-2"`)
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "saga", svc.submitted[0].ProjectID)
}

func TestIngestHandlerBadShape(t *testing.T) {
	r := newTestRouter(&stubService{}, nil, nil)

	w := do(t, r, http.MethodPost, "/api/v1/ingestions", []byte(`{"projectId":"saga"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	kind, _ := decodeError(t, w)
	assert.Equal(t, "BadRequest", kind)
}

func TestIngestHandlerMapsErrorKinds(t *testing.T) {
	tests := []struct {
		kind pipeline.Kind
		want int
	}{
		{pipeline.KindConfiguration, http.StatusInternalServerError},
		{pipeline.KindSourceFetch, http.StatusBadGateway},
		{pipeline.KindMalformedSource, http.StatusUnprocessableEntity},
		{pipeline.KindExternalService, http.StatusBadGateway},
		{pipeline.KindValidation, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc := &stubService{ingestErr: pipeline.Errorf(tt.kind, "test", "it broke")}
			r := newTestRouter(svc, nil, nil)

			w := do(t, r, http.MethodPost, "/api/v1/ingestions", []byte(`{"sourceUrl":"https://x/a.pdf"}`), "application/json")
			assert.Equal(t, tt.want, w.Code)
			kind, msg := decodeError(t, w)
			assert.Equal(t, string(tt.kind), kind)
			assert.Equal(t, "it broke", msg)
		})
	}
}

func TestUnclassifiedErrorIsHidden(t *testing.T) {
	svc := &stubService{ingestErr: errors.New("dial tcp 10.0.0.3:9000: refused")}
	r := newTestRouter(svc, nil, nil)

	w := do(t, r, http.MethodPost, "/api/v1/ingestions", []byte(`{"sourceUrl":"https://x/a.pdf"}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	kind, msg := decodeError(t, w)
	assert.Equal(t, "InternalError", kind)
	assert.NotContains(t, msg, "10.0.0.3")
}

func TestGetIngestionHandler(t *testing.T) {
	r := newTestRouter(&stubService{}, nil, nil)

	w := do(t, r, http.MethodGet, "/api/v1/ingestions/saga/ingest-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"committed":true`)

	w = do(t, r, http.MethodGet, "/api/v1/ingestions/saga/ingest-404", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetManifestHandler(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc, nil, nil)

	w := do(t, r, http.MethodGet, "/api/v1/ingestions/saga/ingest-1/manifest", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.manifest = []byte(`{"pageCount": 2}`)
	w = do(t, r, http.MethodGet, "/api/v1/ingestions/saga/ingest-1/manifest", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"pageCount": 2}`, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
}

func multipartBody(t *testing.T, field, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc, nil, nil)

	body, ct := multipartBody(t, "file", "book.pdf", []byte("%PDF-1.4"))
	w := do(t, r, http.MethodPost, "/api/v1/uploads", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"url":"mem://uploads/book.pdf"`)
	assert.Equal(t, []byte("%PDF-1.4"), svc.uploads["book.pdf"])

	body, ct = multipartBody(t, "attachment", "book.pdf", []byte("%PDF-1.4"))
	w = do(t, r, http.MethodPost, "/api/v1/uploads", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, "file", "big.pdf", make([]byte, 4096))
	w = do(t, r, http.MethodPost, "/api/v1/uploads", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRenderHandler(t *testing.T) {
	r := newTestRouter(&stubService{}, nil, nil)

	w := do(t, r, http.MethodPost, "/api/v1/renders", []byte(`{"sourceUrl":"https://x/a.pdf","startPage":2,"endPage":3}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var res pipeline.RenderResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.StartPage)
	assert.Equal(t, 3, res.EndPage)
	assert.NotNil(t, res.PageImages)

	w = do(t, r, http.MethodPost, "/api/v1/renders", []byte(`{"startPage":2}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsHandlers(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc, nil, nil)

	w := do(t, r, http.MethodGet, "/api/v1/settings/saga", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/settings/saga", []byte(`{"pdfExtractionRules":"tag dragons","fieldRules":{"a":1}}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/settings/saga", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.ProjectSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "saga", got.ProjectID)
	assert.Equal(t, "tag dragons", got.PdfExtractionRules)
	assert.JSONEq(t, `{"a":1}`, string(got.FieldRules))
}

func TestHealthHandler(t *testing.T) {
	healthy := map[string]HealthCheck{"minio": func(context.Context) error { return nil }}
	w := do(t, newTestRouter(&stubService{}, healthy, nil), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"minio":"ok"`)

	healthy["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w = do(t, newTestRouter(&stubService{}, healthy, nil), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	r := newTestRouter(&stubService{}, nil, ratelimiter.NewTokenBucket(0.001, 1))

	w := do(t, r, http.MethodGet, "/api/v1/ingestions/saga/ingest-1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/ingestions/saga/ingest-1", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, r, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
