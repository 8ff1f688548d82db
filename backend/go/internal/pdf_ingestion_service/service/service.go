package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/pdf_ingestion_service/pipeline"
	"otherly/backend/go/internal/pdf_ingestion_service/store"
	httpclient "otherly/backend/go/pkg/http"
	"otherly/backend/go/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Fetcher downloads source documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httpclient.Response, error)
}

// Runner executes ingestions and range renders.
type Runner interface {
	Execute(ctx context.Context, job pipeline.Job) (*pipeline.FinalizedManifest, error)
	Render(ctx context.Context, doc models.SourceDocument, prefix string, start, end int) (*pipeline.RenderResult, error)
}

// Publisher queues ingestion requests and announces outcomes.
type Publisher interface {
	PublishRequest(ctx context.Context, msg models.IngestionMessage) error
	PublishEvent(ctx context.Context, event models.IngestionEvent) error
}

// Deps are the collaborators of an IngestionService. Records, Progress,
// Settings and Publisher are optional.
type Deps struct {
	Fetcher     Fetcher
	Runner      Runner
	Blobs       store.BlobStore
	Records     store.IngestionStore
	Progress    store.ProgressStore
	Settings    store.SettingsStore
	Publisher   Publisher
	StorageRoot string
	// MaxUploadBytes bounds Upload; zero means unbounded.
	MaxUploadBytes int64
}

// IngestionService is the entry point of every ingestion, synchronous or queued.
type IngestionService struct {
	deps      Deps
	addresser pipeline.ContentAddresser
	logger    *logger.Logger
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(deps Deps, logger *logger.Logger) *IngestionService {
	return &IngestionService{
		deps:      deps,
		addresser: pipeline.ContentAddresser{Root: deps.StorageRoot},
		logger:    logger,
	}
}

// IngestionStatus is the view returned for one ingestion.
type IngestionStatus struct {
	ProjectID   string                  `json:"projectId"`
	IngestionID string                  `json:"ingestionId"`
	Prefix      string                  `json:"prefix"`
	Committed   bool                    `json:"committed"`
	ManifestURL string                  `json:"manifestUrl,omitempty"`
	Record      *models.IngestionRecord `json:"record,omitempty"`
	Progress    *models.Progress        `json:"progress,omitempty"`
}

// RenderRequest asks for page images of a 1-based inclusive page range.
type RenderRequest struct {
	SourceURL string `json:"sourceUrl" binding:"required"`
	StartPage int    `json:"startPage"`
	EndPage   int    `json:"endPage"`
	Prefix    string `json:"prefix,omitempty"`
}

// UploadResult describes a stored upload.
type UploadResult struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

var uploadTypes = map[string]bool{
	models.MediaTypePDF: true,
	models.MediaTypePNG: true,
	"image/jpeg":        true,
	"image/webp":        true,
}

func checkSourceURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return pipeline.Errorf(pipeline.KindValidation, "request", "sourceUrl must be an absolute http(s) URL")
	}
	return nil
}

// Ingest runs one ingestion to completion and returns the committed manifest summary.
func (s *IngestionService) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	return s.ingest(ctx, uuid.New().String(), req)
}

func (s *IngestionService) ingest(ctx context.Context, requestID string, req models.IngestRequest) (*models.IngestResult, error) {
	if err := checkSourceURL(req.SourceURL); err != nil {
		return nil, err
	}
	project := pipeline.NormalizeProjectID(req.ProjectID)
	id, err := s.addresser.Address(project, req.SourceURL, req.IngestionID)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithTrace(requestID).WithField("project_id", project).WithField("ingestion_id", id.ID)
	log.Info("Ingestion started")

	start := time.Now()
	s.saveRecord(ctx, log, &models.IngestionRecord{
		ID:          models.RecordKey(project, id.ID),
		ProjectID:   project,
		IngestionID: id.ID,
		SourceURL:   pipeline.CanonicalSourceURL(req.SourceURL),
		Status:      models.IngestionStatusRunning,
		RequestID:   requestID,
		SubmittedAt: start.UTC(),
	})

	final, err := s.run(ctx, project, id, req.SourceURL)
	s.finish(ctx, log, requestID, project, id.ID, final, err)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Kind: string(pipeline.KindOf(err))}).Error("Ingestion failed")
		return nil, err
	}
	log.WithPayload(map[string]interface{}{"elapsed_ms": time.Since(start).Milliseconds()}).Info("Ingestion finished")

	m := final.Manifest
	return &models.IngestResult{
		OK:                 true,
		ProjectID:          project,
		IngestionID:        id.ID,
		Prefix:             id.Prefix,
		SourceURL:          m.SourceURL,
		PageCount:          m.PageCount,
		ManifestURL:        final.ManifestURL,
		FullTextURL:        m.FullTextURL,
		TagsURL:            m.TagsURL,
		PageImagesCount:    m.PageImagesCount,
		ImagesMissingCount: m.ImagesMissingCount,
		Pages:              m.Pages,
	}, nil
}

func (s *IngestionService) run(ctx context.Context, project string, id models.IngestionIdentifier, sourceURL string) (*pipeline.FinalizedManifest, error) {
	doc, err := s.fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	return s.deps.Runner.Execute(ctx, pipeline.Job{
		ID:        id,
		SourceURL: pipeline.CanonicalSourceURL(sourceURL),
		Doc:       doc,
		Rules:     s.rules(ctx, project),
		Progress:  s.progressSink(ctx, project, id.ID),
	})
}

// fetch downloads a source and checks that its bytes are a PDF.
func (s *IngestionService) fetch(ctx context.Context, sourceURL string) (models.SourceDocument, error) {
	resp, err := s.deps.Fetcher.Fetch(ctx, strings.TrimSpace(sourceURL))
	if err != nil {
		return models.SourceDocument{}, &pipeline.Error{Kind: pipeline.KindSourceFetch, Op: "fetch", Message: "cannot download source", Err: err}
	}
	if detected := mimetype.Detect(resp.Body); !detected.Is(models.MediaTypePDF) {
		return models.SourceDocument{}, pipeline.Errorf(pipeline.KindMalformedSource, "fetch", "source is %s, not a PDF", detected.String())
	}
	return models.SourceDocument{Bytes: resp.Body, MediaType: models.MediaTypePDF}, nil
}

func (s *IngestionService) rules(ctx context.Context, project string) string {
	if s.deps.Settings == nil {
		return ""
	}
	settings, err := s.deps.Settings.Get(ctx, project)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithField("project_id", project).Warn("Cannot load project settings, tagging without extraction rules")
		return ""
	}
	return settings.PdfExtractionRules
}

func (s *IngestionService) progressSink(ctx context.Context, project, ingestionID string) func(models.Progress) {
	if s.deps.Progress == nil {
		return nil
	}
	return func(p models.Progress) {
		if err := s.deps.Progress.Save(ctx, project, ingestionID, p); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithField("ingestion_id", ingestionID).Warn("Failed to save ingestion progress")
		}
	}
}

func (s *IngestionService) saveRecord(ctx context.Context, log *logger.Logger, rec *models.IngestionRecord) {
	if s.deps.Records == nil {
		return
	}
	if err := s.deps.Records.Upsert(ctx, rec); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to store ingestion record")
	}
}

// finish records the outcome and publishes the completion event. Neither
// step can change the result of the ingestion.
func (s *IngestionService) finish(ctx context.Context, log *logger.Logger, requestID, project, ingestionID string, final *pipeline.FinalizedManifest, runErr error) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()

	outcome := store.Outcome{Status: models.IngestionStatusSuccess, CompletedAt: now}
	if runErr != nil {
		outcome.Status = models.IngestionStatusFailed
		outcome.ErrorKind = string(pipeline.KindOf(runErr))
		outcome.Error = pipeline.Message(runErr)
	} else {
		outcome.ManifestURL = final.ManifestURL
		outcome.PageCount = final.Manifest.PageCount
	}

	if s.deps.Records != nil {
		if err := s.deps.Records.Complete(ctx, project, ingestionID, outcome); err != nil {
			log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to complete ingestion record")
		}
	}
	if s.deps.Publisher != nil {
		event := models.IngestionEvent{
			RequestID:   requestID,
			ProjectID:   project,
			IngestionID: ingestionID,
			Status:      outcome.Status,
			ManifestURL: outcome.ManifestURL,
			PageCount:   outcome.PageCount,
			ErrorKind:   outcome.ErrorKind,
			Error:       outcome.Error,
			OccurredAt:  now,
		}
		if err := s.deps.Publisher.PublishEvent(ctx, event); err != nil {
			log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to publish ingestion event")
		}
	}
}

// AsyncEnabled reports whether Submit can queue requests.
func (s *IngestionService) AsyncEnabled() bool {
	return s.deps.Publisher != nil
}

// Submit records a pending ingestion and queues it for the consumer.
func (s *IngestionService) Submit(ctx context.Context, req models.IngestRequest) (*models.IngestionRecord, error) {
	if s.deps.Publisher == nil {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, "submit", "asynchronous ingestion is not configured")
	}
	if err := checkSourceURL(req.SourceURL); err != nil {
		return nil, err
	}
	project := pipeline.NormalizeProjectID(req.ProjectID)
	id, err := s.addresser.Address(project, req.SourceURL, req.IngestionID)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	log := s.logger.WithTrace(requestID).WithField("ingestion_id", id.ID)
	rec := &models.IngestionRecord{
		ID:          models.RecordKey(project, id.ID),
		ProjectID:   project,
		IngestionID: id.ID,
		SourceURL:   pipeline.CanonicalSourceURL(req.SourceURL),
		Status:      models.IngestionStatusPending,
		RequestID:   requestID,
		SubmittedAt: time.Now().UTC(),
	}
	s.saveRecord(ctx, log, rec)

	msg := models.IngestionMessage{
		RequestID: requestID,
		Request: models.IngestRequest{
			SourceURL:   rec.SourceURL,
			ProjectID:   project,
			IngestionID: id.ID,
		},
	}
	if err := s.deps.Publisher.PublishRequest(ctx, msg); err != nil {
		rec.Status = models.IngestionStatusFailed
		rec.ErrorKind = string(pipeline.KindExternalService)
		rec.Error = "failed to queue ingestion"
		rec.CompletedAt = time.Now().UTC()
		s.saveRecord(context.WithoutCancel(ctx), log, rec)
		return nil, &pipeline.Error{Kind: pipeline.KindExternalService, Op: "submit", Message: "failed to queue ingestion", Err: err}
	}
	log.Info("Ingestion queued")
	return rec, nil
}

// HandleMessage runs a queued ingestion. Undecodable messages are dropped.
func (s *IngestionService) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var m models.IngestionMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"offset": msg.Offset,
			"key":    string(msg.Key),
		}).Error("Dropping undecodable ingestion request")
		return nil
	}
	if m.RequestID == "" {
		m.RequestID = uuid.New().String()
	}
	_, err := s.ingest(ctx, m.RequestID, m.Request)
	return err
}

func (s *IngestionService) locate(projectID, ingestionID string) (string, models.IngestionIdentifier, error) {
	project := pipeline.NormalizeProjectID(projectID)
	id, err := s.addresser.Address(project, "", ingestionID)
	return project, id, err
}

// GetIngestion reports the record, live progress and commit state of an
// ingestion. ErrNotFound means none of them exist.
func (s *IngestionService) GetIngestion(ctx context.Context, projectID, ingestionID string) (*IngestionStatus, error) {
	project, id, err := s.locate(projectID, ingestionID)
	if err != nil {
		return nil, err
	}
	status := &IngestionStatus{ProjectID: project, IngestionID: id.ID, Prefix: id.Prefix}

	committed, err := s.deps.Blobs.Exists(ctx, pipeline.ManifestKey(id.Prefix))
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "status.manifest", err)
	}
	status.Committed = committed
	if committed {
		status.ManifestURL = s.deps.Blobs.URL(pipeline.ManifestKey(id.Prefix))
	}

	if s.deps.Records != nil {
		rec, err := s.deps.Records.Get(ctx, project, id.ID)
		switch {
		case err == nil:
			status.Record = rec
		case !errors.Is(err, store.ErrNotFound):
			return nil, pipeline.Wrap(pipeline.KindExternalService, "status.record", err)
		}
	}
	if s.deps.Progress != nil {
		p, err := s.deps.Progress.Load(ctx, project, id.ID)
		switch {
		case err == nil:
			status.Progress = p
		case !errors.Is(err, store.ErrNotFound):
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to load ingestion progress")
		}
	}

	if !status.Committed && status.Record == nil && status.Progress == nil {
		return nil, store.ErrNotFound
	}
	return status, nil
}

// GetManifest returns the committed manifest body, or ErrNotFound.
func (s *IngestionService) GetManifest(ctx context.Context, projectID, ingestionID string) ([]byte, error) {
	_, id, err := s.locate(projectID, ingestionID)
	if err != nil {
		return nil, err
	}
	body, err := s.deps.Blobs.Get(ctx, pipeline.ManifestKey(id.Prefix))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "manifest.get", err)
	}
	return body, err
}

// renderPrefix sanitizes every segment of a caller-supplied prefix.
func (s *IngestionService) renderPrefix(raw string) string {
	var parts []string
	for _, seg := range strings.Split(raw, "/") {
		if seg = pipeline.SanitizeSegment(seg); seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		return path.Join(pipeline.SanitizeSegment(s.deps.StorageRoot), "renders", uuid.New().String())
	}
	return path.Join(parts...)
}

// Render stores page images of one page range of a remote PDF.
func (s *IngestionService) Render(ctx context.Context, req RenderRequest) (*pipeline.RenderResult, error) {
	if err := checkSourceURL(req.SourceURL); err != nil {
		return nil, err
	}
	doc, err := s.fetch(ctx, req.SourceURL)
	if err != nil {
		return nil, err
	}
	start, end := req.StartPage, req.EndPage
	if start == 0 {
		start = 1
	}
	if end == 0 {
		end = start
	}
	return s.deps.Runner.Render(ctx, doc, s.renderPrefix(req.Prefix), start, end)
}

// Upload stores a PDF or image under uploads/ and returns its public URL.
func (s *IngestionService) Upload(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, pipeline.Errorf(pipeline.KindValidation, "upload", "file is empty")
	}
	if s.deps.MaxUploadBytes > 0 && int64(len(data)) > s.deps.MaxUploadBytes {
		return nil, pipeline.Errorf(pipeline.KindValidation, "upload", "file exceeds %d bytes", s.deps.MaxUploadBytes)
	}
	detected := mimetype.Detect(data)
	contentType := strings.SplitN(detected.String(), ";", 2)[0]
	if !uploadTypes[contentType] {
		return nil, pipeline.Errorf(pipeline.KindValidation, "upload", "file type %s is not allowed", contentType)
	}

	name := pipeline.SanitizeSegment(path.Base(filename))
	if name == "" {
		name = "file" + detected.Extension()
	}
	key := "uploads/" + uuid.New().String() + "-" + name

	u, err := s.deps.Blobs.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindExternalService, Op: "upload", Message: "cannot store upload", Err: err}
	}
	s.logger.WithPayload(map[string]interface{}{"key": key, "size": len(data), "content_type": contentType}).Info("Upload stored")
	return &UploadResult{URL: u, Key: key, ContentType: contentType, Size: len(data)}, nil
}

func (s *IngestionService) settingsStore() (store.SettingsStore, error) {
	if s.deps.Settings == nil {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, "settings", "settings store is not configured")
	}
	return s.deps.Settings, nil
}

// GetSettings returns a project's settings, creating empty ones on first use.
func (s *IngestionService) GetSettings(ctx context.Context, projectID string) (*models.ProjectSettings, error) {
	st, err := s.settingsStore()
	if err != nil {
		return nil, err
	}
	settings, err := st.Get(ctx, pipeline.NormalizeProjectID(projectID))
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "settings.get", err)
	}
	return settings, nil
}

// SaveSettings replaces a project's settings.
func (s *IngestionService) SaveSettings(ctx context.Context, projectID string, settings *models.ProjectSettings) (*models.ProjectSettings, error) {
	st, err := s.settingsStore()
	if err != nil {
		return nil, err
	}
	settings.ProjectID = pipeline.NormalizeProjectID(projectID)
	if len(settings.FieldRules) == 0 {
		settings.FieldRules = []byte("{}")
	} else if !json.Valid(settings.FieldRules) {
		return nil, pipeline.Errorf(pipeline.KindValidation, "settings", "fieldRules must be valid JSON")
	}
	settings.UpdatedAt = time.Now().UTC()

	if err := st.Save(ctx, settings); err != nil {
		return nil, pipeline.Wrap(pipeline.KindExternalService, "settings.save", err)
	}
	return settings, nil
}
