package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"otherly/backend/go/internal/config"
	"otherly/backend/go/internal/database/kafka"
	"otherly/backend/go/internal/database/minio"
	"otherly/backend/go/internal/database/mongo"
	"otherly/backend/go/internal/database/mysql"
	"otherly/backend/go/internal/database/redis"
	"otherly/backend/go/internal/llm"
	"otherly/backend/go/internal/models"
	"otherly/backend/go/internal/ocr"
	"otherly/backend/go/internal/pdf_ingestion_service/api"
	"otherly/backend/go/internal/pdf_ingestion_service/consumer"
	"otherly/backend/go/internal/pdf_ingestion_service/pipeline"
	"otherly/backend/go/internal/pdf_ingestion_service/publisher"
	"otherly/backend/go/internal/pdf_ingestion_service/service"
	"otherly/backend/go/internal/pdf_ingestion_service/store"
	"otherly/backend/go/pkg/circuitbreaker"
	httpclient "otherly/backend/go/pkg/http"
	"otherly/backend/go/pkg/logger"
	"otherly/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

const (
	serviceName = "pdf_ingestion_service"

	settingsCacheSize = 256
	settingsCacheTTL  = time.Minute
)

func main() {
	configPath := flag.String("config", "backend/go/internal/config/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New(serviceName, "", "")
	fatal := func(msg string, err error) {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error(), Kind: string(pipeline.KindOf(err))}).Fatal(msg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	checks := map[string]api.HealthCheck{}

	// 3. Object storage, required
	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		fatal("Failed to connect to MinIO", err)
	}
	blobs := store.NewMinIOBlobStore(minioClient, cfg.Databases.MinIO)
	checks["minio"] = minio.HealthCheck
	serviceLogger.Info("Connected to MinIO")

	// 4. Optional stores
	deps := service.Deps{
		Blobs:          blobs,
		StorageRoot:    cfg.Ingestion.StorageRoot,
		MaxUploadBytes: cfg.Ingestion.MaxUploadBytes,
	}
	if cfg.Databases.MongoDB.Address != "" {
		mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
		if err != nil {
			fatal("Failed to connect to MongoDB", err)
		}
		deps.Records = store.NewMongoIngestionStore(mongo.Records(mongoClient, &cfg.Databases.MongoDB))
		checks["mongodb"] = mongo.HealthCheck
		serviceLogger.Info("Ingestion records stored in MongoDB")
	}
	if cfg.Databases.Redis.Address != "" {
		redisClient, err := redis.GetClient(&cfg.Databases.Redis)
		if err != nil {
			fatal("Failed to connect to Redis", err)
		}
		deps.Progress = store.NewRedisProgressStore(redisClient.Client, redisClient.KeyPrefix, redisClient.ProgressTTL)
		checks["redis"] = redis.HealthCheck
		serviceLogger.Info("Ingestion progress cached in Redis")
	}
	if cfg.Databases.MySQL.Address != "" {
		db, err := mysql.GetDB(&cfg.Databases.MySQL)
		if err != nil {
			fatal("Failed to connect to MySQL", err)
		}
		deps.Settings = store.NewCachedSettingsStore(store.NewGormSettingsStore(db), settingsCacheSize, settingsCacheTTL)
		checks["mysql"] = mysql.HealthCheck
		serviceLogger.Info("Project settings stored in MySQL")
	}

	// 5. OCR engine
	var engine ocr.Engine
	switch cfg.Ingestion.OcrEngine {
	case "textlayer":
		engine = ocr.NewTextLayerEngine(cfg.DocAI.MaxPagesPerCall)
	default:
		docai, err := ocr.NewDocAIEngine(ctx, cfg.DocAI)
		if err != nil {
			fatal("Failed to create Document AI client", err)
		}
		closers = append(closers, docai)
		engine = docai
	}
	serviceLogger.WithField("engine", engine.Name()).Info("OCR engine initialized")

	// 6. Resilience around external services
	cbCfg := cfg.Middleware.CircuitBreaker
	ocrBreaker := httpclient.NewBreaker("ocr", cbCfg, circuitbreaker.WithClassifier(pipeline.ServiceFailure))
	llmBreaker := httpclient.NewBreaker("llm", cbCfg, circuitbreaker.WithClassifier(pipeline.ServiceFailure))
	retry := pipeline.RetryFromConfig(cfg.Retry)
	var pacer ratelimiter.Waiter
	if cfg.Ingestion.OcrRate > 0 {
		pacer = ratelimiter.NewTokenBucket(cfg.Ingestion.OcrRate, cfg.Ingestion.OcrBurst)
	}

	// 7. Tagging
	gen, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		fatal("Failed to create LLM client", err)
	}
	if c, ok := gen.(io.Closer); ok {
		closers = append(closers, c)
	}
	if gen == nil {
		serviceLogger.Warn("No text-generation credential configured, pages will get placeholder tags")
	}
	tagger := pipeline.NewTagger(gen, llmBreaker, retry, cfg.Ingestion.TagBatchSize, cfg.Ingestion.ExcerptChars)

	// 8. Pipeline and service
	orch := pipeline.NewOrchestrator(pipeline.NewPdfSplitter(), engine, pacer, ocrBreaker, retry, serviceLogger)
	normalizer := pipeline.ImageNormalizer{MaxWidth: cfg.Ingestion.MaxDisplayWidth}
	deps.Runner = pipeline.New(orch, normalizer, tagger, blobs, cfg.Ingestion.PageConcurrency, serviceLogger)
	deps.Fetcher = httpclient.NewClient(cbCfg, config.Duration(cfg.Ingestion.FetchTimeout), cfg.Ingestion.MaxSourceBytes)

	// 9. Asynchronous ingestion
	var requestConsumer *consumer.RequestConsumer
	if cfg.Databases.Kafka.Enabled() {
		kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			fatal("Failed to connect to Kafka", err)
		}
		closers = append(closers, kafkaClient)
		deps.Publisher = publisher.NewIngestionPublisher(kafkaClient.Writer, cfg.Databases.Kafka.RequestsTopic, cfg.Databases.Kafka.EventsTopic, serviceLogger)
		checks["kafka"] = kafkaClient.HealthCheck
		reader := kafkaClient.NewReader(cfg.Databases.Kafka.RequestsTopic, cfg.Databases.Kafka.GroupID)
		requestConsumer = consumer.NewRequestConsumer(reader, serviceLogger)
	}
	ingestionService := service.NewIngestionService(deps, serviceLogger)

	var consumerDone <-chan struct{}
	if requestConsumer != nil {
		consumerDone = requestConsumer.Start(ctx, ingestionService.HandleMessage)
		serviceLogger.Info("Kafka request consumer started")
	}

	// 10. HTTP server
	gin.SetMode(gin.ReleaseMode)
	var limiter ratelimiter.RateLimiter
	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		limiter = ratelimiter.NewTokenBucket(rl.Rate, rl.Capacity)
	}
	apiHandler := api.NewAPI(ingestionService, checks, cfg.Ingestion.MaxUploadBytes, serviceLogger)
	router := api.NewRouter(apiHandler, limiter, serviceLogger)

	srv := httpclient.NewServer(cfg.Server.Address, router, config.Duration(cfg.Server.ShutdownTimeout))
	serviceLogger.Info("Starting HTTP server on " + srv.Addr())
	if err := srv.Run(ctx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("HTTP server stopped with error")
	}
	stop()

	// 11. Shutdown
	if requestConsumer != nil {
		<-consumerDone
		if err := requestConsumer.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka consumer")
		}
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing client")
		}
	}
	shutdownCtx := context.Background()
	if deps.Records != nil {
		if err := mongo.Close(shutdownCtx); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
		}
	}
	if deps.Progress != nil {
		if err := redis.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Redis")
		}
	}
	if deps.Settings != nil {
		if err := mysql.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing MySQL")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}
