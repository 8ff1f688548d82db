package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint      string `yaml:"endpoint"`      // host:port of the S3-compatible endpoint
	AccessKey     string `yaml:"accessKey"`     // access key id
	SecretKey     string `yaml:"secretKey"`     // secret access key
	Bucket        string `yaml:"bucket"`        // bucket holding every ingestion artifact
	Secure        bool   `yaml:"secure"`        // use HTTPS
	Region        string `yaml:"region"`        // optional bucket region
	PublicBaseURL string `yaml:"publicBaseURL"` // base of the public object URLs; defaults to the endpoint
}

// MongoConfig holds the ingestion record store connection settings.
type MongoConfig struct {
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// ConnectTimeout bounds the initial connect and ping, e.g. "10s".
	ConnectTimeout string `yaml:"connectTimeout"`
}

// RedisConfig holds the progress cache connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// ProgressTTL is how long a progress entry survives after its last update, e.g. "24h".
	ProgressTTL string `yaml:"progressTTL"`
	// KeyPrefix namespaces progress hashes, e.g. "otherly:progress".
	KeyPrefix string `yaml:"keyPrefix"`
	PoolSize  int    `yaml:"poolSize"`
}

// MySQLConfig holds the settings store connection settings.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// KafkaConfig holds the broker list and the topics of the ingestion service.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	RequestsTopic string   `yaml:"requestsTopic"`
	EventsTopic   string   `yaml:"eventsTopic"`
	GroupID       string   `yaml:"groupID"`
}

// Enabled reports whether asynchronous ingestion is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.RequestsTopic != ""
}

// DatabaseConfigs groups every backing store.
type DatabaseConfigs struct {
	MinIO   MinIOConfig `yaml:"minio"`
	MongoDB MongoConfig `yaml:"mongodb"`
	Redis   RedisConfig `yaml:"redis"`
	MySQL   MySQLConfig `yaml:"mysql"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// AppInfo is the 'app' section.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig is the 'logger' section.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// ServerConfig is the 'server' section.
type ServerConfig struct {
	Address         string `yaml:"address"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
}

// GeminiConfig configures the text-generation model.
type GeminiConfig struct {
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// LLMConfig selects the text-generation provider.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "gemini"; empty disables tagging
	Gemini   GeminiConfig `yaml:"gemini"`
}

// Configured reports whether a text-generation credential is present.
func (c LLMConfig) Configured() bool {
	return c.Provider != "" && c.Gemini.APIKey != ""
}

// DocAIConfig configures the Document AI processor.
type DocAIConfig struct {
	ProjectID       string `yaml:"projectId"`
	Location        string `yaml:"location"`
	ProcessorID     string `yaml:"processorId"`
	CredentialsFile string `yaml:"credentialsFile"` // path to a service account JSON file
	CredentialsJSON string `yaml:"credentialsJson"` // inline service account JSON, usually ${GCP_SA_KEY_JSON}
	MaxPagesPerCall int    `yaml:"maxPagesPerCall"` // the processor's page ceiling
	Timeout         string `yaml:"timeout"`
}

// IngestionConfig holds the pipeline knobs that used to be scattered constants.
type IngestionConfig struct {
	StorageRoot     string  `yaml:"storageRoot"`     // top-level key segment, e.g. "otherly"
	OcrEngine       string  `yaml:"ocrEngine"`       // "docai" or "textlayer"
	TagBatchSize    int     `yaml:"tagBatchSize"`    // pages per text-generation call
	MaxDisplayWidth int     `yaml:"maxDisplayWidth"` // page images wider than this are downscaled
	ExcerptChars    int     `yaml:"excerptChars"`    // per-page excerpt size sent for tagging
	PageConcurrency int     `yaml:"pageConcurrency"` // parallel page workers within one chunk
	FetchTimeout    string  `yaml:"fetchTimeout"`
	MaxSourceBytes  int64   `yaml:"maxSourceBytes"`
	MaxUploadBytes  int64   `yaml:"maxUploadBytes"`
	OcrRate         float64 `yaml:"ocrRate"`  // OCR submissions per second
	OcrBurst        int     `yaml:"ocrBurst"` // OCR submission burst
}

// RetryConfig bounds retries of external service calls.
type RetryConfig struct {
	MaxAttempts int    `yaml:"maxAttempts"`
	BaseDelay   string `yaml:"baseDelay"`
	MaxDelay    string `yaml:"maxDelay"`
}

// RateLimiterConfig configures the API token bucket.
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig configures the breakers around external services.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// MiddlewareConfig groups the resilience settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig is the root of the YAML file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Server     ServerConfig     `yaml:"server"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	LLM        LLMConfig        `yaml:"llm"`
	DocAI      DocAIConfig      `yaml:"docai"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Retry      RetryConfig      `yaml:"retry"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig reads the YAML file at path, expands ${VAR} references in the
// credential fields, applies defaults and validates the result.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML document into an AppConfig.
func Parse(raw []byte) (*AppConfig, error) {
	var cfg AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.expandEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv resolves ${VAR} references after decoding so that secrets holding
// newlines or JSON never pass through the YAML parser.
func (c *AppConfig) expandEnv() {
	for _, field := range []*string{
		&c.Databases.MinIO.Endpoint,
		&c.Databases.MinIO.AccessKey,
		&c.Databases.MinIO.SecretKey,
		&c.Databases.MinIO.PublicBaseURL,
		&c.Databases.MongoDB.Address,
		&c.Databases.MongoDB.Username,
		&c.Databases.MongoDB.Password,
		&c.Databases.Redis.Address,
		&c.Databases.Redis.Password,
		&c.Databases.MySQL.Address,
		&c.Databases.MySQL.Username,
		&c.Databases.MySQL.Password,
		&c.LLM.Gemini.APIKey,
		&c.DocAI.ProjectID,
		&c.DocAI.Location,
		&c.DocAI.ProcessorID,
		&c.DocAI.CredentialsFile,
		&c.DocAI.CredentialsJSON,
	} {
		*field = os.ExpandEnv(*field)
	}
	for i, broker := range c.Databases.Kafka.Brokers {
		c.Databases.Kafka.Brokers[i] = os.ExpandEnv(broker)
	}
}

func (c *AppConfig) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.5-flash"
	}
	if c.LLM.Gemini.Temperature == 0 {
		c.LLM.Gemini.Temperature = 0.2
	}
	if c.DocAI.MaxPagesPerCall == 0 {
		c.DocAI.MaxPagesPerCall = 15
	}
	if c.DocAI.Timeout == "" {
		c.DocAI.Timeout = "120s"
	}
	in := &c.Ingestion
	if in.StorageRoot == "" {
		in.StorageRoot = "otherly"
	}
	if in.OcrEngine == "" {
		in.OcrEngine = "docai"
	}
	if in.TagBatchSize == 0 {
		in.TagBatchSize = 10
	}
	if in.MaxDisplayWidth == 0 {
		in.MaxDisplayWidth = 1200
	}
	if in.ExcerptChars == 0 {
		in.ExcerptChars = 1500
	}
	if in.PageConcurrency == 0 {
		in.PageConcurrency = 4
	}
	if in.FetchTimeout == "" {
		in.FetchTimeout = "60s"
	}
	if in.MaxSourceBytes == 0 {
		in.MaxSourceBytes = 512 << 20
	}
	if in.MaxUploadBytes == 0 {
		in.MaxUploadBytes = 512 << 20
	}
	if in.OcrRate == 0 {
		in.OcrRate = 2
	}
	if in.OcrBurst == 0 {
		in.OcrBurst = 1
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == "" {
		c.Retry.BaseDelay = "500ms"
	}
	if c.Retry.MaxDelay == "" {
		c.Retry.MaxDelay = "8s"
	}
	if c.Middleware.CircuitBreaker.Timeout == "" {
		c.Middleware.CircuitBreaker.Timeout = "30s"
	}
	if c.Databases.MongoDB.Collection == "" {
		c.Databases.MongoDB.Collection = "ingestions"
	}
	if c.Databases.MongoDB.ConnectTimeout == "" {
		c.Databases.MongoDB.ConnectTimeout = "10s"
	}
	if c.Databases.Redis.ProgressTTL == "" {
		c.Databases.Redis.ProgressTTL = "24h"
	}
	if c.Databases.Redis.KeyPrefix == "" {
		c.Databases.Redis.KeyPrefix = "otherly:progress"
	}
	if c.Databases.Kafka.GroupID == "" {
		c.Databases.Kafka.GroupID = "pdf-ingestion-group"
	}
}

// Validate fails fast on settings the pipeline cannot run without.
func (c *AppConfig) Validate() error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	need(c.Databases.MinIO.Endpoint != "", "databases.minio.endpoint is required")
	need(c.Databases.MinIO.Bucket != "", "databases.minio.bucket is required")

	switch c.Ingestion.OcrEngine {
	case "docai":
		need(c.DocAI.ProjectID != "", "docai.projectId is required")
		need(c.DocAI.Location != "", "docai.location is required")
		need(c.DocAI.ProcessorID != "", "docai.processorId is required")
		need(c.DocAI.CredentialsFile != "" || c.DocAI.CredentialsJSON != "",
			"docai.credentialsFile or docai.credentialsJson is required")
	case "textlayer":
	default:
		problems = append(problems, fmt.Sprintf("ingestion.ocrEngine %q is not supported", c.Ingestion.OcrEngine))
	}

	if c.LLM.Provider != "" && c.LLM.Provider != "gemini" {
		problems = append(problems, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}

	need(c.DocAI.MaxPagesPerCall >= 1, "docai.maxPagesPerCall must be >= 1")
	need(c.Ingestion.TagBatchSize >= 1, "ingestion.tagBatchSize must be >= 1")
	need(c.Ingestion.MaxDisplayWidth >= 1, "ingestion.maxDisplayWidth must be >= 1")
	need(c.Ingestion.ExcerptChars >= 1, "ingestion.excerptChars must be >= 1")
	need(c.Ingestion.PageConcurrency >= 1, "ingestion.pageConcurrency must be >= 1")
	need(c.Retry.MaxAttempts >= 1, "retry.maxAttempts must be >= 1")

	for name, value := range map[string]string{
		"server.shutdownTimeout":            c.Server.ShutdownTimeout,
		"docai.timeout":                     c.DocAI.Timeout,
		"ingestion.fetchTimeout":            c.Ingestion.FetchTimeout,
		"retry.baseDelay":                   c.Retry.BaseDelay,
		"retry.maxDelay":                    c.Retry.MaxDelay,
		"middleware.circuitBreaker.timeout": c.Middleware.CircuitBreaker.Timeout,
		"databases.redis.progressTTL":       c.Databases.Redis.ProgressTTL,
		"databases.mongodb.connectTimeout":  c.Databases.MongoDB.ConnectTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Duration parses a duration that Validate already accepted.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
