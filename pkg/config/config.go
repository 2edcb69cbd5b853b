package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig

	Uploads     UploadsConfig
	ObjectStore ObjectStoreConfig
	LLM         LLMConfig
	Pipeline    PipelineConfig
	Chat        ChatConfig
	Quiz        QuizConfig
	AdminStats  AdminStatsConfig
	Reports     ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig bounds the direct and chunked material upload paths.
type UploadsConfig struct {
	StagingDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	MaxFileSizeBytes  int64
	AllowedMIMEs      []string
	MinChunkSizeBytes int64
	MaxChunkSizeBytes int64
	SessionTTL        time.Duration
	SweepInterval     time.Duration
	// Files at or below this size may fall back to local storage when the
	// object store is unavailable. Larger files fail hard.
	FallbackMaxSizeBytes int64
}

// ObjectStoreConfig points at the S3-compatible primary store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// LLMConfig configures the Gemini client used for chat, quizzes and summaries.
type LLMConfig struct {
	Enabled bool
	APIKey  string
	Model   string
	Timeout time.Duration
}

// PipelineConfig tunes the material ingestion worker pool.
type PipelineConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ChatConfig bounds conversation context assembly.
type ChatConfig struct {
	HistoryLimit    int
	MaxContextChars int
}

// QuizConfig bounds quiz generation.
type QuizConfig struct {
	MaxQuestions     int
	DefaultQuestions int
}

// AdminStatsConfig governs caching of the admin dashboard counters.
type AdminStatsConfig struct {
	CacheTTL time.Duration
}

// ReportsConfig configures asynchronous admin report generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxFileSize := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 100 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StagingDir:           v.GetString("UPLOADS_STAGING_DIR"),
		SignedURLSecret:      v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:         parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), 15*time.Minute),
		MaxFileSizeBytes:     maxFileSize,
		AllowedMIMEs:         splitAndTrim(v.GetString("UPLOADS_ALLOWED_MIME_TYPES")),
		MinChunkSizeBytes:    v.GetInt64("UPLOADS_MIN_CHUNK_SIZE"),
		MaxChunkSizeBytes:    v.GetInt64("UPLOADS_MAX_CHUNK_SIZE"),
		SessionTTL:           parseDuration(v.GetString("UPLOADS_SESSION_TTL"), 24*time.Hour),
		SweepInterval:        parseDuration(v.GetString("UPLOADS_SWEEP_INTERVAL"), time.Hour),
		FallbackMaxSizeBytes: v.GetInt64("UPLOADS_FALLBACK_MAX_SIZE"),
	}

	cfg.ObjectStore = ObjectStoreConfig{
		Endpoint:  v.GetString("OBJECT_STORE_ENDPOINT"),
		AccessKey: v.GetString("OBJECT_STORE_ACCESS_KEY"),
		SecretKey: v.GetString("OBJECT_STORE_SECRET_KEY"),
		Bucket:    v.GetString("OBJECT_STORE_BUCKET"),
		UseSSL:    v.GetBool("OBJECT_STORE_USE_SSL"),
		Region:    v.GetString("OBJECT_STORE_REGION"),
	}

	cfg.LLM = LLMConfig{
		Enabled: v.GetBool("LLM_ENABLED"),
		APIKey:  v.GetString("LLM_API_KEY"),
		Model:   v.GetString("LLM_MODEL"),
		Timeout: parseDuration(v.GetString("LLM_TIMEOUT"), 60*time.Second),
	}

	cfg.Pipeline = PipelineConfig{
		Workers:    v.GetInt("PIPELINE_WORKERS"),
		BufferSize: v.GetInt("PIPELINE_BUFFER_SIZE"),
		MaxRetries: v.GetInt("PIPELINE_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("PIPELINE_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Chat = ChatConfig{
		HistoryLimit:    v.GetInt("CHAT_HISTORY_LIMIT"),
		MaxContextChars: v.GetInt("CHAT_MAX_CONTEXT_CHARS"),
	}

	cfg.Quiz = QuizConfig{
		MaxQuestions:     v.GetInt("QUIZ_MAX_QUESTIONS"),
		DefaultQuestions: v.GetInt("QUIZ_DEFAULT_QUESTIONS"),
	}

	cfg.AdminStats = AdminStatsConfig{
		CacheTTL: parseDuration(v.GetString("ADMIN_STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "studyhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_STAGING_DIR", "./uploads")
	v.SetDefault("UPLOADS_SIGNED_URL_SECRET", "dev_uploads_secret")
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "15m")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 100*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_MIME_TYPES", "application/pdf,text/plain,text/markdown,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.openxmlformats-officedocument.presentationml.presentation")
	v.SetDefault("UPLOADS_MIN_CHUNK_SIZE", 1*1024*1024)
	v.SetDefault("UPLOADS_MAX_CHUNK_SIZE", 32*1024*1024)
	v.SetDefault("UPLOADS_SESSION_TTL", "24h")
	v.SetDefault("UPLOADS_SWEEP_INTERVAL", "1h")
	v.SetDefault("UPLOADS_FALLBACK_MAX_SIZE", 10*1024*1024)

	v.SetDefault("OBJECT_STORE_ENDPOINT", "localhost:9000")
	v.SetDefault("OBJECT_STORE_ACCESS_KEY", "minioadmin")
	v.SetDefault("OBJECT_STORE_SECRET_KEY", "minioadmin")
	v.SetDefault("OBJECT_STORE_BUCKET", "materials")
	v.SetDefault("OBJECT_STORE_USE_SSL", false)
	v.SetDefault("OBJECT_STORE_REGION", "")

	v.SetDefault("LLM_ENABLED", false)
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "gemini-2.0-flash")
	v.SetDefault("LLM_TIMEOUT", "60s")

	v.SetDefault("PIPELINE_WORKERS", 2)
	v.SetDefault("PIPELINE_BUFFER_SIZE", 32)
	v.SetDefault("PIPELINE_MAX_RETRIES", 3)
	v.SetDefault("PIPELINE_RETRY_DELAY", "5s")

	v.SetDefault("CHAT_HISTORY_LIMIT", 20)
	v.SetDefault("CHAT_MAX_CONTEXT_CHARS", 8000)

	v.SetDefault("QUIZ_MAX_QUESTIONS", 20)
	v.SetDefault("QUIZ_DEFAULT_QUESTIONS", 5)

	v.SetDefault("ADMIN_STATS_CACHE_TTL", "1m")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
