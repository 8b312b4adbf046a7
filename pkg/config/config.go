package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel   string
	Ingest     IngestConfig
	Storage    StorageConfig
	Scheduler  SchedulerConfig
	Server     ServerConfig
	Security   SecurityConfig
	NATS       NATSConfig
	Redis      RedisConfig
	S3         S3Config
	CloudWatch CloudWatchConfig
}

type IngestConfig struct {
	URL        string
	KeyID      string
	Secret     string
	AuthHeader string
	Timeout    time.Duration
	Gzip       bool
}

type StorageConfig struct {
	DataDir          string
	MaxFileBytes     int64
	UrgencyThreshold float64
	SyncWrites       bool
}

type SchedulerConfig struct {
	SendInterval          time.Duration
	FlushThreshold        int
	EarlySendMinInterval  time.Duration
	MaxConcurrentSessions int
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type SecurityConfig struct {
	AuthEnabled    bool
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type CloudWatchConfig struct {
	LogsEnabled      bool
	MetricsEnabled   bool
	Region           string
	Endpoint         string
	LogGroup         string
	LogStream        string
	MetricsNamespace string
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	ingestTimeout, err := getEnvDuration("INGEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	maxFileBytes, err := getEnvInt("ROTATION_MAX_FILE_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	urgencyThreshold, err := getEnvFloat("ROTATION_URGENCY_THRESHOLD", 1.0)
	if err != nil {
		return nil, err
	}
	sendInterval, err := getEnvDuration("SEND_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	flushThreshold, err := getEnvInt("FLUSH_THRESHOLD_ENTRIES", 100)
	if err != nil {
		return nil, err
	}
	earlySendInterval, err := getEnvDuration("EARLY_SEND_MIN_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	maxConcurrent, err := getEnvInt("MAX_CONCURRENT_SESSIONS", 2)
	if err != nil {
		return nil, err
	}
	rateLimitRPS, err := getEnvFloat("SUBMIT_RATE_LIMIT_RPS", 200)
	if err != nil {
		return nil, err
	}
	rateLimitBurst, err := getEnvInt("SUBMIT_RATE_LIMIT_BURST", 400)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Ingest: IngestConfig{
			URL:        getEnv("INGEST_URL", "https://data.bintrail.com"),
			KeyID:      getEnv("INGEST_KEY_ID", ""),
			Secret:     getEnv("INGEST_SECRET", ""),
			AuthHeader: strings.ToLower(getEnv("INGEST_AUTH_HEADER", "bearer")),
			Timeout:    ingestTimeout,
			Gzip:       getEnvBool("INGEST_GZIP", false),
		},
		Storage: StorageConfig{
			DataDir:          getEnv("DATA_DIR", "./data"),
			MaxFileBytes:     int64(maxFileBytes),
			UrgencyThreshold: urgencyThreshold,
			SyncWrites:       getEnvBool("STORAGE_SYNC_WRITES", false),
		},
		Scheduler: SchedulerConfig{
			SendInterval:          sendInterval,
			FlushThreshold:        flushThreshold,
			EarlySendMinInterval:  earlySendInterval,
			MaxConcurrentSessions: maxConcurrent,
		},
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8090"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    4 << 20,
		},
		Security: SecurityConfig{
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "telemetry"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ARCHIVE_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "ru-central1"),
			Endpoint:        getEnv("S3_ENDPOINT", "https://storage.yandexcloud.net"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "telemetry-batches"),
		},
		CloudWatch: CloudWatchConfig{
			LogsEnabled:      getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			MetricsEnabled:   getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			Region:           getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:         getEnv("CLOUDWATCH_ENDPOINT", ""),
			LogGroup:         getEnv("CLOUDWATCH_LOG_GROUP", "/session-telemetry/agent"),
			LogStream:        getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("agent")),
			MetricsNamespace: getEnv("CLOUDWATCH_METRICS_NAMESPACE", "SessionTelemetry"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.Ingest.AuthHeader != "bearer" && c.Ingest.AuthHeader != "ingest" {
		return fmt.Errorf("INGEST_AUTH_HEADER must be bearer or ingest, got %q", c.Ingest.AuthHeader)
	}
	if c.Storage.MaxFileBytes <= 0 {
		return fmt.Errorf("ROTATION_MAX_FILE_BYTES must be positive")
	}
	if c.Storage.UrgencyThreshold <= 0 {
		return fmt.Errorf("ROTATION_URGENCY_THRESHOLD must be positive")
	}
	if c.Scheduler.SendInterval <= 0 || c.Scheduler.EarlySendMinInterval <= 0 {
		return fmt.Errorf("SEND_INTERVAL and EARLY_SEND_MIN_INTERVAL must be positive")
	}
	if c.Scheduler.FlushThreshold <= 0 || c.Scheduler.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("FLUSH_THRESHOLD_ENTRIES and MAX_CONCURRENT_SESSIONS must be positive")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ARCHIVE_ENABLED=true")
	}
	return nil
}

// Addr returns the sidecar listen address.
func (c *ServerConfig) Addr() string {
	return ":" + c.Port
}

// RedisAddr returns host:port of the token cache.
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}
