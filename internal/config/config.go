package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Model store backends
const (
	ModelStoreFile = "file"
	ModelStoreGCS  = "gcs"
	ModelStoreNone = "none"
)

// Config holds application configuration
type Config struct {
	DatabaseURL    string
	DatabaseDriver string
	ServerPort     string
	RequestTimeout time.Duration

	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WarmMaxRetries   int

	WarmScheduleInterval time.Duration
	WarmActiveDays       int
	WarmWindowDays       int

	ModelStore          string
	ModelDir            string
	ModelGCSBucket      string
	ModelGCSPrefix      string
	ModelReloadInterval time.Duration

	HeuristicConfigPath string
	InferenceTimeout    time.Duration
	ExplanationTimeout  time.Duration
	ExplanationTopK     int
	CacheTTL            time.Duration
	CacheMaxEntries     int

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
	MetricsEnabled  bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load(os.Getenv)
}

// LoadWithOverrides loads configuration, preferring non-empty overrides to the environment
func LoadWithOverrides(overrides map[string]string) (*Config, error) {
	return load(func(key string) string {
		if v := overrides[key]; v != "" {
			return v
		}
		return os.Getenv(key)
	})
}

func load(lookup func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnv(lookup, "DATABASE_URL", ""),
		DatabaseDriver: getEnv(lookup, "DATABASE_DRIVER", "postgres"),
		ServerPort:     getEnv(lookup, "SERVER_PORT", "8080"),
		RequestTimeout: getEnvDuration(lookup, "REQUEST_TIMEOUT", 30*time.Second),

		RedisURL:         getEnv(lookup, "REDIS_URL", ""),
		RabbitMQURL:      getEnv(lookup, "RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt(lookup, "RABBITMQ_PREFETCH", 1),
		WarmMaxRetries:   getEnvInt(lookup, "WARM_MAX_RETRIES", 3),

		WarmScheduleInterval: getEnvDuration(lookup, "WARM_SCHEDULE_INTERVAL", 0),
		WarmActiveDays:       getEnvInt(lookup, "WARM_ACTIVE_DAYS", 7),
		WarmWindowDays:       getEnvInt(lookup, "WARM_WINDOW_DAYS", 0),

		ModelStore:          getEnv(lookup, "MODEL_STORE", ModelStoreFile),
		ModelDir:            getEnv(lookup, "MODEL_DIR", "./models"),
		ModelGCSBucket:      getEnv(lookup, "MODEL_GCS_BUCKET", ""),
		ModelGCSPrefix:      getEnv(lookup, "MODEL_GCS_PREFIX", "models"),
		ModelReloadInterval: getEnvDuration(lookup, "MODEL_RELOAD_INTERVAL", 0),

		HeuristicConfigPath: getEnv(lookup, "HEURISTIC_CONFIG_PATH", ""),
		InferenceTimeout:    getEnvDuration(lookup, "INFERENCE_TIMEOUT", 15*time.Second),
		ExplanationTimeout:  getEnvDuration(lookup, "EXPLANATION_TIMEOUT", 2*time.Second),
		ExplanationTopK:     getEnvInt(lookup, "EXPLANATION_TOP_K", 5),
		CacheTTL:            getEnvDuration(lookup, "CACHE_TTL", 5*time.Minute),
		CacheMaxEntries:     getEnvInt(lookup, "CACHE_MAX_ENTRIES", 10000),

		WorkerDebugMode: getEnvBool(lookup, "WORKER_DEBUG_MODE", false),
		ServerDebugMode: getEnvBool(lookup, "SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool(lookup, "OTEL_ENABLED", false),
		OTELEndpoint:    getEnv(lookup, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsEnabled:  getEnvBool(lookup, "METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite3, got %q", c.DatabaseDriver))
	}
	switch c.ModelStore {
	case ModelStoreFile:
		if c.ModelDir == "" {
			errs = append(errs, errors.New("MODEL_DIR is required when MODEL_STORE=file"))
		}
	case ModelStoreGCS:
		if c.ModelGCSBucket == "" {
			errs = append(errs, errors.New("MODEL_GCS_BUCKET is required when MODEL_STORE=gcs"))
		}
	case ModelStoreNone:
	default:
		errs = append(errs, fmt.Errorf("MODEL_STORE must be file, gcs or none, got %q", c.ModelStore))
	}
	if c.InferenceTimeout <= 0 {
		errs = append(errs, errors.New("INFERENCE_TIMEOUT must be positive"))
	}
	if c.ExplanationTimeout <= 0 {
		errs = append(errs, errors.New("EXPLANATION_TIMEOUT must be positive"))
	}
	if c.ExplanationTopK <= 0 {
		errs = append(errs, errors.New("EXPLANATION_TOP_K must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.CacheMaxEntries <= 0 {
		errs = append(errs, errors.New("CACHE_MAX_ENTRIES must be positive"))
	}
	if c.ModelReloadInterval < 0 {
		errs = append(errs, errors.New("MODEL_RELOAD_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}

// RequireQueue reports whether the queue settings needed by the worker are present
func (c *Config) RequireQueue() error {
	if c.RabbitMQURL == "" {
		return errors.New("RABBITMQ_URL is required for cache warming jobs")
	}
	if c.RabbitMQPrefetch <= 0 {
		return errors.New("RABBITMQ_PREFETCH must be positive")
	}
	if c.WarmMaxRetries < 0 {
		return errors.New("WARM_MAX_RETRIES must not be negative")
	}
	if c.WarmScheduleInterval > 0 && c.WarmActiveDays <= 0 {
		return errors.New("WARM_ACTIVE_DAYS must be positive when WARM_SCHEDULE_INTERVAL is set")
	}
	return nil
}

func getEnv(lookup func(string) string, key, defaultValue string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(lookup func(string) string, key string, defaultValue bool) bool {
	if value := lookup(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(lookup func(string) string, key string, defaultValue int) int {
	if value := lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or plain seconds ("15")
func getEnvDuration(lookup func(string) string, key string, defaultValue time.Duration) time.Duration {
	value := lookup(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
