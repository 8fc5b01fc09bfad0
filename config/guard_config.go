package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"guard_server/core/domain"
)

// generateConsumerName creates a unique consumer name using hostname and PID
func generateConsumerName() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "guard"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Stores
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	DBMaxConns    int
	RedisPoolSize int

	// JWT
	JWTSecret string

	// Seals the stored API token when set
	SettingsEncryptionKey string

	// Per-client requests per minute on /classify; 0 disables
	ClassifyRateLimit int

	// Remote classifier
	ClassifierBackend string
	ClassifierURL     string
	OpenAIModel       string
	OpenAIBaseURL     string

	// Remote limits
	RemoteTimeout     time.Duration
	RemoteMinInterval time.Duration
	RateLimitShared   bool

	// Result cache
	CacheSize int
	CacheTTL  time.Duration

	// Scan
	ScanDebounce      time.Duration
	ScanSweepInterval time.Duration
	ScanConcurrency   int
	InboxLimit        int

	// Settings defaults
	DefaultThreshold  float64
	DefaultUseRemote  bool
	DefaultAPIToken   string
	DefaultCategories []string

	// Audit
	DecisionStore string

	// Streams
	UnitStream         string
	DecisionStream     string
	ConsumerName       string
	ConsumerBatchSize  int
	ConsumerBlockMS    int
	ConsumerMaxRetries int
	ConsumerPendingSec int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Stores
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "guard"),
		RedisURL:    getEnv("REDIS_URL", ""),

		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 20),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		SettingsEncryptionKey: getEnv("SETTINGS_ENCRYPTION_KEY", ""),

		ClassifyRateLimit: getEnvInt("CLASSIFY_RATE_LIMIT", 120),

		// Remote classifier
		ClassifierBackend: strings.ToLower(getEnv("CLASSIFIER_BACKEND", "http")),
		ClassifierURL:     getEnv("CLASSIFIER_URL", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		// Remote limits
		RemoteTimeout:     getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
		RemoteMinInterval: getEnvDuration("REMOTE_MIN_INTERVAL", time.Second),
		RateLimitShared:   getEnvBool("RATE_LIMIT_SHARED", false),

		// Result cache
		CacheSize: getEnvInt("CACHE_SIZE", 5000),
		CacheTTL:  getEnvDuration("CACHE_TTL", time.Hour),

		// Scan
		ScanDebounce:      getEnvDuration("SCAN_DEBOUNCE", 300*time.Millisecond),
		ScanSweepInterval: getEnvDuration("SCAN_SWEEP_INTERVAL", 4*time.Second),
		ScanConcurrency:   getEnvInt("SCAN_CONCURRENCY", 8),
		InboxLimit:        getEnvInt("INBOX_LIMIT", 10000),

		// Settings defaults
		DefaultThreshold:  getEnvFloat("DEFAULT_THRESHOLD", domain.DefaultThreshold),
		DefaultUseRemote:  getEnvBool("DEFAULT_USE_REMOTE", false),
		DefaultAPIToken:   getEnv("DEFAULT_API_TOKEN", ""),
		DefaultCategories: getEnvSlice("DEFAULT_CATEGORIES", domain.CategoryNames()),

		// Audit
		DecisionStore: strings.ToLower(getEnv("DECISION_STORE", "")),

		// Streams
		UnitStream:         getEnv("UNIT_STREAM", "guard:units"),
		DecisionStream:     getEnv("DECISION_STREAM", "guard:decisions"),
		ConsumerName:       getEnv("CONSUMER_NAME", generateConsumerName()),
		ConsumerBatchSize:  getEnvInt("CONSUMER_BATCH_SIZE", 50),
		ConsumerBlockMS:    getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.DefaultThreshold < 0 || cfg.DefaultThreshold > 1 {
		return nil, fmt.Errorf("DEFAULT_THRESHOLD must be within [0,1], got %v", cfg.DefaultThreshold)
	}
	switch cfg.ClassifierBackend {
	case "http", "openai":
	default:
		return nil, fmt.Errorf("unknown CLASSIFIER_BACKEND %q", cfg.ClassifierBackend)
	}
	return cfg, nil
}

// DefaultSettings builds the initial settings snapshot from the environment.
func (c *Config) DefaultSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.Threshold = c.DefaultThreshold
	s.UseRemote = c.DefaultUseRemote
	s.APIToken = c.DefaultAPIToken

	cats := make([]domain.Category, 0, len(c.DefaultCategories))
	for _, name := range c.DefaultCategories {
		if cat, ok := domain.ParseCategory(name); ok {
			cats = append(cats, cat)
		}
	}
	s.EnabledCategories = domain.NewCategorySet(cats...)
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1.5s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
