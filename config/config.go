package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	Env           string
	LogLevel      string
	JWTSecret     string
	AllowedOrigin string
	// Store REST API
	SiteID           string
	StoreBaseURL     string
	StoreConsumerKey string
	StoreSecret      string
	StoreTimeout     time.Duration
	StoreMaxRetries  uint64
	StoreRetryBudget time.Duration
	StoreRateLimit   float64 // requests per second, 0 means unlimited
	StoreRateBurst   int
	// Submit runner
	RunnerConcurrency int
	// Cache
	CatalogCacheTTL time.Duration
	// API rate limiting
	APIRateLimit float64
	APIRateBurst int
	// DB Config, optional. Without a DSN the state lives in memory.
	DBUrl             string
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnIdleTime time.Duration
	// R2 Storage, optional. Used to archive submit reports.
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string
	R2ReportPrefix    string
	R2UploadTimeout   time.Duration
}

func LoadConfig() *Config {
	// 1. Check if a specific config file is requested via env var
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Warning: Failed to load config file '%s': %v", configFile, err)
		} else {
			log.Printf("Loaded configuration from %s", configFile)
		}
	} else {
		// 2. Default fallback: .env for local dev, system env vars otherwise
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found or error loading it, relying on system env vars")
		}
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", "default_secret_CHANGE_ME"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),

		SiteID:           getEnv("SITE_ID", "default"),
		StoreBaseURL:     getEnv("STORE_BASE_URL", ""),
		StoreConsumerKey: getEnv("STORE_CONSUMER_KEY", ""),
		StoreSecret:      getEnv("STORE_CONSUMER_SECRET", ""),
		StoreTimeout:     getDurationEnv("STORE_TIMEOUT", 10*time.Second),
		StoreMaxRetries:  uint64(getIntEnv("STORE_MAX_RETRIES", 3)),
		StoreRetryBudget: getDurationEnv("STORE_RETRY_BUDGET", 30*time.Second),
		StoreRateLimit:   getFloatEnv("STORE_RATE_LIMIT", 0),
		StoreRateBurst:   getIntEnv("STORE_RATE_BURST", 5),

		RunnerConcurrency: getIntEnv("RUNNER_CONCURRENCY", 4),
		CatalogCacheTTL:   getDurationEnv("CACHE_CATALOG_TTL", 30*time.Minute),

		APIRateLimit: getFloatEnv("API_RATE_LIMIT", 10),
		APIRateBurst: getIntEnv("API_RATE_BURST", 20),

		DBUrl:             getEnv("DB_DSN", ""),
		DBMaxConns:        getInt32Env("DB_MAX_CONNS", 10),
		DBMinConns:        getInt32Env("DB_MIN_CONNS", 1),
		DBMaxConnIdleTime: getDurationEnv("DB_MAX_CONN_IDLE_TIME", time.Minute*15),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		R2ReportPrefix:    getEnv("R2_REPORT_PREFIX", "shipping-reports"),
		R2UploadTimeout:   getDurationEnv("R2_UPLOAD_TIMEOUT", 30*time.Second),
	}

	cfg.Validate()
	return cfg
}

func (c *Config) Validate() {
	if c.StoreBaseURL == "" {
		log.Fatal("CRITICAL: STORE_BASE_URL environment variable is required")
	}
	if c.StoreConsumerKey == "" || c.StoreSecret == "" {
		log.Println("WARNING: Store consumer key/secret not set, store requests will be unauthenticated")
	}
	if c.JWTSecret == "default_secret_CHANGE_ME" {
		log.Println("WARNING: Using default JWT secret. Setting up for failure in production.")
	}
	if c.RunnerConcurrency < 1 {
		log.Printf("Invalid RUNNER_CONCURRENCY %d, using 1", c.RunnerConcurrency)
		c.RunnerConcurrency = 1
	}
}

// R2Enabled reports whether report archiving is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2BucketName != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s, using fallback", key)
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s, using fallback", key)
	}
	return fallback
}
