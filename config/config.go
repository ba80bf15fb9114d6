package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/masterries/AutoAnalyse/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Data locations
	DataDir string
	DBPath  string

	// Scraper configuration
	BaseURL        string
	RequestTimeout time.Duration
	BaseDelay      time.Duration
	MaxPagesCap    int

	// Dashboard configuration
	DashboardAddr string

	// Redis configuration (optional price-change event stream)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	dataDir := getEnv("DATA_DIR", "data")
	requestTimeout, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "15"))
	baseDelay, _ := strconv.Atoi(getEnv("BASE_DELAY_SECONDS", "2"))
	maxPagesCap, _ := strconv.Atoi(getEnv("MAX_PAGES_CAP", "50"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	redisStreamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))

	return Config{
		DataDir:        dataDir,
		DBPath:         getEnv("DB_PATH", filepath.Join(dataDir, "autoscout.db")),
		BaseURL:        getEnv("BASE_URL", "https://www.autoscout24.lu/lst/%s/%s?sort=standard&desc=0&ustate=N,U&atype=C&cy=L&source=homepage_search-mask"),
		RequestTimeout: time.Duration(requestTimeout) * time.Second,
		BaseDelay:      time.Duration(baseDelay) * time.Second,
		MaxPagesCap:    maxPagesCap,

		DashboardAddr: getEnv("DASHBOARD_ADDR", ":8080"),

		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "pricechanges"),
		RedisStreamCount:     redisStreamCount,
		RedisStreamMaxLength: redisStreamMaxLength,

		Environment: getEnv("AUTOANALYSE_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.NewConfiguration("DB_PATH must not be empty", nil)
	}
	if c.RequestTimeout <= 0 {
		return errors.NewConfiguration("REQUEST_TIMEOUT_SECONDS must be positive", nil)
	}
	if c.BaseDelay < 0 {
		return errors.NewConfiguration("BASE_DELAY_SECONDS must not be negative", nil)
	}
	if c.MaxPagesCap < 1 {
		return errors.NewConfiguration("MAX_PAGES_CAP must be at least 1", nil)
	}
	if c.RedisStreamCount < 1 {
		return errors.NewConfiguration("REDIS_STREAM_COUNT must be at least 1", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
