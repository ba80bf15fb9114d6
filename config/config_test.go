package config

import (
	stderrors "errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/masterries/AutoAnalyse/pkg/errors"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "data", config.DataDir)
	assert.Equal(t, "data/autoscout.db", config.DBPath)
	assert.Equal(t, 15*time.Second, config.RequestTimeout)
	assert.Equal(t, 2*time.Second, config.BaseDelay)
	assert.Equal(t, 50, config.MaxPagesCap)
	assert.Equal(t, ":8080", config.DashboardAddr)
	assert.Equal(t, "", config.RedisAddr)
	assert.Equal(t, "pricechanges", config.RedisStream)
	assert.Equal(t, 1, config.RedisStreamCount)

	// Test with environment variables
	os.Setenv("DATA_DIR", "/tmp/autoanalyse")
	os.Setenv("DB_PATH", "/tmp/autoanalyse/test.db")
	os.Setenv("REQUEST_TIMEOUT_SECONDS", "30")
	os.Setenv("BASE_DELAY_SECONDS", "5")
	os.Setenv("MAX_PAGES_CAP", "10")
	os.Setenv("DASHBOARD_ADDR", ":9090")
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("REDIS_DB", "1")

	config = LoadConfig()
	assert.Equal(t, "/tmp/autoanalyse", config.DataDir)
	assert.Equal(t, "/tmp/autoanalyse/test.db", config.DBPath)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 5*time.Second, config.BaseDelay)
	assert.Equal(t, 10, config.MaxPagesCap)
	assert.Equal(t, ":9090", config.DashboardAddr)
	assert.Equal(t, "redis.example.com:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisDB)

	// Clean up
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("DB_PATH")
	os.Unsetenv("REQUEST_TIMEOUT_SECONDS")
	os.Unsetenv("BASE_DELAY_SECONDS")
	os.Unsetenv("MAX_PAGES_CAP")
	os.Unsetenv("DASHBOARD_ADDR")
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("REDIS_DB")
}

func TestDBPathFollowsDataDir(t *testing.T) {
	os.Setenv("DATA_DIR", "/var/lib/autoanalyse")
	defer os.Unsetenv("DATA_DIR")

	config := LoadConfig()
	assert.Equal(t, "/var/lib/autoanalyse/autoscout.db", config.DBPath)
}

func TestValidate(t *testing.T) {
	config := LoadConfig()
	assert.NoError(t, config.Validate())

	invalid := config
	invalid.DBPath = ""
	err := invalid.Validate()
	assert.Error(t, err)

	// Validation failures are typed configuration errors and fatal
	var scrapeErr *errors.ScrapeError
	assert.True(t, stderrors.As(err, &scrapeErr))
	assert.Equal(t, errors.ErrorTypeConfiguration, scrapeErr.Type)
	assert.True(t, scrapeErr.IsFatal())

	invalid = config
	invalid.RequestTimeout = 0
	assert.Error(t, invalid.Validate())

	invalid = config
	invalid.BaseDelay = -time.Second
	assert.Error(t, invalid.Validate())

	invalid = config
	invalid.MaxPagesCap = 0
	assert.Error(t, invalid.Validate())

	invalid = config
	invalid.RedisStreamCount = 0
	assert.Error(t, invalid.Validate())
}
