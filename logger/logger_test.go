package logger

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	Init()
	assert.NotNil(t, Default)
}

func TestGetLogLevel(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	os.Setenv("AUTOANALYSE_ENVIRONMENT", "production")
	assert.Equal(t, zerolog.InfoLevel, getLogLevel())

	os.Setenv("AUTOANALYSE_ENVIRONMENT", "development")
	assert.Equal(t, zerolog.DebugLevel, getLogLevel())
	os.Unsetenv("AUTOANALYSE_ENVIRONMENT")

	os.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, zerolog.WarnLevel, getLogLevel())

	os.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, zerolog.InfoLevel, getLogLevel())
	os.Unsetenv("LOG_LEVEL")
}

func TestComponentLoggers(t *testing.T) {
	assert.NotNil(t, ForScraper("bmw", "3er"))
	assert.NotNil(t, ForStore())
	assert.NotNil(t, ForReconciler())
	assert.NotNil(t, ForRunner())
	assert.NotNil(t, ForDashboard())
	assert.NotNil(t, ForPublisher())
}
