package logging_test

import (
	"testing"

	"eve.evalgo.org/internal/config"
	"eve.evalgo.org/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToInfoLevelAndTextFormat(t *testing.T) {
	entry := logging.New(config.LoggingConfig{}, "si-core", "test")
	assert.Equal(t, logrus.InfoLevel, entry.Logger.GetLevel())
	_, isText := entry.Logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}

func TestNewVerboseRaisesLevel(t *testing.T) {
	entry := logging.New(config.LoggingConfig{Verbose: 1}, "si-core", "test")
	assert.Equal(t, logrus.DebugLevel, entry.Logger.GetLevel())

	entry = logging.New(config.LoggingConfig{Verbose: 2}, "si-core", "test")
	assert.Equal(t, logrus.TraceLevel, entry.Logger.GetLevel())
}

func TestNewJSONSelectsJSONFormatter(t *testing.T) {
	entry := logging.New(config.LoggingConfig{JSON: true}, "si-core", "test")
	_, isJSON := entry.Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}
