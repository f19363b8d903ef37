package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/apkedit/internal/config"
)

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "apkedit.log")
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.WithField("plugin", "git").Debug("activated")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"plugin":"git"`)
	assert.Contains(t, string(data), `"msg":"activated"`)
}

func TestNewLoggerStderr(t *testing.T) {
	logger, closer, err := NewLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.NoError(t, closer.Close())
}

func TestNewLoggerInvalid(t *testing.T) {
	_, _, err := NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
	_, _, err = NewLogger(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
