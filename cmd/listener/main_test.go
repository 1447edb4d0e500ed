package main

import (
	"testing"

	"github.com/NethermindEth/bridge-listener/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantLevel     logrus.Level
		wantFormatter logrus.Formatter
	}{
		{"debug", "json", logrus.DebugLevel, &logrus.JSONFormatter{}},
		{"warn", "clean", logrus.WarnLevel, &cleanFormatter{}},
		{"bogus", "text", logrus.InfoLevel, &logrus.TextFormatter{}},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger := setupLogger(&config.Config{LogLevel: tt.level, LogFormat: tt.format})
			assert.Equal(t, tt.wantLevel, logger.GetLevel())
			assert.IsType(t, tt.wantFormatter, logger.Formatter)
		})
	}
}

func TestCleanFormatter(t *testing.T) {
	out, err := (&cleanFormatter{}).Format(&logrus.Entry{Message: "📩 Found 2 events", Data: logrus.Fields{"from": 1}})
	require.NoError(t, err)
	assert.Equal(t, "📩 Found 2 events\n", string(out))
}
