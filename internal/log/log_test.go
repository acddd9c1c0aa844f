package log_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appLog "schedcal/internal/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want appLog.Level
	}{
		{"debug", appLog.LevelDebug},
		{" WARN ", appLog.LevelWarn},
		{"error", appLog.LevelError},
		{"info", appLog.LevelInfo},
		{"", appLog.LevelInfo},
		{"verbose", appLog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, appLog.ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestErrorCarriesErrAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	appLog.SetLogger(zap.New(core))

	appLog.Error("conflict check failed", errors.New("boom"), "date", "2024-06-01")
	appLog.Info("index built", "days", 3)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "conflict check failed", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "boom", fields["err"])
	assert.Equal(t, "2024-06-01", fields["date"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.EqualValues(t, 3, entries[1].ContextMap()["days"])
}

func TestAddFileOutput(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	appLog.SetLogger(zap.New(core))

	path := filepath.Join(t.TempDir(), "schedcal.log")
	appLog.AddFileOutput(path, 1, 1)
	appLog.Info("digest completed", "upcoming", 2)
	appLog.Sync()

	assert.Equal(t, 1, logs.Len())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"digest completed"`)
	assert.Contains(t, string(data), `"upcoming":2`)
}
