package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantLevel zapcore.Level
		disabled  *zapcore.Level
	}{
		{
			name:      "Development Config",
			config:    Config{Level: "debug", Environment: "development", ServiceName: "api"},
			wantLevel: zapcore.DebugLevel,
		},
		{
			name:      "Production Config",
			config:    Config{Level: "warn", Environment: "production", ServiceName: "projector"},
			wantLevel: zapcore.WarnLevel,
			disabled:  levelPtr(zapcore.InfoLevel),
		},
		{
			name:      "Invalid Level Defaults to Info",
			config:    Config{Level: "loud", Environment: "development", ServiceName: "watcher"},
			wantLevel: zapcore.InfoLevel,
			disabled:  levelPtr(zapcore.DebugLevel),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			require.NoError(t, err)
			assert.True(t, l.zap.Core().Enabled(tt.wantLevel))
			if tt.disabled != nil {
				assert.False(t, l.zap.Core().Enabled(*tt.disabled))
			}
		})
	}
}

func levelPtr(l zapcore.Level) *zapcore.Level { return &l }

func TestLoggerOutput(t *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	l := FromZap(zap.New(core))

	l.Info("standings computed", zap.String("group_id", "g1"))
	require.Equal(t, 1, observed.Len())
	entry := observed.TakeAll()[0]
	assert.Equal(t, "standings computed", entry.Message)
	assert.Equal(t, "g1", entry.ContextMap()["group_id"])

	l.Error("store failed", errors.New("connection reset"))
	require.Equal(t, 1, observed.Len())
	entry = observed.TakeAll()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "connection reset", entry.ContextMap()["error"])

	l.Debug("hidden")
	assert.Equal(t, 0, observed.Len())
}

func TestWithAndNamed(t *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	l := FromZap(zap.New(core))

	l.Named("cache").With(zap.String("class", "match")).Warn("backend unavailable")

	require.Equal(t, 1, observed.Len())
	entry := observed.All()[0]
	assert.Equal(t, "cache", entry.LoggerName)
	assert.Equal(t, "match", entry.ContextMap()["class"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		l := Nop()
		l.Info("ignored")
		l.Error("ignored", errors.New("x"))
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}
