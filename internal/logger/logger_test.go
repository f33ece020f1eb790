package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestForEnvironment(t *testing.T) {
	assert.Equal(t, "json", ForEnvironment("production", "info", "").Format)
	assert.Equal(t, "console", ForEnvironment("dev", "info", "").Format)
	assert.Equal(t, "json", ForEnvironment("dev", "info", "json").Format)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNew_RespectsLevel(t *testing.T) {
	l := New(Config{Level: "warn", Format: "json"})
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.NotNil(t, OrNop(nil))
}
