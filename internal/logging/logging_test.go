package logging

import (
	"testing"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewRespectsLevel(t *testing.T) {
	log := New(&config.Config{LogLevel: "warn"})
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	log := New(&config.Config{LogLevel: "loud", Env: "development"})
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWithGelf(t *testing.T) {
	log := New(&config.Config{LogLevel: "info", GelfAddr: "127.0.0.1:12201"})
	assert.NotNil(t, log)
	log.Info("hello")
}
