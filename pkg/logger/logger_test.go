package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { level.SetLevel(zapcore.InfoLevel) })

	t.Run("Success", func(t *testing.T) {
		assert.NoError(t, SetLevel("debug"))
		assert.Equal(t, zapcore.DebugLevel, level.Level())
	})

	t.Run("Failed - unknown level", func(t *testing.T) {
		level.SetLevel(zapcore.WarnLevel)
		assert.Error(t, SetLevel("loud"))
		assert.Equal(t, zapcore.WarnLevel, level.Level())
	})
}

func TestWithComponent(t *testing.T) {
	log := WithComponent("storage")
	assert.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}
