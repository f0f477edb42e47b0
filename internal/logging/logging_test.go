package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	l, err := New("warn", false)
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New("", true)
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", false)
	require.Error(t, err)
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	l, err := New("info", false)
	require.NoError(t, err)
	require.Same(t, l, OrNop(l))
}
