package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, test := range []struct {
		name    string
		options []OptionLogger
		wantErr bool
	}{
		{name: "defaults"},
		{name: "json", options: []OptionLogger{WithFormat("json"), WithLevel("debug"), WithTimestampFormat("Unix")}},
		{name: "none", options: []OptionLogger{WithLevel("none")}},
		{name: "unknown level", options: []OptionLogger{WithLevel("loud")}, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			log, err := NewLogger(test.options...)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := &ZapLogger{zap.New(core)}
	child := base.With(zap.String("correlation_id", "abc"))

	ctx := NewContext(context.Background(), child)
	base.InfoWithContext(ctx, "hello")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "abc", entry.ContextMap()["correlation_id"])

	assert.Equal(t, Logger(base), FromContext(context.Background(), base))
}
