package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_ToolCallCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	l.LogToolCall(ctx, 2, "get pods -n prod")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "tool_call", fields["type"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(2), fields["step"])
	assert.Equal(t, "get pods -n prod", fields["command"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(zap.New(core))
	ctx := context.Background()

	l.LogPlan(ctx, 1, "get pods", false)
	l.LogPolicyCheck(ctx, "delete pods", false, "action 'delete' is not permitted")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestWithRequestID_Generates(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	assert.NotEmpty(t, RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	end := tr.Begin()
	assert.Equal(t, int64(1), tr.Snapshot().InFlight)
	end()
	s := tr.Snapshot()
	assert.Equal(t, int64(0), s.InFlight)
	assert.False(t, s.LastRequest.IsZero())
}
