package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRequest     EventType = "request"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeFallback    EventType = "fallback"
	EventTypeLLM         EventType = "llm"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType
	RequestID string
	Step      int
	Message   string
	Data      map[string]any
	Level     zapcore.Level
}

// Logger handles structured logging of agent events on top of zap.
type Logger struct {
	z *zap.Logger
}

func NewLogger(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// NewZap builds the process logger: production JSON encoding, debug level
// when requested.
func NewZap(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Zap exposes the underlying logger for components that log directly.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	fields := make([]zap.Field, 0, 4+len(evt.Data))
	fields = append(fields, zap.String("type", string(evt.Type)))
	if evt.RequestID != "" {
		fields = append(fields, zap.String("request_id", evt.RequestID))
	}
	if evt.Step > 0 {
		fields = append(fields, zap.Int("step", evt.Step))
	}
	for k, v := range evt.Data {
		fields = append(fields, zap.Any(k, v))
	}

	msg := evt.Message
	if msg == "" {
		msg = string(evt.Type)
	}
	if ce := l.z.Check(evt.Level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Helper methods for common events

func (l *Logger) LogRequest(ctx context.Context, mode, prompt string) {
	l.Log(Event{
		Type:      EventTypeRequest,
		RequestID: RequestID(ctx),
		Level:     zapcore.InfoLevel,
		Data: map[string]any{
			"mode":   mode,
			"prompt": prompt,
		},
	})
}

func (l *Logger) LogPlan(ctx context.Context, step int, command string, final bool) {
	l.Log(Event{
		Type:      EventTypePlan,
		RequestID: RequestID(ctx),
		Step:      step,
		Level:     zapcore.DebugLevel,
		Data: map[string]any{
			"command": command,
			"final":   final,
		},
	})
}

func (l *Logger) LogToolCall(ctx context.Context, step int, command string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		RequestID: RequestID(ctx),
		Step:      step,
		Level:     zapcore.InfoLevel,
		Data:      map[string]any{"command": command},
	})
}

func (l *Logger) LogToolResult(ctx context.Context, step int, errMsg string, code int) {
	lvl := zapcore.DebugLevel
	if errMsg != "" {
		lvl = zapcore.WarnLevel
	}
	l.Log(Event{
		Type:      EventTypeToolResult,
		RequestID: RequestID(ctx),
		Step:      step,
		Level:     lvl,
		Data: map[string]any{
			"error": errMsg,
			"code":  code,
		},
	})
}

func (l *Logger) LogPolicyCheck(ctx context.Context, command string, allowed bool, reason string) {
	lvl := zapcore.DebugLevel
	if !allowed {
		lvl = zapcore.WarnLevel
	}
	l.Log(Event{
		Type:      EventTypePolicyCheck,
		RequestID: RequestID(ctx),
		Level:     lvl,
		Data: map[string]any{
			"command": command,
			"allowed": allowed,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogFallback(ctx context.Context, reason string) {
	l.Log(Event{
		Type:      EventTypeFallback,
		RequestID: RequestID(ctx),
		Level:     zapcore.WarnLevel,
		Message:   "planner output had no JSON object, using default intent",
		Data:      map[string]any{"reason": reason},
	})
}

func (l *Logger) LogLLM(ctx context.Context, provider string, prompt any, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		RequestID: RequestID(ctx),
		Level:     zapcore.DebugLevel,
		Data: map[string]any{
			"provider": provider,
			"prompt":   prompt,
			"response": response,
		},
	})
}

func (l *Logger) LogHeartbeat(inFlight int64) {
	l.Log(Event{
		Type:  EventTypeHeartbeat,
		Level: zapcore.DebugLevel,
		Data: map[string]any{
			"status":    "alive",
			"in_flight": inFlight,
		},
	})
}
