// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	SessionIDKey ContextKey = "session_id"
	RunIDKey     ContextKey = "run_id"
	AgentIDKey   ContextKey = "agent_id"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json or text
	Output    string `json:"output"` // stdout, stderr, or file path
	Component string `json:"component"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", cfg.Component)),
		component: cfg.Component,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		attrs = append(attrs, slog.String("run_id", runID))
	}
	if agentID, ok := ctx.Value(AgentIDKey).(string); ok && agentID != "" {
		attrs = append(attrs, slog.String("agent_id", agentID))
	}

	if len(attrs) == 0 {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithSessionID 添加 Session ID
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("session_id", sessionID)),
		component: l.component,
	}
}

// WithRunID 添加 Run ID
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("run_id", runID)),
		component: l.component,
	}
}

// WithTraceID 添加追踪 ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("trace_id", traceID)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Milliseconds()))),
		component: l.component,
	}
}

// PollLog 轮询周期日志
func (l *Logger) PollLog(sessionID string, fetched, applied int, duration time.Duration, err error) {
	attrs := []any{
		slog.String("session_id", sessionID),
		slog.Int("fetched", fetched),
		slog.Int("applied", applied),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Logger.Warn("Poll failed", attrs...)
	} else {
		l.Logger.Debug("Poll cycle", attrs...)
	}
}
