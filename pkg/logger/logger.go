package logger

import (
	"context"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}

type logrusLogger struct {
	logger *logrus.Logger
}

func (l *logrusLogger) entry(ctx context.Context) *logrus.Entry {
	entry := l.logger.WithContext(ctx)
	if traceID := getTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	return entry
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.entry(ctx).Warnf(msg, args...)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, args ...any) {
	l.entry(ctx).Errorf(msg, args...)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, args ...any) {
	l.entry(ctx).Infof(msg, args...)
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.entry(ctx).Debugf(msg, args...)
}

var defaultLogger Logger = &logrusLogger{logger: logrus.New()}

type LoggerConfig struct {
	Level      string `json:"level,omitempty" toml:"level,omitempty"`
	File       string `json:"file,omitempty" toml:"file,omitempty"`
	MaxSize    int    `json:"max_size,omitempty" toml:"max_size,omitempty"`       // 单个日志文件最大大小(MB),默认100MB
	MaxBackups int    `json:"max_backups,omitempty" toml:"max_backups,omitempty"` // 保留的旧日志文件最大数量,默认3个
	MaxAge     int    `json:"max_age,omitempty" toml:"max_age,omitempty"`         // 保留旧日志文件的最大天数,默认7天
	Compress   bool   `json:"compress,omitempty" toml:"compress,omitempty"`       // 是否压缩旧日志,默认false
}

func InitLogger(cfg *LoggerConfig) {
	log := logrus.New()
	if cfg == nil {
		cfg = &LoggerConfig{}
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// JSON 格式,方便提取 trace_id
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if cfg.File != "" {
		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 7
		}

		// 使用 lumberjack 实现日志轮转
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		})
	}

	defaultLogger = &logrusLogger{logger: log}
}

func Warn(ctx context.Context, msg string, args ...any) {
	defaultLogger.Warn(ctx, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	defaultLogger.Error(ctx, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	defaultLogger.Info(ctx, msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	defaultLogger.Debug(ctx, msg, args...)
}

func GetDefaultLogger() Logger {
	return defaultLogger
}

// TraceID context key
type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID 将 trace_id 添加到 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func getTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTraceID 导出的获取 trace_id 函数
func GetTraceID(ctx context.Context) string {
	return getTraceID(ctx)
}
