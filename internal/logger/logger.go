package logger

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 全局 Logger，原子替换避免 Init 与并发读取竞争
var global atomic.Pointer[zap.Logger]

type contextKey string

const traceIDKey contextKey = "trace_id"

// Init 初始化日志系统。format 为 "json" 时输出生产格式，否则输出彩色控制台格式。
// outputPath 为空时写 stdout。
func Init(level, format, outputPath string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if outputPath == "" {
		outputPath = "stdout"
	}
	cfg.OutputPaths = []string{outputPath}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return fmt.Errorf("构建日志器失败: %w", err)
	}
	global.Store(l)
	return nil
}

// Get 获取全局 Logger。未初始化时退化为 Nop，测试场景无需 Init。
func Get() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// WithTraceID 将 trace id 写入上下文
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID 从上下文读取 trace id，未设置时返回空串
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithContext 返回携带上下文 trace id 字段的 Logger
func WithContext(ctx context.Context) *zap.Logger {
	if id := GetTraceID(ctx); id != "" {
		return Get().With(zap.String("trace_id", id))
	}
	return Get()
}

func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

// Sync 刷新日志缓冲区
func Sync() error {
	if l := global.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
