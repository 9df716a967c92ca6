package tools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"backend/internal/logger"
)

const defaultToolTimeout = 30 * time.Second

// Dispatcher 工具调用分发器。统一查找、超时、计时与错误兜底，
// 任何失败都转化为 ToolResult，绝不向上抛出。
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	tracer   trace.Tracer
}

// DispatcherOption 分发器配置选项
type DispatcherOption func(*Dispatcher)

// WithToolTimeout 配置单次工具调用超时
func WithToolTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// NewDispatcher 创建分发器
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		timeout:  defaultToolTimeout,
		tracer:   otel.Tracer("backend/internal/tools"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke 执行一次工具调用。
// 工具缺失或不可用返回 failed 结果；执行器 panic 同样被捕获为 failed 结果。
func (d *Dispatcher) Invoke(ctx context.Context, call ToolCallRequest) *ToolExecution {
	ctx, span := d.tracer.Start(ctx, fmt.Sprintf("ToolInvoke:%s", call.Name))
	defer span.End()
	span.SetAttributes(attribute.String("tool_name", call.Name))

	exec := &ToolExecution{
		Call:      call,
		StartedAt: time.Now().UTC(),
	}

	tool, exists := d.registry.Get(call.Name)
	if !exists || !tool.Available() {
		d.finish(exec, nil, fmt.Errorf("tool unavailable"))
		span.SetStatus(codes.Error, "tool unavailable")
		return exec
	}

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	output, err := d.safeExecute(execCtx, tool, call.Params)
	d.finish(exec, output, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool execution failed")
		logger.WithContext(ctx).Warn("工具执行失败",
			zap.String("tool_name", call.Name), zap.Error(err))
	}
	return exec
}

// safeExecute 执行工具并捕获 panic
func (d *Dispatcher) safeExecute(ctx context.Context, tool Tool, params map[string]any) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("tool panic: %v", r)
		}
	}()
	return tool.Execute(ctx, params)
}

// finish 补全计时并写入结果
func (d *Dispatcher) finish(exec *ToolExecution, output map[string]any, err error) {
	exec.CompletedAt = time.Now().UTC()
	exec.ExecutionTimeMs = exec.CompletedAt.Sub(exec.StartedAt).Milliseconds()
	if err != nil {
		exec.Result = ToolResult{Success: false, Error: err.Error()}
		return
	}
	exec.Result = ToolResult{Success: true, Data: output}
}
