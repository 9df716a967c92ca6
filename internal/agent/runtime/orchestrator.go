package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"backend/internal/agent"
	"backend/internal/logger"
	"backend/internal/tools"
	"backend/pkg/aiinterface"
)

const (
	defaultMaxIterations = 8
	defaultLLMTimeout    = 60 * time.Second

	// ErrMaxIterationsExceeded 迭代耗尽的错误文案，调用方依赖该前缀区分失败原因
	ErrMaxIterationsExceeded = "max tool-call iterations exceeded"
)

// Orchestrator 单个 Agent turn 的执行器：
// 循环调用模型，按需分发工具调用，直到模型给出最终回答或触发迭代上限。
// 自身不做任何持久化，执行记录由上层（工作流引擎）落库。
type Orchestrator struct {
	client        aiinterface.ModelClient
	registry      *tools.Registry
	dispatcher    *tools.Dispatcher
	maxIterations int
	llmTimeout    time.Duration
	tracer        trace.Tracer
}

// OrchestratorOption 配置选项
type OrchestratorOption func(*Orchestrator)

// WithMaxIterations 配置工具调用循环上限
func WithMaxIterations(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithLLMTimeout 配置单次模型调用超时
func WithLLMTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.llmTimeout = d
		}
	}
}

// NewOrchestrator 创建执行器
func NewOrchestrator(client aiinterface.ModelClient, registry *tools.Registry, dispatcher *tools.Dispatcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		registry:      registry,
		dispatcher:    dispatcher,
		maxIterations: defaultMaxIterations,
		llmTimeout:    defaultLLMTimeout,
		tracer:        otel.Tracer("backend/internal/agent/runtime"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute 执行一个 Agent turn。
// userMessage 为空或 agent 不可执行属于调用方错误，返回 error；
// 其余失败（模型错误、迭代耗尽）作为结果值返回。
func (o *Orchestrator) Execute(ctx context.Context, a *agent.Agent, userMessage string, history []aiinterface.Message) (*AgentExecutionResult, error) {
	if a == nil {
		return nil, fmt.Errorf("agent 不能为空")
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("用户消息不能为空")
	}
	if !a.IsExecutable() {
		return nil, fmt.Errorf("agent %s 当前状态 %s 不可执行", a.ID, a.Status)
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent_id", a.ID),
		attribute.String("model", a.Model),
		attribute.Int("tools_enabled", len(a.ToolsEnabled)),
	)

	// 1. 初始消息列表：system + 历史 + 用户消息
	messages := make([]aiinterface.Message, 0, len(history)+2)
	messages = append(messages, aiinterface.Message{Role: "system", Content: a.Role})
	messages = append(messages, history...)
	messages = append(messages, aiinterface.Message{Role: "user", Content: userMessage})

	// 2. 从启用的工具构建 function calling 定义；未注册/不可用的 ID 被静默丢弃
	toolDefs := o.registry.Schemas(a.ToolsEnabled)

	result := &AgentExecutionResult{}
	start := time.Now()
	defer func() {
		result.TotalExecutionTimeMs = time.Since(start).Milliseconds()
	}()

	// 3. 有界循环：模型 -> 工具 -> 模型
	for round := 0; round < o.maxIterations; round++ {
		roundCtx, roundSpan := o.tracer.Start(ctx, fmt.Sprintf("Round-%d", round))

		req := &aiinterface.ChatCompletionRequest{
			Model:       a.Model,
			Messages:    messages,
			Temperature: a.Temperature,
			MaxTokens:   a.MaxTokens,
		}
		if len(toolDefs) > 0 {
			req.Tools = toolDefs
			req.ToolChoice = "auto"
		}

		llmCtx, cancel := context.WithTimeout(roundCtx, o.llmTimeout)
		resp, err := o.client.ChatCompletion(llmCtx, req)
		cancel()
		if err != nil {
			// 模型失败立即短路；已发生的工具调用保留在结果中
			roundSpan.RecordError(err)
			roundSpan.SetStatus(codes.Error, "model call failed")
			roundSpan.End()
			result.Success = false
			result.Error = fmt.Sprintf("模型调用失败: %s", err.Error())
			logger.WithContext(ctx).Error("模型调用失败",
				zap.String("agent_id", a.ID), zap.Int("round", round), zap.Error(err))
			return result, nil
		}

		result.Usage.PromptTokens += resp.Usage.PromptTokens
		result.Usage.CompletionTokens += resp.Usage.CompletionTokens
		result.Usage.TotalTokens += resp.Usage.TotalTokens

		// 无工具调用 => 最终回答
		if len(resp.ToolCalls) == 0 {
			roundSpan.End()
			result.Success = true
			result.Message = resp.Content
			return result, nil
		}

		roundSpan.SetAttributes(attribute.Int("tool_calls_count", len(resp.ToolCalls)))

		// 同一轮内的工具调用彼此独立，并发执行；结果保持模型给出的调用顺序
		execs := o.dispatchAll(roundCtx, resp.ToolCalls)
		roundSpan.End()

		result.ToolCalls = append(result.ToolCalls, execs...)

		// 更新对话：assistant 的 tool_calls 消息 + 每个工具的结果消息
		messages = append(messages, aiinterface.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for i, tc := range resp.ToolCalls {
			messages = append(messages, aiinterface.Message{
				Role:       "tool",
				Content:    marshalToolResult(execs[i].Result),
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
			})
		}
	}

	// 4. 迭代耗尽
	span.SetStatus(codes.Error, ErrMaxIterationsExceeded)
	result.Success = false
	result.Error = fmt.Sprintf("%s (%d)", ErrMaxIterationsExceeded, o.maxIterations)
	return result, nil
}

// dispatchAll 并发分发一轮内的全部工具调用，按调用顺序返回
func (o *Orchestrator) dispatchAll(ctx context.Context, calls []aiinterface.ToolCall) []*tools.ToolExecution {
	execs := make([]*tools.ToolExecution, len(calls))
	var wg sync.WaitGroup

	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc aiinterface.ToolCall) {
			defer wg.Done()

			call := tools.ToolCallRequest{
				CallID: tc.ID,
				Name:   tc.Function.Name,
			}

			var params map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				// 参数无法解析时不执行工具，直接记一次失败调用
				now := time.Now().UTC()
				execs[idx] = &tools.ToolExecution{
					Call:        call,
					Result:      tools.ToolResult{Success: false, Error: fmt.Sprintf("参数解析失败: %s", err.Error())},
					StartedAt:   now,
					CompletedAt: now,
				}
				return
			}

			call.Params = params
			execs[idx] = o.dispatcher.Invoke(ctx, call)
		}(i, tc)
	}

	wg.Wait()
	return execs
}

// marshalToolResult 序列化工具结果作为 tool 消息内容
func marshalToolResult(result tools.ToolResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"marshal result failed: %s"}`, err.Error())
	}
	return string(data)
}
