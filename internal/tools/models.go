package tools

import (
	"context"
	"time"
)

// Tool 工具能力接口。每个工具 ID 对应一个实现。
type Tool interface {
	// Name 工具标识（function calling 的函数名）
	Name() string

	// Description 工具描述（提供给模型）
	Description() string

	// Parameters 参数定义（JSON Schema）
	Parameters() map[string]any

	// Available 当前是否可用（凭证/配置齐全）
	Available() bool

	// Execute 执行工具
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// ToolCallRequest 一次工具调用请求（来自模型的 function call）
type ToolCallRequest struct {
	// CallID 模型分配的调用 ID
	CallID string `json:"call_id"`

	// Name 工具标识
	Name string `json:"name"`

	// Params 模型提供的参数
	Params map[string]any `json:"params"`
}

// ToolResult 工具执行结果。失败不抛出，统一落在 Success/Error 上。
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ToolExecution 一次完整的工具调用记录（请求 + 结果 + 计时）
type ToolExecution struct {
	Call            ToolCallRequest `json:"call"`
	Result          ToolResult      `json:"result"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}
