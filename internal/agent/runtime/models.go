package runtime

import "backend/internal/tools"

// AgentExecutionResult 一次 Agent 执行（一个 turn）的结果。
// 业务失败落在 Success/Error 上，不作为 error 抛出。
type AgentExecutionResult struct {
	// Success 是否产出最终回答
	Success bool `json:"success"`

	// Message 最终回答文本
	Message string `json:"message,omitempty"`

	// ToolCalls 本次执行期间发生的全部工具调用（按迭代与调用顺序）
	ToolCalls []*tools.ToolExecution `json:"tool_calls,omitempty"`

	// TotalExecutionTimeMs 从首次模型调用到循环退出的总耗时
	TotalExecutionTimeMs int64 `json:"total_execution_time_ms"`

	// Usage 累计 Token 使用情况
	Usage Usage `json:"usage"`

	// Error 失败原因
	Error string `json:"error,omitempty"`
}

// Usage Token 使用情况
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
