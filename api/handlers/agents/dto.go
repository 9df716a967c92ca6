package agents

import "backend/internal/agent/runtime"

// CreateAgentRequest 创建 Agent 请求
type CreateAgentRequest struct {
	Name         string         `json:"name" binding:"required"`
	Description  string         `json:"description,omitempty"`
	Role         string         `json:"role" binding:"required"`
	Model        string         `json:"model" binding:"required"`
	Temperature  float64        `json:"temperature"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	ToolsEnabled []string       `json:"tools_enabled,omitempty"`
	ExtraConfig  map[string]any `json:"extra_config,omitempty"`
}

// UpdateAgentRequest 更新 Agent 请求，仅提交的字段会被更新
type UpdateAgentRequest struct {
	Name         *string   `json:"name,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Role         *string   `json:"role,omitempty"`
	Model        *string   `json:"model,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
	ToolsEnabled *[]string `json:"tools_enabled,omitempty"`
	Status       *string   `json:"status,omitempty"`
}

// ExecuteAgentRequest 即席执行请求
type ExecuteAgentRequest struct {
	Message string `json:"message" binding:"required"`
}

// AgentExecuteResponse 即席执行响应
type AgentExecuteResponse struct {
	RequestID string                        `json:"request_id"`
	Result    *runtime.AgentExecutionResult `json:"result"`
}
