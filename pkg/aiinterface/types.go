package aiinterface

import "context"

// Message 对话消息。role 取 system/user/assistant/tool 之一。
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`         // role=tool 时为工具名
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // role=assistant 时模型请求的调用
	ToolCallID string     `json:"tool_call_id,omitempty"` // role=tool 时对应的调用 ID
}

// ChatCompletionRequest 对话补全请求
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"` // 0-2
	MaxTokens   int       `json:"max_tokens"`
	Tools       []Tool    `json:"tools,omitempty"`       // Function Calling 工具定义
	ToolChoice  any       `json:"tool_choice,omitempty"` // "auto"、"none" 或指定工具
}

// ChatCompletionResponse 对话补全响应。
// ToolCalls 非空表示模型要求调用工具，此时 Content 可能为空。
type ChatCompletionResponse struct {
	ID        string     `json:"id"`
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	Usage     Usage      `json:"usage"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Usage Token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Tool 工具定义，OpenAI Function Calling 格式
type Tool struct {
	Type     string      `json:"type"` // "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef 函数签名，Parameters 为 JSON Schema
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall 模型返回的一次工具调用
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall 被调用的函数与其 JSON 参数串
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ModelClient 模型客户端统一接口，各提供商适配器实现该接口
type ModelClient interface {
	// ChatCompletion 对话补全（非流式）
	ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// Name 返回提供商名称，如 "openai"
	Name() string

	// Close 释放客户端资源
	Close() error
}

// ErrorType 客户端错误分类
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeInvalidParams ErrorType = "invalid_params"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// ClientError 带分类的客户端错误，保留原始错误供 errors.Is/As 使用
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 限流、网络与服务端错误可重试；认证与参数错误重试无意义
func (e *ClientError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeServerError:
		return true
	default:
		return false
	}
}
