package workflow

import "time"

// WorkflowRun 状态
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// AgentRun 状态
const (
	StepStatusPending   = "pending"
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

// ToolInvocation 状态
const (
	ToolStatusCompleted = "completed"
	ToolStatusFailed    = "failed"
)

// Step 工作流中的一步：由某个 Agent 执行
type Step struct {
	ID      string `json:"id"`
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
}

// Edge 步骤间的连接
type Edge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Triggers 触发方式
type Triggers struct {
	Manual   bool `json:"manual"`
	Schedule bool `json:"schedule"`
	Webhook  bool `json:"webhook"`
}

// Graph 工作流图。当前模型始终是单条线性链，
// 但对外保持 steps+edges 的图结构，执行顺序按边遍历解析。
type Graph struct {
	Steps    []Step   `json:"steps"`
	Edges    []Edge   `json:"edges"`
	Triggers Triggers `json:"triggers"`
}

// Workflow 工作流定义
type Workflow struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerUserID string `json:"ownerUserId" gorm:"type:uuid;not null;index"`

	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`

	// Graph 图快照；保存时整体替换，运行期间不可变
	Graph Graph `json:"graph" gorm:"type:jsonb;not null;serializer:json"`

	Status string `json:"status" gorm:"size:50;not null;default:active"` // active, disabled

	CreatedAt time.Time  `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

// WorkflowRun 一次工作流执行
type WorkflowRun struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID string `json:"workflowId" gorm:"type:uuid;not null;index"`

	// Status pending -> running -> completed | failed | cancelled
	Status string `json:"status" gorm:"size:50;not null;default:pending"`

	Input        string `json:"input" gorm:"type:text"`
	Output       string `json:"output" gorm:"type:text"`
	ErrorMessage string `json:"errorMessage" gorm:"type:text"`

	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`

	CreatedBy string    `json:"createdBy" gorm:"type:uuid;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

// IsTerminal 是否已到终态
func (r *WorkflowRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed || r.Status == RunStatusCancelled
}

// AgentRun 一次工作流执行中的一步
type AgentRun struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowRunID string `json:"workflowRunId" gorm:"type:uuid;not null;index"`
	AgentID       string `json:"agentId" gorm:"type:uuid;not null"`

	// StepOrder 步骤序号，1 起，连续递增
	StepOrder int `json:"stepOrder" gorm:"not null"`

	// Status pending -> running -> completed | failed | skipped
	Status string `json:"status" gorm:"size:50;not null;default:pending"`

	Input        string `json:"input" gorm:"type:text"`
	Output       string `json:"output" gorm:"type:text"`
	ErrorMessage string `json:"errorMessage" gorm:"type:text"`

	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// ToolInvocation 一步执行中的一次工具调用
type ToolInvocation struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	AgentRunID string `json:"agentRunId" gorm:"type:uuid;not null;index"`

	ToolName string         `json:"toolName" gorm:"size:100;not null"`
	Params   map[string]any `json:"params" gorm:"type:jsonb;serializer:json"`

	// Status completed | failed，镜像工具结果
	Status string         `json:"status" gorm:"size:50;not null"`
	Result map[string]any `json:"result" gorm:"type:jsonb;serializer:json"`
	// ErrorMessage 工具失败原因；不包含任何凭证信息
	ErrorMessage string `json:"errorMessage" gorm:"type:text"`

	StartedAt       *time.Time `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
	ExecutionTimeMs int64      `json:"executionTimeMs"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}
