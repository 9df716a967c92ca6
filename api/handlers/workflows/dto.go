package workflows

import "backend/internal/workflow"

// CreateWorkflowRequest 创建工作流请求
type CreateWorkflowRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description,omitempty"`
	Graph       workflow.Graph `json:"graph" binding:"required"`
}

// UpdateGraphRequest 替换工作流图请求
type UpdateGraphRequest struct {
	Graph workflow.Graph `json:"graph" binding:"required"`
}

// RunWorkflowRequest 提交执行请求
type RunWorkflowRequest struct {
	Input string `json:"input" binding:"required"`
}

// RunDetailResponse 执行详情，含全部步骤记录
type RunDetailResponse struct {
	Run   *workflow.WorkflowRun `json:"run"`
	Steps []StepDetail          `json:"steps"`
}

// StepDetail 步骤详情，含该步骤的工具调用记录
type StepDetail struct {
	AgentRun        workflow.AgentRun         `json:"agent_run"`
	ToolInvocations []workflow.ToolInvocation `json:"tool_invocations"`
}
