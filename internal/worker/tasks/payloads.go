package tasks

// 任务类型
const (
	TypeExecuteWorkflow = "workflow:execute"
)

// ExecuteWorkflowPayload 工作流执行任务载荷
type ExecuteWorkflowPayload struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	UserID     string `json:"user_id"`
}
