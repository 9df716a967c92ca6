package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/worker/tasks"
)

// WorkflowRunner 工作流执行器抽象，便于注入 mock
type WorkflowRunner interface {
	RunExecution(ctx context.Context, runID string) error
}

// WorkflowHandler 工作流任务处理器
type WorkflowHandler struct {
	runner WorkflowRunner
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流任务处理器
func NewWorkflowHandler(runner WorkflowRunner, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleExecuteWorkflow 消费工作流执行任务
func (h *WorkflowHandler) HandleExecuteWorkflow(ctx context.Context, t *asynq.Task) error {
	var p tasks.ExecuteWorkflowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始执行工作流任务",
		zap.String("run_id", p.RunID),
		zap.String("workflow_id", p.WorkflowID),
	)

	if err := h.runner.RunExecution(ctx, p.RunID); err != nil {
		h.logger.Error("工作流执行失败",
			zap.String("run_id", p.RunID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("工作流任务处理完成", zap.String("run_id", p.RunID))
	return nil
}
