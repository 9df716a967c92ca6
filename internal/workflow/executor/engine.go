package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"backend/internal/agent"
	"backend/internal/agent/runtime"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/ratelimit"
	"backend/internal/worker/tasks"
	workflowpkg "backend/internal/workflow"
)

// RateLimitedError 限流拒绝。与执行失败严格区分，调用方可取回重试信息。
type RateLimitedError struct {
	Endpoint string
	Decision ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("请求超出 %s 限流，重置时间 %s", e.Endpoint, e.Decision.ResetAt.Format(time.RFC3339))
}

// Engine 工作流执行引擎。
// Execute 提交异步任务；RunExecution 由 Worker 调用，顺序执行每一步，
// 全程写入 WorkflowRun/AgentRun/ToolInvocation 记录。
type Engine struct {
	db           *gorm.DB
	agents       *agent.Service
	orchestrator *runtime.Orchestrator
	queueClient  queue.Client
	limiter      ratelimit.Limiter
}

// NewEngine 创建执行引擎
func NewEngine(db *gorm.DB, agents *agent.Service, orchestrator *runtime.Orchestrator, queueClient queue.Client, limiter ratelimit.Limiter) *Engine {
	return &Engine{
		db:           db,
		agents:       agents,
		orchestrator: orchestrator,
		queueClient:  queueClient,
		limiter:      limiter,
	}
}

// RunSubmission 异步提交结果
type RunSubmission struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// ExecuteAgent 单 Agent 即席执行（同步）。限流在任何工作发生之前判定。
func (e *Engine) ExecuteAgent(ctx context.Context, agentID, userID, userMessage string) (*runtime.AgentExecutionResult, error) {
	if decision := e.limiter.Check(ctx, userID, ratelimit.EndpointAgentExecute); !decision.Allowed {
		return nil, &RateLimitedError{Endpoint: ratelimit.EndpointAgentExecute, Decision: decision}
	}

	a, err := e.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return e.orchestrator.Execute(ctx, a, userMessage, nil)
}

// Execute 提交一次工作流执行（异步）。
// 限流与校验都发生在创建任何记录之前；限流拒绝不会产生 WorkflowRun 行。
func (e *Engine) Execute(ctx context.Context, workflowID, userID, input string) (*RunSubmission, error) {
	if decision := e.limiter.Check(ctx, userID, ratelimit.EndpointWorkflowRun); !decision.Allowed {
		return nil, &RateLimitedError{Endpoint: ratelimit.EndpointWorkflowRun, Decision: decision}
	}

	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("输入不能为空")
	}

	var wf workflowpkg.Workflow
	if err := e.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", workflowID).
		First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflowpkg.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}

	// 提交前校验图，避免坏配置进入队列
	if _, err := workflowpkg.ResolveOrder(&wf.Graph); err != nil {
		return nil, fmt.Errorf("工作流图无效: %w", err)
	}

	run := &workflowpkg.WorkflowRun{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     workflowpkg.RunStatusPending,
		Input:      input,
		CreatedBy:  userID,
	}
	if err := e.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建执行记录失败: %w", err)
	}

	payload := tasks.ExecuteWorkflowPayload{
		RunID:      run.ID,
		WorkflowID: workflowID,
		UserID:     userID,
	}
	if err := e.queueClient.EnqueueExecuteWorkflow(payload); err != nil {
		// 入队失败：执行不会发生，直接置为 failed
		now := time.Now().UTC()
		e.db.WithContext(ctx).Model(run).Updates(map[string]any{
			"status":        workflowpkg.RunStatusFailed,
			"error_message": fmt.Sprintf("任务入队失败: %v", err),
			"finished_at":   &now,
		})
		return nil, fmt.Errorf("任务入队失败: %w", err)
	}

	return &RunSubmission{
		RunID:      run.ID,
		WorkflowID: workflowID,
		Status:     run.Status,
	}, nil
}

// Cancel 取消一次执行。仅对非终态生效；执行中的步骤会跑完当前迭代，
// 引擎在步骤间检查取消标记。
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	var run workflowpkg.WorkflowRun
	if err := e.db.WithContext(ctx).Where("id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflowpkg.ErrRunNotFound
		}
		return fmt.Errorf("查询执行记录失败: %w", err)
	}
	if run.IsTerminal() {
		return fmt.Errorf("执行已结束（%s），无法取消", run.Status)
	}

	now := time.Now().UTC()
	return e.db.WithContext(ctx).Model(&run).
		Where("status IN ?", []string{workflowpkg.RunStatusPending, workflowpkg.RunStatusRunning}).
		Updates(map[string]any{
			"status":      workflowpkg.RunStatusCancelled,
			"finished_at": &now,
		}).Error
}

// RunExecution 执行工作流（Worker 调用）。
// 业务失败记录在行上并返回 nil；仅基础设施故障返回 error。
func (e *Engine) RunExecution(ctx context.Context, runID string) error {
	log := logger.WithContext(ctx).With(zap.String("run_id", runID))

	var run workflowpkg.WorkflowRun
	if err := e.db.WithContext(ctx).Where("id = ?", runID).First(&run).Error; err != nil {
		return fmt.Errorf("查询执行记录失败: %w", err)
	}

	// 终态不可重入：重复投递或重复调用不会触发再执行
	if run.IsTerminal() {
		log.Info("执行已到终态，跳过", zap.String("status", run.Status))
		return nil
	}

	var wf workflowpkg.Workflow
	if err := e.db.WithContext(ctx).Where("id = ?", run.WorkflowID).First(&wf).Error; err != nil {
		return fmt.Errorf("查询工作流失败: %w", err)
	}

	ordered, err := workflowpkg.ResolveOrder(&wf.Graph)
	if err != nil {
		return e.failRun(ctx, &run, fmt.Sprintf("工作流图无效: %v", err))
	}

	// pending -> running
	now := time.Now().UTC()
	if err := e.db.WithContext(ctx).Model(&run).Updates(map[string]any{
		"status":     workflowpkg.RunStatusRunning,
		"started_at": &now,
	}).Error; err != nil {
		return fmt.Errorf("更新执行状态失败: %w", err)
	}

	// 预创建全部步骤记录（pending），step_order 从 1 起连续递增
	agentRuns := make([]*workflowpkg.AgentRun, len(ordered))
	for i, step := range ordered {
		agentRuns[i] = &workflowpkg.AgentRun{
			ID:            uuid.New().String(),
			WorkflowRunID: run.ID,
			AgentID:       step.AgentID,
			StepOrder:     i + 1,
			Status:        workflowpkg.StepStatusPending,
		}
		if err := e.db.WithContext(ctx).Create(agentRuns[i]).Error; err != nil {
			return fmt.Errorf("创建步骤记录失败: %w", err)
		}
	}

	input := run.Input
	for i, step := range ordered {
		// 步骤间检查取消：执行中的步骤不被硬杀，下一步不再开始
		if cancelled, err := e.checkCancelled(ctx, run.ID); err != nil {
			return err
		} else if cancelled {
			log.Info("执行已取消，停止后续步骤", zap.Int("next_step", i+1))
			e.skipFrom(ctx, agentRuns, i)
			return nil
		}

		stepResult, stepErr := e.runStep(ctx, agentRuns[i], step, input)
		if stepErr != nil {
			return stepErr // 基础设施故障
		}

		if !stepResult.Success {
			// 单步失败 => 整次执行失败，剩余步骤标记 skipped
			e.skipFrom(ctx, agentRuns, i+1)
			return e.failRun(ctx, &run, fmt.Sprintf("步骤 %d (%s) 失败: %s", i+1, stepLabel(step), stepResult.Error))
		}

		// 中间步骤没有输出时无法继续串联，明确报出而不是让下一步因空输入失败
		if i < len(ordered)-1 && strings.TrimSpace(stepResult.Message) == "" {
			e.skipFrom(ctx, agentRuns, i+1)
			return e.failRun(ctx, &run, fmt.Sprintf("步骤 %d (%s) 未产生输出，无法继续执行", i+1, stepLabel(step)))
		}

		input = stepResult.Message // 上一步输出作为下一步输入
	}

	// 全部完成。终态不可覆盖：最后一步执行期间被取消时放弃完成写入
	finished := time.Now().UTC()
	res := e.db.WithContext(ctx).Model(&run).
		Where("status = ?", workflowpkg.RunStatusRunning).
		Updates(map[string]any{
			"status":      workflowpkg.RunStatusCompleted,
			"output":      input,
			"finished_at": &finished,
		})
	if res.Error != nil {
		return fmt.Errorf("更新执行结果失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Info("执行已进入终态，保留原状态")
		return nil
	}
	log.Info("工作流执行完成", zap.Int("steps", len(ordered)))
	return nil
}

// stepLabel 步骤展示名，未命名时退回步骤 ID
func stepLabel(s workflowpkg.Step) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// runStep 执行单个步骤：状态流转、调用 Orchestrator、落工具调用记录。
// 返回的 error 仅代表基础设施故障；业务失败体现在结果上。
func (e *Engine) runStep(ctx context.Context, ar *workflowpkg.AgentRun, step workflowpkg.Step, input string) (*runtime.AgentExecutionResult, error) {
	started := time.Now().UTC()
	if err := e.db.WithContext(ctx).Model(ar).Updates(map[string]any{
		"status":     workflowpkg.StepStatusRunning,
		"input":      input,
		"started_at": &started,
	}).Error; err != nil {
		return nil, fmt.Errorf("更新步骤状态失败: %w", err)
	}

	var result *runtime.AgentExecutionResult

	a, err := e.agents.Get(ctx, step.AgentID)
	if err != nil {
		result = &runtime.AgentExecutionResult{Success: false, Error: fmt.Sprintf("获取 agent 失败: %v", err)}
	} else {
		// 每一步都是该 Agent 的全新 turn，不携带历史对话
		result, err = e.orchestrator.Execute(ctx, a, input, nil)
		if err != nil {
			result = &runtime.AgentExecutionResult{Success: false, Error: err.Error()}
		}
	}

	// 工具调用记录按迭代与调用顺序落库，成功失败都保留
	for _, exec := range result.ToolCalls {
		invocation := &workflowpkg.ToolInvocation{
			ID:              uuid.New().String(),
			AgentRunID:      ar.ID,
			ToolName:        exec.Call.Name,
			Params:          exec.Call.Params,
			Result:          exec.Result.Data,
			ErrorMessage:    exec.Result.Error,
			StartedAt:       &exec.StartedAt,
			FinishedAt:      &exec.CompletedAt,
			ExecutionTimeMs: exec.ExecutionTimeMs,
		}
		if exec.Result.Success {
			invocation.Status = workflowpkg.ToolStatusCompleted
		} else {
			invocation.Status = workflowpkg.ToolStatusFailed
		}
		if err := e.db.WithContext(ctx).Create(invocation).Error; err != nil {
			return nil, fmt.Errorf("创建工具调用记录失败: %w", err)
		}
	}

	finished := time.Now().UTC()
	updates := map[string]any{"finished_at": &finished}
	if result.Success {
		updates["status"] = workflowpkg.StepStatusCompleted
		updates["output"] = result.Message
	} else {
		updates["status"] = workflowpkg.StepStatusFailed
		updates["error_message"] = result.Error
	}
	if err := e.db.WithContext(ctx).Model(ar).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新步骤结果失败: %w", err)
	}
	return result, nil
}

// checkCancelled 重新读取执行状态，判断是否被取消
func (e *Engine) checkCancelled(ctx context.Context, runID string) (bool, error) {
	var run workflowpkg.WorkflowRun
	if err := e.db.WithContext(ctx).Select("status").Where("id = ?", runID).First(&run).Error; err != nil {
		return false, fmt.Errorf("查询执行状态失败: %w", err)
	}
	return run.Status == workflowpkg.RunStatusCancelled, nil
}

// skipFrom 将 from 下标（0 起）之后尚未开始的步骤标记为 skipped
func (e *Engine) skipFrom(ctx context.Context, agentRuns []*workflowpkg.AgentRun, from int) {
	for i := from; i < len(agentRuns); i++ {
		err := e.db.WithContext(ctx).Model(agentRuns[i]).
			Where("status = ?", workflowpkg.StepStatusPending).
			Update("status", workflowpkg.StepStatusSkipped).Error
		if err != nil {
			logger.WithContext(ctx).Warn("标记步骤跳过失败",
				zap.String("agent_run_id", agentRuns[i].ID), zap.Error(err))
		}
	}
}

// failRun 将执行标记为 failed。仅非终态可写，已取消的执行保持 cancelled。
func (e *Engine) failRun(ctx context.Context, run *workflowpkg.WorkflowRun, message string) error {
	now := time.Now().UTC()
	res := e.db.WithContext(ctx).Model(run).
		Where("status IN ?", []string{workflowpkg.RunStatusPending, workflowpkg.RunStatusRunning}).
		Updates(map[string]any{
			"status":        workflowpkg.RunStatusFailed,
			"error_message": message,
			"finished_at":   &now,
		})
	if res.Error != nil {
		return fmt.Errorf("更新失败状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	logger.WithContext(ctx).Warn("工作流执行失败",
		zap.String("run_id", run.ID), zap.String("error", message))
	return nil
}
