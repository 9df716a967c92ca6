package workflows

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	response "backend/api/handlers/common"
	"backend/internal/workflow"
	"backend/internal/workflow/executor"
)

// RunHandler 工作流执行 Handler
type RunHandler struct {
	service *workflow.Service
	engine  *executor.Engine
}

// NewRunHandler 创建 RunHandler 实例
func NewRunHandler(service *workflow.Service, engine *executor.Engine) *RunHandler {
	return &RunHandler{service: service, engine: engine}
}

// Run 提交一次工作流执行（异步）
// POST /api/workflows/:id/run
// 返回 202 与 run_id；限流拒绝返回 429，不创建执行记录。
func (h *RunHandler) Run(c *gin.Context) {
	userID := c.GetString("user_id")
	workflowID := c.Param("id")

	var req RunWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	submission, err := h.engine.Execute(c.Request.Context(), workflowID, userID, req.Input)
	if err != nil {
		var rateLimited *executor.RateLimitedError
		if errors.As(err, &rateLimited) {
			c.JSON(http.StatusTooManyRequests, response.RateLimitedResponse{
				Success:  false,
				Code:     "rate_limited",
				Message:  rateLimited.Error(),
				Endpoint: rateLimited.Endpoint,
				ResetAt:  rateLimited.Decision.ResetAt.Format(time.RFC3339),
			})
			return
		}
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Data: submission})
}

// Cancel 取消一次执行。仅 pending/running 可取消。
// POST /api/workflows/runs/:run_id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	runID := c.Param("run_id")

	if err := h.engine.Cancel(c.Request.Context(), runID); err != nil {
		if errors.Is(err, workflow.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusConflict, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "已取消"})
}

// GetRun 查询执行详情，含全部步骤与工具调用记录
// GET /api/workflows/runs/:run_id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, workflow.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	agentRuns, err := h.service.ListAgentRuns(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	steps := make([]StepDetail, len(agentRuns))
	for i, ar := range agentRuns {
		invocations, err := h.service.ListToolInvocations(c.Request.Context(), ar.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		steps[i] = StepDetail{AgentRun: ar, ToolInvocations: invocations}
	}

	c.JSON(http.StatusOK, RunDetailResponse{Run: run, Steps: steps})
}
