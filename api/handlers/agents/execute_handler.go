package agents

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	response "backend/api/handlers/common"
	"backend/internal/agent"
	"backend/internal/middleware"
	"backend/internal/workflow/executor"
)

// AgentExecuteHandler Agent 即席执行 Handler
type AgentExecuteHandler struct {
	engine *executor.Engine
}

// NewAgentExecuteHandler 创建 AgentExecuteHandler 实例
func NewAgentExecuteHandler(engine *executor.Engine) *AgentExecuteHandler {
	return &AgentExecuteHandler{engine: engine}
}

// Execute 执行 Agent（同步）
// POST /api/agents/:id/execute
// 限流拒绝返回 429，并带窗口重置时间；执行失败体现在 result 内，HTTP 仍为 200。
func (h *AgentExecuteHandler) Execute(c *gin.Context) {
	userID := c.GetString("user_id")
	agentID := c.Param("id")

	var req ExecuteAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	result, err := h.engine.ExecuteAgent(c.Request.Context(), agentID, userID, req.Message)
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
		if errors.Is(err, agent.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, AgentExecuteResponse{
		RequestID: middleware.GetRequestID(c),
		Result:    result,
	})
}
