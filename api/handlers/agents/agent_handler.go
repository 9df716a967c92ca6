package agents

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	response "backend/api/handlers/common"
	"backend/internal/agent"
)

// AgentHandler Agent CRUD Handler
type AgentHandler struct {
	service *agent.Service
}

// NewAgentHandler 创建 AgentHandler 实例
func NewAgentHandler(service *agent.Service) *AgentHandler {
	return &AgentHandler{service: service}
}

// Create 创建 Agent
// POST /api/agents
func (h *AgentHandler) Create(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	a, err := h.service.Create(c.Request.Context(), agent.CreateInput{
		OwnerUserID:  userID,
		Name:         req.Name,
		Description:  req.Description,
		Role:         req.Role,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		ToolsEnabled: req.ToolsEnabled,
		ExtraConfig:  req.ExtraConfig,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, response.APIResponse{Success: true, Data: a})
}

// Get 查询 Agent
// GET /api/agents/:id
func (h *AgentHandler) Get(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: a})
}

// List 列出当前用户的 Agent
// GET /api/agents
func (h *AgentHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")

	agents, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: agents})
}

// Update 更新 Agent 配置
// PUT /api/agents/:id
func (h *AgentHandler) Update(c *gin.Context) {
	var req UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Model != nil {
		updates["model"] = *req.Model
	}
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 2 {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "temperature 必须在 0-2 之间"})
			return
		}
		updates["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}
	if req.ToolsEnabled != nil {
		updates["tools_enabled"] = *req.ToolsEnabled
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "没有可更新的字段"})
		return
	}

	a, err := h.service.Update(c.Request.Context(), c.Param("id"), updates)
	if err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: a})
}

// Delete 删除 Agent（软删除）
// DELETE /api/agents/:id
func (h *AgentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "删除成功"})
}
