package workflows

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	response "backend/api/handlers/common"
	"backend/internal/workflow"
)

// WorkflowHandler 工作流 CRUD Handler
type WorkflowHandler struct {
	service *workflow.Service
}

// NewWorkflowHandler 创建 WorkflowHandler 实例
func NewWorkflowHandler(service *workflow.Service) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// Create 创建工作流。图在保存时校验，非法图直接拒绝。
// POST /api/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	w, err := h.service.Create(c.Request.Context(), workflow.SaveInput{
		OwnerUserID: userID,
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, response.APIResponse{Success: true, Data: w})
}

// Get 查询工作流
// GET /api/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	w, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: w})
}

// List 列出当前用户的工作流
// GET /api/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")

	workflows, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: workflows})
}

// UpdateGraph 替换工作流图（整体快照替换）
// PUT /api/workflows/:id/graph
func (h *WorkflowHandler) UpdateGraph(c *gin.Context) {
	var req UpdateGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	w, err := h.service.UpdateGraph(c.Request.Context(), c.Param("id"), req.Graph)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: w})
}
