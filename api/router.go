package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	agenthandlers "backend/api/handlers/agents"
	workflowhandlers "backend/api/handlers/workflows"
	"backend/internal/agent"
	"backend/internal/middleware"
	"backend/internal/workflow"
	"backend/internal/workflow/executor"
)

// Deps 路由依赖
type Deps struct {
	AgentService    *agent.Service
	WorkflowService *workflow.Service
	Engine          *executor.Engine
}

// NewRouter 构建 HTTP 路由
func NewRouter(mode string, deps Deps) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(userIdentity())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	agentHandler := agenthandlers.NewAgentHandler(deps.AgentService)
	executeHandler := agenthandlers.NewAgentExecuteHandler(deps.Engine)
	workflowHandler := workflowhandlers.NewWorkflowHandler(deps.WorkflowService)
	runHandler := workflowhandlers.NewRunHandler(deps.WorkflowService, deps.Engine)

	api := r.Group("/api")
	{
		agents := api.Group("/agents")
		{
			agents.POST("", agentHandler.Create)
			agents.GET("", agentHandler.List)
			agents.GET("/:id", agentHandler.Get)
			agents.PUT("/:id", agentHandler.Update)
			agents.DELETE("/:id", agentHandler.Delete)
			agents.POST("/:id/execute", executeHandler.Execute)
		}

		workflows := api.Group("/workflows")
		{
			workflows.POST("", workflowHandler.Create)
			workflows.GET("", workflowHandler.List)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.PUT("/:id/graph", workflowHandler.UpdateGraph)
			workflows.POST("/:id/run", runHandler.Run)
			workflows.GET("/runs/:run_id", runHandler.GetRun)
			workflows.POST("/runs/:run_id/cancel", runHandler.Cancel)
		}
	}

	return r
}

// userIdentity 从请求头解析用户标识。
// 网关负责鉴权，这里只透传 X-User-ID，缺省为 anonymous。
func userIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = "anonymous"
		}
		c.Set("user_id", userID)
		c.Next()
	}
}
