package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"backend/internal/agent"
	"backend/internal/agent/runtime"
	"backend/internal/ratelimit"
	"backend/internal/tools"
	"backend/internal/worker/tasks"
	"backend/internal/workflow"
	"backend/internal/workflow/executor"
	"backend/pkg/aiinterface"
)

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&agent.Agent{},
		&workflow.Workflow{},
		&workflow.WorkflowRun{},
		&workflow.AgentRun{},
		&workflow.ToolInvocation{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeQueue struct {
	payloads []tasks.ExecuteWorkflowPayload
}

func (f *fakeQueue) EnqueueExecuteWorkflow(payload tasks.ExecuteWorkflowPayload) error {
	f.payloads = append(f.payloads, payload)
	return nil
}
func (f *fakeQueue) Close() error { return nil }

type staticClient struct{}

func (staticClient) ChatCompletion(context.Context, *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	return &aiinterface.ChatCompletionResponse{Content: "ok"}, nil
}
func (staticClient) Name() string { return "static" }
func (staticClient) Close() error { return nil }

func newHandlerEngine(db *gorm.DB, rules map[string]ratelimit.Rule) *executor.Engine {
	registry := tools.NewRegistry()
	orchestrator := runtime.NewOrchestrator(staticClient{}, registry, tools.NewDispatcher(registry))
	if rules == nil {
		rules = map[string]ratelimit.Rule{}
	}
	return executor.NewEngine(db, agent.NewService(db), orchestrator, &fakeQueue{}, ratelimit.NewMemoryLimiter(rules))
}

func insertTestWorkflow(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	wf := &workflow.Workflow{
		ID:          id,
		OwnerUserID: "user-1",
		Name:        "demo",
		Graph: workflow.Graph{
			Steps: []workflow.Step{{ID: "s1", AgentID: "agent-1", Name: "唯一步骤"}},
		},
		Status: "active",
	}
	if err := db.Create(wf).Error; err != nil {
		t.Fatalf("insert workflow: %v", err)
	}
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, params gin.Params, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = params
	c.Set("user_id", "user-1")
	handler(c)
	return w
}

func TestRunHandlerAccepted(t *testing.T) {
	db := setupHandlerTestDB(t)
	insertTestWorkflow(t, db, "wf-1")
	h := NewRunHandler(workflow.NewService(db), newHandlerEngine(db, nil))

	w := postJSON(t, h.Run, "/api/workflows/wf-1/run",
		gin.Params{{Key: "id", Value: "wf-1"}}, `{"input":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 实际 %d: %s", w.Code, w.Body.String())
	}

	var run workflow.WorkflowRun
	if err := db.First(&run).Error; err != nil {
		t.Fatalf("执行记录未创建: %v", err)
	}
	if run.Status != workflow.RunStatusPending {
		t.Fatalf("期望 pending, 实际 %s", run.Status)
	}
}

func TestRunHandlerRateLimited(t *testing.T) {
	db := setupHandlerTestDB(t)
	insertTestWorkflow(t, db, "wf-1")
	rules := map[string]ratelimit.Rule{
		ratelimit.EndpointWorkflowRun: {Limit: 1, Window: 5 * time.Minute},
	}
	h := NewRunHandler(workflow.NewService(db), newHandlerEngine(db, rules))
	params := gin.Params{{Key: "id", Value: "wf-1"}}

	if w := postJSON(t, h.Run, "/api/workflows/wf-1/run", params, `{"input":"a"}`); w.Code != http.StatusAccepted {
		t.Fatalf("首次提交期望 202, 实际 %d", w.Code)
	}

	w := postJSON(t, h.Run, "/api/workflows/wf-1/run", params, `{"input":"b"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("期望 429, 实际 %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp["code"] != "rate_limited" || resp["reset_at"] == "" {
		t.Fatalf("429 响应缺少限流信息: %v", resp)
	}

	// 限流拒绝不产生执行记录
	var count int64
	db.Model(&workflow.WorkflowRun{}).Count(&count)
	if count != 1 {
		t.Fatalf("期望 1 条记录, 实际 %d", count)
	}
}

func TestRunHandlerWorkflowNotFound(t *testing.T) {
	db := setupHandlerTestDB(t)
	h := NewRunHandler(workflow.NewService(db), newHandlerEngine(db, nil))

	w := postJSON(t, h.Run, "/api/workflows/ghost/run",
		gin.Params{{Key: "id", Value: "ghost"}}, `{"input":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("期望 404, 实际 %d", w.Code)
	}
}

func TestRunHandlerMissingInput(t *testing.T) {
	db := setupHandlerTestDB(t)
	insertTestWorkflow(t, db, "wf-1")
	h := NewRunHandler(workflow.NewService(db), newHandlerEngine(db, nil))

	w := postJSON(t, h.Run, "/api/workflows/wf-1/run",
		gin.Params{{Key: "id", Value: "wf-1"}}, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 实际 %d", w.Code)
	}
}

func TestCancelHandler(t *testing.T) {
	db := setupHandlerTestDB(t)
	run := &workflow.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", Status: workflow.RunStatusRunning}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("create run: %v", err)
	}
	h := NewRunHandler(workflow.NewService(db), newHandlerEngine(db, nil))

	w := postJSON(t, h.Cancel, "/api/workflows/runs/run-1/cancel",
		gin.Params{{Key: "run_id", Value: "run-1"}}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
	}

	var got workflow.WorkflowRun
	db.First(&got, "id = ?", "run-1")
	if got.Status != workflow.RunStatusCancelled {
		t.Fatalf("期望 cancelled, 实际 %s", got.Status)
	}

	// 终态重复取消 => 409
	w = postJSON(t, h.Cancel, "/api/workflows/runs/run-1/cancel",
		gin.Params{{Key: "run_id", Value: "run-1"}}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("期望 409, 实际 %d", w.Code)
	}

	w = postJSON(t, h.Cancel, "/api/workflows/runs/ghost/cancel",
		gin.Params{{Key: "run_id", Value: "ghost"}}, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("期望 404, 实际 %d", w.Code)
	}
}

func TestGetRunHandlerDetail(t *testing.T) {
	db := setupHandlerTestDB(t)
	run := &workflow.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", Status: workflow.RunStatusCompleted}
	ar := &workflow.AgentRun{ID: "ar-1", WorkflowRunID: "run-1", AgentID: "agent-1", StepOrder: 1, Status: workflow.StepStatusCompleted}
	inv := &workflow.ToolInvocation{ID: "ti-1", AgentRunID: "ar-1", ToolName: "web_search", Status: workflow.ToolStatusCompleted}
	for _, rec := range []any{run, ar, inv} {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	h := NewRunHandler(workflow.NewService(db), newHandlerEngine(db, nil))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/workflows/runs/run-1", nil)
	c.Params = gin.Params{{Key: "run_id", Value: "run-1"}}
	h.GetRun(c)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	var resp RunDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Run.ID != "run-1" || len(resp.Steps) != 1 {
		t.Fatalf("详情错误: %+v", resp)
	}
	if len(resp.Steps[0].ToolInvocations) != 1 || resp.Steps[0].ToolInvocations[0].ToolName != "web_search" {
		t.Fatalf("工具调用记录错误: %+v", resp.Steps[0])
	}
}
