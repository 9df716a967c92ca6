package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/worker/tasks"
)

type fakeRunner struct {
	err    error
	runIDs []string
}

func (f *fakeRunner) RunExecution(_ context.Context, runID string) error {
	f.runIDs = append(f.runIDs, runID)
	return f.err
}

func TestHandleExecuteWorkflow(t *testing.T) {
	runner := &fakeRunner{}
	h := NewWorkflowHandler(runner, zap.NewNop())

	payload, _ := json.Marshal(tasks.ExecuteWorkflowPayload{
		RunID:      "run-1",
		WorkflowID: "wf-1",
		UserID:     "user-1",
	})
	task := asynq.NewTask(tasks.TypeExecuteWorkflow, payload)

	if err := h.HandleExecuteWorkflow(context.Background(), task); err != nil {
		t.Fatalf("处理失败: %v", err)
	}
	if len(runner.runIDs) != 1 || runner.runIDs[0] != "run-1" {
		t.Fatalf("runner 未被调用: %v", runner.runIDs)
	}
}

func TestHandleExecuteWorkflowBadPayload(t *testing.T) {
	h := NewWorkflowHandler(&fakeRunner{}, zap.NewNop())

	task := asynq.NewTask(tasks.TypeExecuteWorkflow, []byte("not-json"))
	if err := h.HandleExecuteWorkflow(context.Background(), task); err == nil {
		t.Fatal("非法载荷应报错")
	}
}

func TestHandleExecuteWorkflowRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("db down")}
	h := NewWorkflowHandler(runner, zap.NewNop())

	payload, _ := json.Marshal(tasks.ExecuteWorkflowPayload{RunID: "run-1"})
	task := asynq.NewTask(tasks.TypeExecuteWorkflow, payload)
	if err := h.HandleExecuteWorkflow(context.Background(), task); err == nil {
		t.Fatal("基础设施故障应向队列返回 error")
	}
}
