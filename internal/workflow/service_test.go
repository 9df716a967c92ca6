package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupWorkflowTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Workflow{}, &WorkflowRun{}, &AgentRun{}, &ToolInvocation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func validSaveInput() SaveInput {
	return SaveInput{
		OwnerUserID: "user-1",
		Name:        "内容流水线",
		Graph:       chainGraph("research", "write", "review"),
	}
}

func TestWorkflowServiceCreateAndGet(t *testing.T) {
	svc := NewService(setupWorkflowTestDB(t))
	ctx := context.Background()

	created, err := svc.Create(ctx, validSaveInput())
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if created.ID == "" || created.Status != "active" {
		t.Fatalf("创建结果错误: %+v", created)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(got.Graph.Steps) != 3 || len(got.Graph.Edges) != 2 {
		t.Fatalf("图快照错误: %+v", got.Graph)
	}
}

func TestWorkflowServiceCreateRejectsInvalidGraph(t *testing.T) {
	svc := NewService(setupWorkflowTestDB(t))
	ctx := context.Background()

	in := validSaveInput()
	in.Graph.Edges = append(in.Graph.Edges, Edge{ID: "back", From: "review", To: "research"})
	if _, err := svc.Create(ctx, in); err == nil {
		t.Fatal("带环的图应被拒绝")
	}

	in = validSaveInput()
	in.Graph = Graph{}
	if _, err := svc.Create(ctx, in); err == nil {
		t.Fatal("空图应被拒绝")
	}
}

func TestWorkflowServiceUpdateGraph(t *testing.T) {
	svc := NewService(setupWorkflowTestDB(t))
	ctx := context.Background()

	created, _ := svc.Create(ctx, validSaveInput())

	// 整体替换为两步链
	updated, err := svc.UpdateGraph(ctx, created.ID, chainGraph("a", "b"))
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if len(updated.Graph.Steps) != 2 {
		t.Fatalf("替换后应为 2 步, 实际 %d", len(updated.Graph.Steps))
	}

	// 非法图不落库
	if _, err := svc.UpdateGraph(ctx, created.ID, Graph{}); err == nil {
		t.Fatal("空图应被拒绝")
	}
	got, _ := svc.Get(ctx, created.ID)
	if len(got.Graph.Steps) != 2 {
		t.Fatalf("被拒绝的更新不应落库: %+v", got.Graph)
	}
}

func TestWorkflowServiceGetRunNotFound(t *testing.T) {
	svc := NewService(setupWorkflowTestDB(t))

	_, err := svc.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("期望 ErrRunNotFound, 实际 %v", err)
	}
}

func TestWorkflowServiceListAgentRunsOrdered(t *testing.T) {
	db := setupWorkflowTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	run := &WorkflowRun{ID: "run-1", WorkflowID: "wf-1", Status: RunStatusCompleted}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("create run: %v", err)
	}
	// 乱序写入
	for _, order := range []int{3, 1, 2} {
		ar := &AgentRun{
			ID:            fmt.Sprintf("ar-%d", order),
			WorkflowRunID: "run-1",
			AgentID:       "agent-1",
			StepOrder:     order,
			Status:        StepStatusCompleted,
		}
		if err := db.Create(ar).Error; err != nil {
			t.Fatalf("create agent run: %v", err)
		}
	}

	runs, err := svc.ListAgentRuns(ctx, "run-1")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	for i, ar := range runs {
		if ar.StepOrder != i+1 {
			t.Fatalf("位置 %d 期望 step_order %d, 实际 %d", i, i+1, ar.StepOrder)
		}
	}
}
