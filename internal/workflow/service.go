package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrWorkflowNotFound 工作流不存在
var ErrWorkflowNotFound = errors.New("工作流不存在")

// ErrRunNotFound 执行记录不存在
var ErrRunNotFound = errors.New("执行记录不存在")

// Service 工作流 CRUD 与运行记录查询服务
type Service struct {
	db *gorm.DB
}

// NewService 创建工作流服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SaveInput 创建/更新工作流的输入
type SaveInput struct {
	OwnerUserID string
	Name        string
	Description string
	Graph       Graph
}

// Create 创建工作流。图在保存时校验，保存后即为不可变快照。
func (s *Service) Create(ctx context.Context, input SaveInput) (*Workflow, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name 不能为空")
	}
	if _, err := ResolveOrder(&input.Graph); err != nil {
		return nil, fmt.Errorf("工作流图无效: %w", err)
	}

	w := &Workflow{
		ID:          uuid.New().String(),
		OwnerUserID: input.OwnerUserID,
		Name:        input.Name,
		Description: input.Description,
		Graph:       input.Graph,
		Status:      "active",
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, fmt.Errorf("创建工作流失败: %w", err)
	}
	return w, nil
}

// Get 按 ID 查询工作流
func (s *Service) Get(ctx context.Context, id string) (*Workflow, error) {
	var w Workflow
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	return &w, nil
}

// List 列出某个用户的工作流
func (s *Service) List(ctx context.Context, ownerUserID string) ([]Workflow, error) {
	var workflows []Workflow
	err := s.db.WithContext(ctx).
		Where("owner_user_id = ? AND deleted_at IS NULL", ownerUserID).
		Order("created_at DESC").
		Find(&workflows).Error
	if err != nil {
		return nil, fmt.Errorf("查询工作流列表失败: %w", err)
	}
	return workflows, nil
}

// UpdateGraph 替换图快照（整体替换，不做局部合并）
func (s *Service) UpdateGraph(ctx context.Context, id string, graph Graph) (*Workflow, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := ResolveOrder(&graph); err != nil {
		return nil, fmt.Errorf("工作流图无效: %w", err)
	}
	// 结构体更新走 schema 序列化器，单列 Update 不会经过 serializer:json
	if err := s.db.WithContext(ctx).Model(w).Select("graph").Updates(&Workflow{Graph: graph}).Error; err != nil {
		return nil, fmt.Errorf("更新工作流失败: %w", err)
	}
	return s.Get(ctx, id)
}

// GetRun 按 ID 查询执行记录
func (s *Service) GetRun(ctx context.Context, runID string) (*WorkflowRun, error) {
	var run WorkflowRun
	err := s.db.WithContext(ctx).Where("id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	return &run, nil
}

// ListAgentRuns 列出某次执行的全部步骤记录，按 step_order 升序
func (s *Service) ListAgentRuns(ctx context.Context, runID string) ([]AgentRun, error) {
	var runs []AgentRun
	err := s.db.WithContext(ctx).
		Where("workflow_run_id = ?", runID).
		Order("step_order ASC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("查询步骤记录失败: %w", err)
	}
	return runs, nil
}

// ListToolInvocations 列出某步骤的全部工具调用，按创建顺序
func (s *Service) ListToolInvocations(ctx context.Context, agentRunID string) ([]ToolInvocation, error) {
	var invocations []ToolInvocation
	err := s.db.WithContext(ctx).
		Where("agent_run_id = ?", agentRunID).
		Order("created_at ASC").
		Find(&invocations).Error
	if err != nil {
		return nil, fmt.Errorf("查询工具调用记录失败: %w", err)
	}
	return invocations, nil
}
