package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrAgentNotFound Agent 不存在
var ErrAgentNotFound = errors.New("agent 不存在")

// Service Agent CRUD 服务
type Service struct {
	db *gorm.DB
}

// NewService 创建 Agent 服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput 创建 Agent 的输入
type CreateInput struct {
	OwnerUserID  string
	Name         string
	Description  string
	Role         string
	Model        string
	Temperature  float64
	MaxTokens    int
	ToolsEnabled []string
	ExtraConfig  map[string]any
}

// Create 创建 Agent
func (s *Service) Create(ctx context.Context, input CreateInput) (*Agent, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name 不能为空")
	}
	if input.Role == "" {
		return nil, fmt.Errorf("role 不能为空")
	}
	if input.Model == "" {
		return nil, fmt.Errorf("model 不能为空")
	}
	if input.Temperature < 0 || input.Temperature > 2 {
		return nil, fmt.Errorf("temperature 必须在 0-2 之间")
	}

	a := &Agent{
		ID:           uuid.New().String(),
		OwnerUserID:  input.OwnerUserID,
		Name:         input.Name,
		Description:  input.Description,
		Role:         input.Role,
		Model:        input.Model,
		Temperature:  input.Temperature,
		MaxTokens:    input.MaxTokens,
		ToolsEnabled: input.ToolsEnabled,
		ExtraConfig:  input.ExtraConfig,
		Status:       StatusActive,
	}
	if a.MaxTokens <= 0 {
		a.MaxTokens = 4096
	}

	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, fmt.Errorf("创建 agent 失败: %w", err)
	}
	return a, nil
}

// Get 按 ID 查询 Agent
func (s *Service) Get(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("查询 agent 失败: %w", err)
	}
	return &a, nil
}

// List 列出某个用户的 Agent
func (s *Service) List(ctx context.Context, ownerUserID string) ([]Agent, error) {
	var agents []Agent
	err := s.db.WithContext(ctx).
		Where("owner_user_id = ? AND deleted_at IS NULL", ownerUserID).
		Order("created_at DESC").
		Find(&agents).Error
	if err != nil {
		return nil, fmt.Errorf("查询 agent 列表失败: %w", err)
	}
	return agents, nil
}

// Update 更新 Agent 配置
func (s *Service) Update(ctx context.Context, id string, updates map[string]any) (*Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(a).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新 agent 失败: %w", err)
	}
	return s.Get(ctx, id)
}

// Archive 归档 Agent（软删除前的终态）
func (s *Service) Archive(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(a).Update("status", StatusArchived).Error
}

// Delete 软删除 Agent
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(a).Update("deleted_at", &now).Error
}
