package agent

import "time"

// Agent 状态
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

// Agent 一个可执行的 LLM Agent 配置。执行期间只读。
type Agent struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerUserID string `json:"ownerUserId" gorm:"type:uuid;not null;index"`

	// 基本信息
	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`

	// Role 系统提示词
	Role string `json:"role" gorm:"type:text;not null"`

	// 模型配置
	Model       string  `json:"model" gorm:"size:100;not null"`
	Temperature float64 `json:"temperature" gorm:"type:decimal(3,2);default:0.7"`
	MaxTokens   int     `json:"maxTokens" gorm:"default:4096"`

	// ToolsEnabled 启用的工具 ID 列表（有序）
	ToolsEnabled []string `json:"toolsEnabled" gorm:"type:jsonb;serializer:json"`

	// ExtraConfig 扩展配置
	ExtraConfig map[string]any `json:"extraConfig" gorm:"type:jsonb;serializer:json"`

	// 状态
	Status string `json:"status" gorm:"size:50;not null;default:active"` // active, inactive, archived

	// 时间戳
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

// IsExecutable 是否允许执行
func (a *Agent) IsExecutable() bool {
	return a.Status == StatusActive
}
