package builtin

import (
	"gorm.io/gorm"

	"backend/internal/config"
	"backend/internal/tools"
)

// RegisterAll 注册所有内置工具。
// 注册顺序即 Registry 的稳定遍历顺序。
func RegisterAll(registry *tools.Registry, cfg config.ToolsConfig, db *gorm.DB) error {
	all := []tools.Tool{
		NewWebSearchTool(cfg.Search),
		NewEmailTool(cfg.Email),
		NewCalendarTool(db),
		NewDatabaseTool(db),
	}
	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
