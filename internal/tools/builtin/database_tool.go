package builtin

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// DatabaseTool 只读数据库查询工具。
// 仅允许 SELECT 语句，防止模型产生写操作。
type DatabaseTool struct {
	db      *gorm.DB
	maxRows int
}

// NewDatabaseTool 创建数据库查询工具
func NewDatabaseTool(db *gorm.DB) *DatabaseTool {
	return &DatabaseTool{db: db, maxRows: 100}
}

func (t *DatabaseTool) Name() string {
	return "database_query"
}

func (t *DatabaseTool) Description() string {
	return "对应用数据库执行只读 SQL 查询（仅允许 SELECT），返回最多 100 行结果。"
}

func (t *DatabaseTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "要执行的 SELECT 语句",
			},
		},
		"required": []string{"sql"},
	}
}

// Available 依赖数据库连接
func (t *DatabaseTool) Available() bool {
	return t.db != nil
}

func (t *DatabaseTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	rawSQL, _ := input["sql"].(string)
	rawSQL = strings.TrimSpace(rawSQL)
	if rawSQL == "" {
		return nil, fmt.Errorf("sql is required")
	}

	if err := validateReadOnly(rawSQL); err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := t.db.WithContext(ctx).Raw(rawSQL).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(rows) > t.maxRows {
		rows = rows[:t.maxRows]
	}

	return map[string]any{
		"rows":  rows,
		"count": len(rows),
	}, nil
}

// validateReadOnly 粗粒度的只读校验：单条 SELECT，禁止写关键字
func validateReadOnly(rawSQL string) error {
	normalized := strings.ToLower(rawSQL)
	if strings.Contains(normalized, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	if !strings.HasPrefix(normalized, "select") {
		return fmt.Errorf("only SELECT statements are allowed")
	}
	for _, kw := range []string{"insert ", "update ", "delete ", "drop ", "alter ", "create ", "truncate "} {
		if strings.Contains(normalized, kw) {
			return fmt.Errorf("statement contains forbidden keyword: %s", strings.TrimSpace(kw))
		}
	}
	return nil
}
