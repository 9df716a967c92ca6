package tools

import (
	"fmt"
	"sync"

	"backend/pkg/aiinterface"
)

// Registry 工具注册表。注册后不再变更，按注册顺序稳定遍历。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string // 注册顺序
}

// NewRegistry 创建工具注册表
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register 注册工具
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("工具 %s 已注册", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get 获取工具
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List 按注册顺序列出所有工具
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// IsAvailable 工具是否已注册且可用
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return exists && tool.Available()
}

// Schemas 根据启用的工具 ID 列表构建 function calling 定义。
// 未注册或不可用的 ID 直接丢弃，保持输入顺序。
func (r *Registry) Schemas(names []string) []aiinterface.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]aiinterface.Tool, 0, len(names))
	for _, name := range names {
		tool, exists := r.tools[name]
		if !exists || !tool.Available() {
			continue
		}
		defs = append(defs, aiinterface.Tool{
			Type: "function",
			Function: aiinterface.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}

// Count 统计工具数量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
