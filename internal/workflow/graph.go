package workflow

import "fmt"

// ResolveOrder 按边遍历解析图的执行顺序。
// 图必须是一条简单路径：唯一入口（无入边的步骤）、每步至多一条出边、
// 无环、无不可达步骤。单步无边的图也是合法路径。
func ResolveOrder(g *Graph) ([]Step, error) {
	if len(g.Steps) == 0 {
		return nil, fmt.Errorf("工作流至少需要一个步骤")
	}

	stepByID := make(map[string]Step, len(g.Steps))
	for _, s := range g.Steps {
		if s.ID == "" {
			return nil, fmt.Errorf("存在缺少 ID 的步骤")
		}
		if _, dup := stepByID[s.ID]; dup {
			return nil, fmt.Errorf("重复的步骤 ID: %s", s.ID)
		}
		stepByID[s.ID] = s
	}

	next := make(map[string]string, len(g.Edges))
	inbound := make(map[string]int, len(g.Steps))
	for _, e := range g.Edges {
		if _, ok := stepByID[e.From]; !ok {
			return nil, fmt.Errorf("边 %s 的起点 %s 不存在", e.ID, e.From)
		}
		if _, ok := stepByID[e.To]; !ok {
			return nil, fmt.Errorf("边 %s 的终点 %s 不存在", e.ID, e.To)
		}
		if _, dup := next[e.From]; dup {
			return nil, fmt.Errorf("步骤 %s 有多条出边，线性工作流不支持分支", e.From)
		}
		next[e.From] = e.To
		inbound[e.To]++
	}

	// 唯一入口：没有入边的步骤
	var entry string
	for _, s := range g.Steps {
		if inbound[s.ID] == 0 {
			if entry != "" {
				return nil, fmt.Errorf("存在多个入口步骤: %s 与 %s", entry, s.ID)
			}
			entry = s.ID
		}
	}
	if entry == "" {
		// 所有步骤都有入边，必然成环
		return nil, fmt.Errorf("工作流图存在环")
	}

	ordered := make([]Step, 0, len(g.Steps))
	visited := make(map[string]bool, len(g.Steps))
	for cur := entry; cur != ""; cur = next[cur] {
		if visited[cur] {
			return nil, fmt.Errorf("工作流图存在环，重复经过步骤 %s", cur)
		}
		visited[cur] = true
		ordered = append(ordered, stepByID[cur])
	}

	if len(ordered) != len(g.Steps) {
		return nil, fmt.Errorf("存在不可达步骤：路径覆盖 %d 步，共 %d 步", len(ordered), len(g.Steps))
	}
	return ordered, nil
}
