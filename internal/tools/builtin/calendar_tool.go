package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CalendarEvent 日历事件记录
type CalendarEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	Title     string    `json:"title" gorm:"size:255;not null"`
	StartsAt  time.Time `json:"startsAt" gorm:"not null;index"`
	EndsAt    time.Time `json:"endsAt"`
	Location  string    `json:"location" gorm:"size:255"`
	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// CalendarTool 日历工具，支持创建与查询事件
type CalendarTool struct {
	db *gorm.DB
}

// NewCalendarTool 创建日历工具
func NewCalendarTool(db *gorm.DB) *CalendarTool {
	return &CalendarTool{db: db}
}

func (t *CalendarTool) Name() string {
	return "calendar"
}

func (t *CalendarTool) Description() string {
	return "创建日历事件或查询某个日期范围内的事件。action 为 create 或 list。"
}

func (t *CalendarTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"create", "list"},
				"description": "操作类型",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "事件标题（action=create 时必填）",
			},
			"starts_at": map[string]any{
				"type":        "string",
				"description": "开始时间，RFC3339 格式",
			},
			"ends_at": map[string]any{
				"type":        "string",
				"description": "结束时间，RFC3339 格式（可选）",
			},
			"location": map[string]any{
				"type":        "string",
				"description": "地点（可选）",
			},
			"from": map[string]any{
				"type":        "string",
				"description": "查询范围起点，RFC3339 格式（action=list 时使用）",
			},
			"to": map[string]any{
				"type":        "string",
				"description": "查询范围终点，RFC3339 格式（action=list 时使用）",
			},
		},
		"required": []string{"action"},
	}
}

// Available 依赖数据库连接
func (t *CalendarTool) Available() bool {
	return t.db != nil
}

func (t *CalendarTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	action, _ := input["action"].(string)
	switch action {
	case "create":
		return t.createEvent(ctx, input)
	case "list":
		return t.listEvents(ctx, input)
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}

func (t *CalendarTool) createEvent(ctx context.Context, input map[string]any) (map[string]any, error) {
	title, _ := input["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	startsAt, err := parseTimeField(input, "starts_at")
	if err != nil {
		return nil, err
	}

	event := &CalendarEvent{
		ID:       uuid.New().String(),
		Title:    title,
		StartsAt: startsAt,
	}
	if endsAt, err := parseTimeField(input, "ends_at"); err == nil {
		event.EndsAt = endsAt
	}
	if location, ok := input["location"].(string); ok {
		event.Location = location
	}
	if notes, ok := input["notes"].(string); ok {
		event.Notes = notes
	}

	if err := t.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("create event failed: %w", err)
	}

	return map[string]any{
		"event_id":  event.ID,
		"title":     event.Title,
		"starts_at": event.StartsAt.Format(time.RFC3339),
	}, nil
}

func (t *CalendarTool) listEvents(ctx context.Context, input map[string]any) (map[string]any, error) {
	query := t.db.WithContext(ctx).Model(&CalendarEvent{}).Order("starts_at ASC").Limit(50)
	if from, err := parseTimeField(input, "from"); err == nil {
		query = query.Where("starts_at >= ?", from)
	}
	if to, err := parseTimeField(input, "to"); err == nil {
		query = query.Where("starts_at <= ?", to)
	}

	var events []CalendarEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events failed: %w", err)
	}

	items := make([]map[string]any, 0, len(events))
	for _, e := range events {
		items = append(items, map[string]any{
			"event_id":  e.ID,
			"title":     e.Title,
			"starts_at": e.StartsAt.Format(time.RFC3339),
			"location":  e.Location,
		})
	}
	return map[string]any{"events": items, "count": len(items)}, nil
}

func parseTimeField(input map[string]any, key string) (time.Time, error) {
	raw, ok := input[key].(string)
	if !ok || raw == "" {
		return time.Time{}, fmt.Errorf("%s is missing", key)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return ts, nil
}
