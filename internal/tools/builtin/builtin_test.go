package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"backend/internal/config"
	"backend/internal/tools"
)

func setupBuiltinTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&CalendarEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRegisterAllOrder(t *testing.T) {
	registry := tools.NewRegistry()
	db := setupBuiltinTestDB(t)
	if err := RegisterAll(registry, config.ToolsConfig{}, db); err != nil {
		t.Fatalf("注册失败: %v", err)
	}

	want := []string{"web_search", "email", "calendar", "database_query"}
	listed := registry.List()
	if len(listed) != len(want) {
		t.Fatalf("期望 %d 个工具, 实际 %d", len(want), len(listed))
	}
	for i, tool := range listed {
		if tool.Name() != want[i] {
			t.Fatalf("位置 %d 期望 %s, 实际 %s", i, want[i], tool.Name())
		}
	}
}

func TestEmailToolAvailability(t *testing.T) {
	if NewEmailTool(config.EmailToolConfig{}).Available() {
		t.Fatal("无 SMTP 配置应不可用")
	}
	tool := NewEmailTool(config.EmailToolConfig{
		SMTPHost:    "smtp.example.com",
		FromAddress: "bot@example.com",
	})
	if !tool.Available() {
		t.Fatal("配置齐全应可用")
	}
}

func TestEmailToolValidation(t *testing.T) {
	tool := NewEmailTool(config.EmailToolConfig{
		SMTPHost:    "smtp.example.com",
		FromAddress: "bot@example.com",
	})
	ctx := context.Background()

	cases := []map[string]any{
		{"subject": "hi", "body": "text"},                              // 缺 to
		{"to": []any{"a@example.com"}, "body": "text"},                 // 缺 subject
		{"to": []any{"a@example.com"}, "subject": "hi"},                // 缺 body
		{"to": "not-an-array", "subject": "hi", "body": "text"},        // to 类型错误
		{"to": []any{}, "subject": "hi", "body": "text"},               // to 为空
	}
	for i, input := range cases {
		if _, err := tool.Execute(ctx, input); err == nil {
			t.Fatalf("用例 %d 应报错: %v", i, input)
		}
	}
}

func TestEmailToolRecipientWhitelist(t *testing.T) {
	tool := NewEmailTool(config.EmailToolConfig{
		SMTPHost:    "smtp.example.com",
		FromAddress: "bot@example.com",
		AllowedTo:   []string{"example.com"},
	})

	if !tool.isAllowedRecipient("a@example.com") {
		t.Fatal("白名单域名应放行")
	}
	if !tool.isAllowedRecipient("a@EXAMPLE.COM") {
		t.Fatal("域名比较应忽略大小写")
	}
	if tool.isAllowedRecipient("a@evil.com") {
		t.Fatal("白名单外域名应拒绝")
	}
	if tool.isAllowedRecipient("not-an-email") {
		t.Fatal("非法地址应拒绝")
	}

	// 无白名单时全部放行
	open := NewEmailTool(config.EmailToolConfig{SMTPHost: "h", FromAddress: "f"})
	if !open.isAllowedRecipient("anyone@anywhere.com") {
		t.Fatal("无白名单时应放行")
	}
}

func TestParseStringArray(t *testing.T) {
	if got, err := parseStringArray([]any{"a", "b"}); err != nil || len(got) != 2 {
		t.Fatalf("解析 []any 失败: %v, %v", got, err)
	}
	if got, err := parseStringArray([]string{"a"}); err != nil || len(got) != 1 {
		t.Fatalf("解析 []string 失败: %v, %v", got, err)
	}
	if _, err := parseStringArray(42); err == nil {
		t.Fatal("非数组类型应报错")
	}
	if got, err := parseStringArray(nil); err != nil || got != nil {
		t.Fatalf("nil 应返回空: %v, %v", got, err)
	}
}

func TestWebSearchToolAvailability(t *testing.T) {
	if NewWebSearchTool(config.SearchToolConfig{}).Available() {
		t.Fatal("无 API Key 应不可用")
	}
	if !NewWebSearchTool(config.SearchToolConfig{APIKey: "k", Endpoint: "http://x"}).Available() {
		t.Fatal("配置齐全应可用")
	}
}

func TestWebSearchToolExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("q") != "golang workflow" {
			t.Errorf("查询参数错误: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []SearchResult{
				{Title: "r1", Link: "http://a", Snippet: "s1"},
				{Title: "r2", Link: "http://b", Snippet: "s2"},
				{Title: "r3", Link: "http://c", Snippet: "s3"},
			},
		})
	}))
	defer server.Close()

	tool := NewWebSearchTool(config.SearchToolConfig{APIKey: "secret", Endpoint: server.URL})

	out, err := tool.Execute(context.Background(), map[string]any{
		"query":       "golang workflow",
		"num_results": float64(2),
	})
	if err != nil {
		t.Fatalf("搜索失败: %v", err)
	}
	results := out["results"].([]SearchResult)
	// 结果按 num_results 截断
	if len(results) != 2 {
		t.Fatalf("期望 2 条结果, 实际 %d", len(results))
	}
	if results[0].Title != "r1" {
		t.Fatalf("结果错误: %+v", results[0])
	}
}

func TestWebSearchToolProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tool := NewWebSearchTool(config.SearchToolConfig{APIKey: "k", Endpoint: server.URL})
	if _, err := tool.Execute(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Fatal("上游 500 应报错")
	}
}

func TestWebSearchToolEmptyQuery(t *testing.T) {
	tool := NewWebSearchTool(config.SearchToolConfig{APIKey: "k", Endpoint: "http://x"})
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("缺少 query 应报错")
	}
}

func TestCalendarToolCreateAndList(t *testing.T) {
	db := setupBuiltinTestDB(t)
	tool := NewCalendarTool(db)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{
		"action":    "create",
		"title":     "评审会",
		"starts_at": "2025-06-10T10:00:00Z",
		"location":  "会议室 A",
	})
	if err != nil {
		t.Fatalf("创建事件失败: %v", err)
	}
	if out["event_id"] == "" || out["title"] != "评审会" {
		t.Fatalf("创建结果错误: %v", out)
	}

	_, err = tool.Execute(ctx, map[string]any{
		"action":    "create",
		"title":     "另一场",
		"starts_at": "2025-07-01T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("创建事件失败: %v", err)
	}

	// 按时间范围过滤
	listOut, err := tool.Execute(ctx, map[string]any{
		"action": "list",
		"from":   "2025-06-01T00:00:00Z",
		"to":     "2025-06-30T23:59:59Z",
	})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if listOut["count"] != 1 {
		t.Fatalf("范围内应有 1 条事件, 实际 %v", listOut["count"])
	}
}

func TestCalendarToolValidation(t *testing.T) {
	tool := NewCalendarTool(setupBuiltinTestDB(t))
	ctx := context.Background()

	if _, err := tool.Execute(ctx, map[string]any{"action": "unknown"}); err == nil {
		t.Fatal("未知 action 应报错")
	}
	if _, err := tool.Execute(ctx, map[string]any{"action": "create"}); err == nil {
		t.Fatal("缺少 title 应报错")
	}
	if _, err := tool.Execute(ctx, map[string]any{
		"action":    "create",
		"title":     "x",
		"starts_at": "not-a-time",
	}); err == nil {
		t.Fatal("非法时间格式应报错")
	}
}

func TestParseTimeField(t *testing.T) {
	ts, err := parseTimeField(map[string]any{"at": "2025-06-10T10:00:00Z"}, "at")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if ts.UTC() != time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("解析结果错误: %v", ts)
	}
	if _, err := parseTimeField(map[string]any{}, "at"); err == nil {
		t.Fatal("缺失字段应报错")
	}
}

func TestDatabaseToolReadOnly(t *testing.T) {
	db := setupBuiltinTestDB(t)
	tool := NewDatabaseTool(db)
	ctx := context.Background()

	rejected := []string{
		"DELETE FROM calendar_events",
		"select 1; drop table calendar_events",
		"update calendar_events set title = 'x'",
		"INSERT INTO calendar_events VALUES (1)",
		"",
	}
	for _, stmt := range rejected {
		if _, err := tool.Execute(ctx, map[string]any{"sql": stmt}); err == nil {
			t.Fatalf("语句应被拒绝: %q", stmt)
		}
	}
}

func TestDatabaseToolQuery(t *testing.T) {
	db := setupBuiltinTestDB(t)
	for i := 0; i < 3; i++ {
		event := &CalendarEvent{
			ID:       fmt.Sprintf("ev-%d", i),
			Title:    fmt.Sprintf("event %d", i),
			StartsAt: time.Now().UTC(),
		}
		if err := db.Create(event).Error; err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	tool := NewDatabaseTool(db)
	out, err := tool.Execute(context.Background(), map[string]any{
		"sql": "SELECT id, title FROM calendar_events",
	})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if out["count"] != 3 {
		t.Fatalf("期望 3 行, 实际 %v", out["count"])
	}
}

func TestDatabaseToolUnavailableWithoutDB(t *testing.T) {
	if NewDatabaseTool(nil).Available() {
		t.Fatal("无数据库连接应不可用")
	}
}
