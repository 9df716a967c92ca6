package ratelimit

import (
	"context"
	"testing"
	"time"

	"backend/internal/config"
)

func newTestLimiter(limit int, window time.Duration) (*MemoryLimiter, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(map[string]Rule{
		EndpointAgentExecute: {Limit: limit, Window: window},
	})
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiterAllowsUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Check(ctx, "user-1", EndpointAgentExecute)
		if !d.Allowed {
			t.Fatalf("第 %d 次请求应被放行", i+1)
		}
		if d.Remaining != 3-i-1 {
			t.Fatalf("第 %d 次请求剩余额度期望 %d, 实际 %d", i+1, 3-i-1, d.Remaining)
		}
	}
}

func TestMemoryLimiterRejectsOverLimit(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	l.Check(ctx, "user-1", EndpointAgentExecute)
	l.Check(ctx, "user-1", EndpointAgentExecute)

	d := l.Check(ctx, "user-1", EndpointAgentExecute)
	if d.Allowed {
		t.Fatal("超出限额的请求应被拒绝")
	}
	if d.Remaining != 0 {
		t.Fatalf("拒绝时剩余额度应为 0, 实际 %d", d.Remaining)
	}
	if d.ResetAt.IsZero() {
		t.Fatal("拒绝时必须给出重置时间")
	}
}

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	l.Check(ctx, "user-1", EndpointAgentExecute)
	l.Check(ctx, "user-1", EndpointAgentExecute)

	if d := l.Check(ctx, "user-1", EndpointAgentExecute); d.Allowed {
		t.Fatal("窗口内第 3 次请求应被拒绝")
	}

	// 窗口滑过后旧计数失效
	*now = now.Add(61 * time.Second)
	if d := l.Check(ctx, "user-1", EndpointAgentExecute); !d.Allowed {
		t.Fatal("窗口滑过后应重新放行")
	}
}

func TestMemoryLimiterIsolatesUsers(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	if d := l.Check(ctx, "user-1", EndpointAgentExecute); !d.Allowed {
		t.Fatal("user-1 首次请求应放行")
	}
	if d := l.Check(ctx, "user-2", EndpointAgentExecute); !d.Allowed {
		t.Fatal("user-2 与 user-1 额度独立")
	}
	if d := l.Check(ctx, "user-1", EndpointAgentExecute); d.Allowed {
		t.Fatal("user-1 第二次请求应被拒绝")
	}
}

func TestMemoryLimiterUnknownEndpoint(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	// 未配置规则的端点不限流
	d := l.Check(context.Background(), "user-1", "unknown:endpoint")
	if !d.Allowed {
		t.Fatal("未配置规则的端点应放行")
	}
}

func TestAdmitAfterInsert(t *testing.T) {
	rule := Rule{Limit: 3, Window: time.Minute}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := admitAfterInsert(1, rule, now)
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("窗口首次请求应放行且剩余 2: %+v", d)
	}

	// 计数含自身：正好达到上限时本次放行，余量归零
	d = admitAfterInsert(3, rule, now)
	if !d.Allowed || d.Remaining != 0 {
		t.Fatalf("达到上限的请求应放行且剩余 0: %+v", d)
	}

	// 并发写入后计数超过上限：本次拒绝
	d = admitAfterInsert(4, rule, now)
	if d.Allowed {
		t.Fatal("超出上限的请求应被拒绝")
	}
	if d.Remaining != 0 || d.ResetAt.IsZero() {
		t.Fatalf("拒绝时应给出剩余额度与重置时间: %+v", d)
	}
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(config.RateLimitConfig{
		AgentExecuteLimit:         10,
		AgentExecuteWindowSeconds: 60,
		WorkflowRunLimit:          5,
		WorkflowRunWindowSeconds:  300,
	})

	agentRule := rules[EndpointAgentExecute]
	if agentRule.Limit != 10 || agentRule.Window != time.Minute {
		t.Fatalf("agent:execute 规则错误: %+v", agentRule)
	}
	wfRule := rules[EndpointWorkflowRun]
	if wfRule.Limit != 5 || wfRule.Window != 5*time.Minute {
		t.Fatalf("workflow:run 规则错误: %+v", wfRule)
	}
}
