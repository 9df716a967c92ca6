package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/logger"
)

// 端点类别
const (
	EndpointAgentExecute = "agent:execute"
	EndpointWorkflowRun  = "workflow:run"
)

// Rule 某个端点类别的滑动窗口规则
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision 限流判定结果
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter 滑动窗口限流器，按 (userID, endpoint) 维度判定。
// 后端不可达时放行（fail open），仅记录降级日志。
type Limiter interface {
	Check(ctx context.Context, userID, endpoint string) Decision
}

// RulesFromConfig 从配置构建端点规则表
func RulesFromConfig(cfg config.RateLimitConfig) map[string]Rule {
	return map[string]Rule{
		EndpointAgentExecute: {
			Limit:  cfg.AgentExecuteLimit,
			Window: time.Duration(cfg.AgentExecuteWindowSeconds) * time.Second,
		},
		EndpointWorkflowRun: {
			Limit:  cfg.WorkflowRunLimit,
			Window: time.Duration(cfg.WorkflowRunWindowSeconds) * time.Second,
		},
	}
}

// ---------------------------------------------------------------------------
// Redis 实现
// ---------------------------------------------------------------------------

// RedisLimiter 基于 Redis ZSET 的滑动窗口限流器
type RedisLimiter struct {
	client *redis.Client
	rules  map[string]Rule
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client, rules map[string]Rule) *RedisLimiter {
	return &RedisLimiter{client: client, rules: rules}
}

// Check 判定一次请求。
// 单个 pipeline 内先写入本次成员再计数，并发请求互相可见，不会超配额放行；
// 超限时回删本次成员，被拒绝的请求不占用配额。
func (l *RedisLimiter) Check(ctx context.Context, userID, endpoint string) Decision {
	rule, ok := l.rules[endpoint]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s:%s", endpoint, userID)
	windowStart := now.Add(-rule.Window)
	member := uuid.New().String()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		// 后端不可达：放行并记录降级
		logger.Warn("限流后端不可达，降级放行",
			zap.String("endpoint", endpoint), zap.Error(err))
		return Decision{Allowed: true, Remaining: -1, ResetAt: now.Add(rule.Window)}
	}

	decision := admitAfterInsert(int(countCmd.Val()), rule, now)
	if !decision.Allowed {
		l.client.ZRem(ctx, key, member)
		decision.ResetAt = l.oldestEntryReset(ctx, key, rule, now)
	}
	return decision
}

// admitAfterInsert 对已计入窗口的本次请求做判定，计数包含自身
func admitAfterInsert(count int, rule Rule, now time.Time) Decision {
	if count > rule.Limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: now.Add(rule.Window)}
	}
	return Decision{
		Allowed:   true,
		Remaining: rule.Limit - count,
		ResetAt:   now.Add(rule.Window),
	}
}

// oldestEntryReset 用窗口内最早的一次请求推算窗口重置时间
func (l *RedisLimiter) oldestEntryReset(ctx context.Context, key string, rule Rule, now time.Time) time.Time {
	entries, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(entries) == 0 {
		return now.Add(rule.Window)
	}
	oldest := time.Unix(0, int64(entries[0].Score))
	return oldest.Add(rule.Window)
}

// ---------------------------------------------------------------------------
// 内存实现（单进程部署与测试用）
// ---------------------------------------------------------------------------

// MemoryLimiter 进程内滑动窗口限流器
type MemoryLimiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	entries map[string][]time.Time
	nowFunc func() time.Time
}

// NewMemoryLimiter 创建内存限流器
func NewMemoryLimiter(rules map[string]Rule) *MemoryLimiter {
	return &MemoryLimiter{
		rules:   rules,
		entries: make(map[string][]time.Time),
		nowFunc: time.Now,
	}
}

// Check 判定一次请求
func (l *MemoryLimiter) Check(_ context.Context, userID, endpoint string) Decision {
	rule, ok := l.rules[endpoint]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	key := endpoint + ":" + userID
	windowStart := now.Add(-rule.Window)

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	l.entries[key] = kept

	if len(kept) >= rule.Limit {
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   kept[0].Add(rule.Window),
		}
	}

	l.entries[key] = append(kept, now)
	return Decision{
		Allowed:   true,
		Remaining: rule.Limit - len(kept) - 1,
		ResetAt:   now.Add(rule.Window),
	}
}
