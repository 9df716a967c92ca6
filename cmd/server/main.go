package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"backend/api"
	"backend/internal/agent"
	"backend/internal/agent/runtime"
	"backend/internal/ai/openai"
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/ratelimit"
	"backend/internal/tools"
	"backend/internal/tools/builtin"
	"backend/internal/worker"
	"backend/internal/workflow"
	"backend/internal/workflow/executor"
)

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, "")
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer infra.CloseDatabase()

	if cfg.Database.AutoMigrate {
		err := db.AutoMigrate(
			&agent.Agent{},
			&workflow.Workflow{},
			&workflow.WorkflowRun{},
			&workflow.AgentRun{},
			&workflow.ToolInvocation{},
			&builtin.CalendarEvent{},
		)
		if err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// 4. 工具注册表与分发器
	registry := tools.NewRegistry()
	if err := builtin.RegisterAll(registry, cfg.Tools, db); err != nil {
		logger.Fatal("注册内置工具失败", zap.Error(err))
	}
	dispatcher := tools.NewDispatcher(registry,
		tools.WithToolTimeout(time.Duration(cfg.Tools.DefaultTimeoutSeconds)*time.Second),
	)

	// 5. 模型客户端与执行器
	modelClient, err := openai.NewClient(cfg.AI.OpenAI)
	if err != nil {
		logger.Fatal("初始化模型客户端失败", zap.Error(err))
	}
	defer modelClient.Close()

	orchestrator := runtime.NewOrchestrator(modelClient, registry, dispatcher,
		runtime.WithMaxIterations(cfg.AI.MaxToolIterations),
		runtime.WithLLMTimeout(time.Duration(cfg.AI.LLMTimeoutSeconds)*time.Second),
	)

	// 6. 限流器：Redis 可用时用 Redis，否则退化为进程内限流
	rules := ratelimit.RulesFromConfig(cfg.RateLimit)
	var limiter ratelimit.Limiter
	if redisClient, err := infra.InitRedis(&cfg.Redis); err != nil {
		logger.Warn("Redis 不可用，使用进程内限流器", zap.Error(err))
		limiter = ratelimit.NewMemoryLimiter(rules)
	} else {
		limiter = ratelimit.NewRedisLimiter(redisClient, rules)
		defer redisClient.Close()
	}

	// 7. 队列客户端与执行引擎
	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	agentService := agent.NewService(db)
	workflowService := workflow.NewService(db)
	engine := executor.NewEngine(db, agentService, orchestrator, queueClient, limiter)

	// 8. Worker（按配置启动）
	var workerServer *worker.Server
	if cfg.Worker.Enabled {
		workerServer = worker.NewServer(cfg.Redis, cfg.Worker, engine, logger.Get())
		if err := workerServer.Start(); err != nil {
			logger.Fatal("启动 Worker 失败", zap.Error(err))
		}
	}

	// 9. HTTP 服务器
	router := api.NewRouter(cfg.Server.Mode, api.Deps{
		AgentService:    agentService,
		WorkflowService: workflowService,
		Engine:          engine,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 10. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始关闭...")
	if workerServer != nil {
		workerServer.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务器关闭失败", zap.Error(err))
	}
	logger.Info("应用已退出")
}

// loadEnvFile 依次尝试当前目录与上级目录的 .env
func loadEnvFile() {
	candidates := []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
