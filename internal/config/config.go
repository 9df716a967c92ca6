package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	SQLitePath      string `mapstructure:"sqlite_path"` // driver=sqlite 时使用
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（队列与限流共用）
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// LLMTimeoutSeconds 单次模型调用超时（秒）
	LLMTimeoutSeconds int `mapstructure:"llm_timeout_seconds"`
	// MaxToolIterations 工具调用循环上限
	MaxToolIterations int `mapstructure:"max_tool_iterations"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	OrgID      string `mapstructure:"org_id"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// ToolsConfig 内置工具配置。凭证缺失的工具视为不可用。
type ToolsConfig struct {
	Email  EmailToolConfig  `mapstructure:"email"`
	Search SearchToolConfig `mapstructure:"search"`
	// DefaultTimeoutSeconds 单次工具调用超时（秒）
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`
}

// EmailToolConfig SMTP 邮件工具配置
type EmailToolConfig struct {
	SMTPHost    string   `mapstructure:"smtp_host"`
	SMTPPort    int      `mapstructure:"smtp_port"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	FromAddress string   `mapstructure:"from_address"`
	FromName    string   `mapstructure:"from_name"`
	UseTLS      bool     `mapstructure:"use_tls"`
	AllowedTo   []string `mapstructure:"allowed_to"` // 收件人域名白名单
}

// SearchToolConfig 网络搜索工具配置
type SearchToolConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// RateLimitConfig 滑动窗口限流配置
type RateLimitConfig struct {
	// AgentExecuteLimit agent:execute 窗口内最大请求数
	AgentExecuteLimit int `mapstructure:"agent_execute_limit"`
	// AgentExecuteWindowSeconds agent:execute 窗口长度（秒）
	AgentExecuteWindowSeconds int `mapstructure:"agent_execute_window_seconds"`
	// WorkflowRunLimit workflow:run 窗口内最大请求数
	WorkflowRunLimit int `mapstructure:"workflow_run_limit"`
	// WorkflowRunWindowSeconds workflow:run 窗口长度（秒）
	WorkflowRunWindowSeconds int `mapstructure:"workflow_run_window_seconds"`
}

// WorkerConfig 任务队列 Worker 配置
type WorkerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件，支持 APP_DATABASE_HOST 形式
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("ai.llm_timeout_seconds", 60)
	v.SetDefault("ai.max_tool_iterations", 8)
	v.SetDefault("tools.default_timeout_seconds", 30)
	v.SetDefault("rate_limit.agent_execute_limit", 10)
	v.SetDefault("rate_limit.agent_execute_window_seconds", 60)
	v.SetDefault("rate_limit.workflow_run_limit", 5)
	v.SetDefault("rate_limit.workflow_run_window_seconds", 300)
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.concurrency", 10)
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
