package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnvConfigPath 是未通过命令行指定配置文件时读取的环境变量。
const EnvConfigPath = "SIM_CONFIG"

// DefaultConfigPath 是环境变量也未设置时使用的路径。
var DefaultConfigPath = filepath.Join("configs", "simulation.json")

// Config 描述模拟引擎在启动阶段需要加载的全部配置。
type Config struct {
	Simulation SimulationConfig `json:"simulation"`
	LLM        LLMConfig        `json:"llm"`
	Oracle     OracleConfig     `json:"oracle"`
	ActionLog  ActionLogConfig  `json:"action_log"`
	Logging    LoggingConfig    `json:"logging"`
	Alerting   AlertingConfig   `json:"alerting"`
	Server     ServerConfig     `json:"server"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// SimulationConfig 控制调度器的步数、并发与超时。
type SimulationConfig struct {
	Scenario            string `json:"scenario"`
	Seed                int64  `json:"seed"`
	Steps               int    `json:"steps"`
	StepsPerEpisode     int    `json:"steps_per_episode"`
	Workers             int    `json:"workers"`
	AgentTimeoutSeconds int    `json:"agent_timeout_seconds"`
	StepTimeoutSeconds  int    `json:"step_timeout_seconds"`
	// StartTime 为 RFC3339 格式的模拟起始时间，留空时使用当前时间。
	StartTime   string `json:"start_time"`
	TickMinutes int    `json:"tick_minutes"`
}

// AgentTimeout 返回单个智能体的超时时间。
func (s SimulationConfig) AgentTimeout() time.Duration {
	return time.Duration(s.AgentTimeoutSeconds) * time.Second
}

// StepTimeout 返回整步的超时时间。
func (s SimulationConfig) StepTimeout() time.Duration {
	return time.Duration(s.StepTimeoutSeconds) * time.Second
}

// Tick 返回每步推进的模拟时间。
func (s SimulationConfig) Tick() time.Duration {
	return time.Duration(s.TickMinutes) * time.Minute
}

// Start 解析模拟起始时间。
func (s SimulationConfig) Start() (time.Time, error) {
	if strings.TrimSpace(s.StartTime) == "" {
		return time.Now().UTC().Truncate(time.Minute), nil
	}
	t, err := time.Parse(time.RFC3339, s.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析 start_time 失败: %w", err)
	}
	return t, nil
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider  string             `json:"provider"`
	OpenAI    ProviderConfig     `json:"openai"`
	Anthropic ProviderConfig     `json:"anthropic"`
	Python    PythonBridgeConfig `json:"python_bridge"`
}

// ProviderConfig 描述托管模型服务的连接参数。APIKeyEnv 指定读取密钥的环境变量。
type ProviderConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"`
}

// Timeout 返回请求超时时间。
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ResolvedAPIKey 优先返回配置中的密钥，否则读取环境变量。
func (p ProviderConfig) ResolvedAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable"`
	ScriptPath       string `json:"script_path"`
	WorkingDir       string `json:"working_dir"`
}

// OracleConfig 控制提问与解析参数。
type OracleConfig struct {
	MaxAttempts       int     `json:"max_attempts"`
	Temperature       float64 `json:"temperature"`
	TimelineLimit     int     `json:"timeline_limit"`
	MaxArgumentLength int     `json:"max_argument_length"`
}

// ActionLogConfig 描述动作日志的各个落地目标，可以同时启用多个。
type ActionLogConfig struct {
	File   string `json:"file"`
	Buffer int    `json:"buffer"`
	// Reader 指定状态接口查询的目标：sql、redis 或 memory。留空时依次选择已启用的 sql、redis，否则为 memory。
	Reader string `json:"reader"`
	// MemoryRetention 是 memory 查询目标保留的最近记录数。
	MemoryRetention int            `json:"memory_retention"`
	SQL             SQLConfig      `json:"sql"`
	Redis           RedisConfig    `json:"redis"`
	RabbitMQ        RabbitMQConfig `json:"rabbitmq"`
}

// SQLConfig 描述 MySQL 或 SQLite 连接。Driver 为空表示不启用。
type SQLConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// ConnMaxLifetime 返回连接最长存活时间。
func (s SQLConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(s.ConnMaxLifetimeSeconds) * time.Second
}

// RedisConfig 描述 Redis 列表目标。Address 为空表示不启用。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
	MaxLen   int64  `json:"max_len"`
}

// RabbitMQConfig 描述 RabbitMQ 发布目标。URL 为空表示不启用。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
	Queue      string `json:"queue"`
	Durable    bool   `json:"durable"`
}

// LoggingConfig 对应 logger.Config。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// AlertingConfig 控制超时与失败告警。
type AlertingConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
	// Threshold 是单步内触发告警的超时或失败智能体数量。
	Threshold int `json:"threshold"`
}

// ServerConfig 控制只读状态接口。
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// ResolvePath 依次使用命令行参数、SIM_CONFIG 与默认路径。
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置，相对路径基于 baseDir。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// Validate 检查互相冲突或取值非法的字段。
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic", "python_bridge":
	default:
		return fmt.Errorf("未知的大模型提供方: %s", c.LLM.Provider)
	}
	switch c.ActionLog.SQL.Driver {
	case "", "mysql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("未知的数据库驱动: %s", c.ActionLog.SQL.Driver)
	}
	if c.ActionLog.SQL.Driver != "" && c.ActionLog.SQL.DSN == "" {
		return errors.New("启用 SQL 动作日志时必须提供 dsn")
	}
	switch c.ActionLog.Reader {
	case "", "memory":
	case "sql":
		if c.ActionLog.SQL.Driver == "" {
			return errors.New("reader 为 sql 时必须启用 SQL 动作日志")
		}
	case "redis":
		if c.ActionLog.Redis.Address == "" {
			return errors.New("reader 为 redis 时必须配置 Redis 地址")
		}
	default:
		return fmt.Errorf("未知的动作日志查询目标: %s", c.ActionLog.Reader)
	}
	if c.Simulation.Steps < 0 {
		return errors.New("steps 不能为负")
	}
	if _, err := c.Simulation.Start(); err != nil {
		return err
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Simulation.Steps == 0 {
		c.Simulation.Steps = 10
	}
	if c.Simulation.StepsPerEpisode <= 0 {
		c.Simulation.StepsPerEpisode = 1
	}
	if c.Simulation.Workers <= 0 {
		c.Simulation.Workers = 4
	}
	if c.Simulation.AgentTimeoutSeconds <= 0 {
		c.Simulation.AgentTimeoutSeconds = 120
	}
	if c.Simulation.StepTimeoutSeconds < 0 {
		c.Simulation.StepTimeoutSeconds = 0
	}
	if c.Simulation.TickMinutes <= 0 {
		c.Simulation.TickMinutes = 30
	}
	c.Simulation.Scenario = resolve(baseDir, c.Simulation.Scenario)

	if c.LLM.Provider == "" {
		c.LLM.Provider = "python_bridge"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Anthropic.APIKeyEnv == "" {
		c.LLM.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	if c.LLM.Python.WorkingDir == "" {
		c.LLM.Python.WorkingDir = baseDir
	} else {
		c.LLM.Python.WorkingDir = resolve(baseDir, c.LLM.Python.WorkingDir)
	}
	c.LLM.Python.ScriptPath = resolve(baseDir, c.LLM.Python.ScriptPath)

	if c.Oracle.MaxAttempts <= 0 {
		c.Oracle.MaxAttempts = 3
	}
	if c.Oracle.TimelineLimit <= 0 {
		c.Oracle.TimelineLimit = 10
	}
	if c.Oracle.MaxArgumentLength <= 0 {
		c.Oracle.MaxArgumentLength = 1000
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir)
	}
	if c.ActionLog.File == "" {
		c.ActionLog.File = filepath.Join(c.Runtime.DataDir, "actions.jsonl")
	} else {
		c.ActionLog.File = resolve(baseDir, c.ActionLog.File)
	}
	if c.ActionLog.MemoryRetention <= 0 {
		c.ActionLog.MemoryRetention = 10000
	}
	if c.ActionLog.Reader == "" {
		switch {
		case c.ActionLog.SQL.Driver != "":
			c.ActionLog.Reader = "sql"
		case c.ActionLog.Redis.Address != "":
			c.ActionLog.Reader = "redis"
		default:
			c.ActionLog.Reader = "memory"
		}
	}
	if c.ActionLog.Redis.Key == "" {
		c.ActionLog.Redis.Key = "sim:actions"
	}
	if c.ActionLog.RabbitMQ.Queue == "" {
		c.ActionLog.RabbitMQ.Queue = "sim.actions"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	} else if c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}

	if c.Alerting.Threshold <= 0 {
		c.Alerting.Threshold = 1
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
