package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/config"
	"OpenAgent-Sim/internal/llm"
	"OpenAgent-Sim/internal/llm/anthropic"
	"OpenAgent-Sim/internal/llm/openai"
	"OpenAgent-Sim/internal/llm/pythonbridge"
	"OpenAgent-Sim/pkg/logger"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return nil, err
	}
	err = logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "openai":
		p := cfg.LLM.OpenAI
		return openai.NewClient(openai.Config{
			APIKey:     p.ResolvedAPIKey(),
			BaseURL:    p.BaseURL,
			Model:      p.Model,
			Timeout:    p.Timeout(),
			MaxRetries: p.MaxRetries,
		})
	case "anthropic":
		p := cfg.LLM.Anthropic
		return anthropic.NewClient(anthropic.Config{
			APIKey:     p.ResolvedAPIKey(),
			BaseURL:    p.BaseURL,
			Model:      p.Model,
			Timeout:    p.Timeout(),
			MaxRetries: p.MaxRetries,
		})
	case "python_bridge":
		return pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, cfg.LLM.Python.ScriptPath, cfg.LLM.Python.WorkingDir)
	default:
		return nil, fmt.Errorf("未知的大模型提供方: %s", cfg.LLM.Provider)
	}
}

// openSinks 打开配置中启用的全部动作日志目标，返回的 Reader 用于状态接口查询。
// 只有查询目标为 memory 时才保留内存副本，且只保留最近 MemoryRetention 条。
func openSinks(ctx context.Context, cfg config.ActionLogConfig) ([]actionlog.Sink, actionlog.Reader, error) {
	var (
		sinks   []actionlog.Sink
		sqlSink *actionlog.SQLSink
		redis   *actionlog.RedisSink
	)
	fail := func(err error) ([]actionlog.Sink, actionlog.Reader, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, nil, err
	}

	if cfg.File != "" {
		file, err := actionlog.NewFileSink(cfg.File)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, file)
	}
	if cfg.SQL.Driver != "" {
		var err error
		sqlSink, err = actionlog.NewSQLSink(ctx, actionlog.SQLConfig{
			Driver:          cfg.SQL.Driver,
			DSN:             cfg.SQL.DSN,
			MaxOpenConns:    cfg.SQL.MaxOpenConns,
			MaxIdleConns:    cfg.SQL.MaxIdleConns,
			ConnMaxLifetime: cfg.SQL.ConnMaxLifetime(),
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sqlSink)
	}
	if cfg.Redis.Address != "" {
		var err error
		redis, err = actionlog.NewRedisSink(ctx, actionlog.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, redis)
	}
	if cfg.RabbitMQ.URL != "" {
		amqp, err := actionlog.NewAMQPSink(actionlog.AMQPConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			Queue:      cfg.RabbitMQ.Queue,
			Durable:    cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, amqp)
	}

	var reader actionlog.Reader
	switch {
	case cfg.Reader == "sql" && sqlSink != nil:
		reader = sqlSink
	case cfg.Reader == "redis" && redis != nil:
		reader = redis
	default:
		memory := actionlog.NewMemorySink(actionlog.WithRetention(cfg.MemoryRetention))
		sinks = append(sinks, memory)
		reader = memory
	}
	logger.L().Info("动作日志目标已就绪", slog.Int("sinks", len(sinks)), slog.String("reader", cfg.Reader))
	return sinks, reader, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
