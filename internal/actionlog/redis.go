package actionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 记录流的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	// MaxLen 大于 0 时只保留最近 MaxLen 条记录。
	MaxLen int64
}

// RedisSink 以 RPUSH 将每条记录追加到 Redis list，供其他进程实时消费。
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisSink 创建 Redis 记录流。
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisSink(client, cfg), nil
}

func newRedisSink(client *redis.Client, cfg RedisConfig) *RedisSink {
	key := cfg.Key
	if key == "" {
		key = "openagent:actions"
	}
	return &RedisSink{client: client, key: key, maxLen: cfg.MaxLen}
}

// Write 实现 Sink。
func (s *RedisSink) Write(ctx context.Context, rec Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化动作记录失败: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, encoded)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis 写入动作记录失败: %w", err)
	}
	return nil
}

// Query 实现 Reader，读取 list 中仍保留的记录。
func (s *RedisSink) Query(ctx context.Context, filter Filter) ([]Record, error) {
	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("Redis 读取动作记录失败: %w", err)
	}
	records := make([]Record, 0, len(values))
	for _, v := range values {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("解析 Redis 动作记录失败: %w", err)
		}
		records = append(records, rec)
	}
	return filter.apply(records), nil
}

// Close 关闭 Redis 连接。
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
