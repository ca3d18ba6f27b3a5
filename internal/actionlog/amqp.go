package actionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig 描述 RabbitMQ 的连接参数。
type AMQPConfig struct {
	URL      string
	Exchange string
	// RoutingKey 为空时使用队列名。
	RoutingKey string
	Queue      string
	Durable    bool
}

// AMQPSink 将每条动作记录发布到 RabbitMQ，便于下游分析服务订阅。
type AMQPSink struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPSink 创建 RabbitMQ 发布端。
func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "openagent.actions"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if cfg.Exchange == "" {
		if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
		}
	} else if err := ch.ExchangeDeclare(cfg.Exchange, "fanout", cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
	}

	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = queue
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: cfg.Exchange, routingKey: routingKey}, nil
}

// Write 实现 Sink。
func (s *AMQPSink) Write(ctx context.Context, rec Record) error {
	if s == nil || s.ch == nil {
		return errors.New("RabbitMQ 发布端未初始化")
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化动作记录失败: %w", err)
	}
	return s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.ID,
		Timestamp:    rec.Timestamp,
		Type:         rec.Action,
		Body:         encoded,
	})
}

// Close 关闭 RabbitMQ 连接。
func (s *AMQPSink) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
