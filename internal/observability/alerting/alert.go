package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"OpenAgent-Sim/internal/episode"
	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog     Channel = "log"
	ChannelWebhook Channel = "webhook"
)

// 告警错误码。
const (
	CodeAgentTimeouts xerrors.Code = "AGENT_TIMEOUTS"
	CodeAgentFailures xerrors.Code = "AGENT_FAILURES"
)

func init() {
	xerrors.Register(CodeAgentTimeouts, xerrors.Attributes{
		Message:  "agents timed out during a step",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryTimeout,
	})
	xerrors.Register(CodeAgentFailures, xerrors.Attributes{
		Message:  "agents failed during a step",
		Severity: xerrors.SeverityCritical,
		Category: xerrors.CategoryInternal,
	})
}

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code      `json:"code"`
	Message    string            `json:"message"`
	Severity   xerrors.Severity  `json:"severity"`
	Episode    int               `json:"episode"`
	Tick       int               `json:"tick"`
	Agents     []string          `json:"agents"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogNotifier 把告警写入日志。
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel 返回日志渠道。
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify 写日志。
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	l := logger.Named("alerting")
	if n != nil && n.Logger != nil {
		l = n.Logger
	}
	l.Warn("模拟告警",
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.Int("episode", event.Episode),
		slog.Int("tick", event.Tick),
		slog.Any("agents", event.Agents),
		slog.String("message", event.Message))
	return nil
}

// WebhookNotifier 以 JSON 形式把告警 POST 到指定地址。
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// Channel 返回 Webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送请求，非 2xx 响应视为失败。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.URL == "" {
		logger.L().Warn("WebhookNotifier 未正确配置，跳过发送", slog.String("code", string(event.Code)))
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

// ErrQueueFull 表示告警队列已满，事件被丢弃。
var ErrQueueFull = errors.New("alert queue full")

// ErrQueueClosed 表示告警队列已关闭。
var ErrQueueClosed = errors.New("alert queue closed")

// Queue 由后台协程投递告警，Notify 只负责入队，不会阻塞调度器的步。
type Queue struct {
	next    Dispatcher
	events  chan Event
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewQueue 创建容量为 size 的告警队列并启动投递协程，调用方必须 Close。
func NewQueue(next Dispatcher, size int) *Queue {
	if size <= 0 {
		size = 64
	}
	q := &Queue{
		next:    next,
		events:  make(chan Event, size),
		done:    make(chan struct{}),
		timeout: 10 * time.Second,
	}
	go q.run()
	return q
}

// Notify 把事件放入队列。队列满时立即返回 ErrQueueFull。
func (q *Queue) Notify(_ context.Context, event Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close 停止接收新事件，并等待已入队的事件投递完成。
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for event := range q.events {
		if q.next == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.next.Notify(ctx, event); err != nil {
			logger.L().Error("发送告警失败", slog.String("code", string(event.Code)), slog.Any("error", err))
		}
		cancel()
	}
}

// StepObserver 返回一个 episode.Observer：某一步超时或失败的智能体数量达到 threshold 时发出告警。
// 观察者在 Step 内同步执行，d 应当是 Queue 这类不阻塞的 Dispatcher。
func StepObserver(d Dispatcher, threshold int) episode.Observer {
	if threshold <= 0 {
		threshold = 1
	}
	return func(r *episode.Report) {
		if d == nil || r == nil {
			return
		}
		for _, ev := range eventsFor(r, threshold) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := d.Notify(ctx, ev); err != nil {
				logger.L().Error("发送告警失败", slog.Any("error", err))
			}
			cancel()
		}
	}
}

func eventsFor(r *episode.Report, threshold int) []Event {
	var timedOut, failed []string
	for _, a := range r.Agents {
		switch a.Outcome {
		case episode.OutcomeTimedOut:
			timedOut = append(timedOut, a.Agent)
		case episode.OutcomeFailed:
			failed = append(failed, a.Agent)
		}
	}
	var events []Event
	now := time.Now().UTC()
	if len(timedOut) >= threshold {
		attr := xerrors.AttributesOf(CodeAgentTimeouts)
		events = append(events, Event{
			Code: CodeAgentTimeouts, Message: fmt.Sprintf("%d 个智能体超时", len(timedOut)), Severity: attr.Severity,
			Episode: r.Episode, Tick: r.Tick, Agents: timedOut, OccurredAt: now,
		})
	}
	if len(failed) >= threshold {
		attr := xerrors.AttributesOf(CodeAgentFailures)
		events = append(events, Event{
			Code: CodeAgentFailures, Message: fmt.Sprintf("%d 个智能体执行失败", len(failed)), Severity: attr.Severity,
			Episode: r.Episode, Tick: r.Tick, Agents: failed, OccurredAt: now,
		})
	}
	return events
}
