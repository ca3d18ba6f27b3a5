package actionlog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/pkg/logger"
)

// ErrWriterClosed 在 Writer 关闭后继续追加时返回。
var ErrWriterClosed = xerrors.New(xerrors.CodeStorageFailure, "action log writer closed")

// Observer 在每条记录写入所有 sink 之后被调用，用于指标统计。
type Observer func(rec Record)

type request struct {
	rec   Record
	flush chan struct{}
}

// Writer 是动作日志的唯一写入者。所有工作协程通过 channel 把记录交给同一个后台协程，
// 由它按到达顺序依次写入各个 sink，因此 sink 本身不需要考虑并发。
type Writer struct {
	sinks     []Sink
	in        chan request
	done      chan struct{}
	logger    *slog.Logger
	audit     *slog.Logger
	observers []Observer
	newID     func() string
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
}

// WriterOption 定义 Writer 的可选配置。
type WriterOption func(*Writer)

// WithLogger 指定运行日志。
func WithLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAuditLogger 指定审计日志，默认使用 logger.Audit()。
func WithAuditLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.audit = l
		}
	}
}

// WithObserver 注册写入后的回调。
func WithObserver(o Observer) WriterOption {
	return func(w *Writer) {
		if o != nil {
			w.observers = append(w.observers, o)
		}
	}
}

// WithIDGenerator 替换记录 ID 生成器。
func WithIDGenerator(fn func() string) WriterOption {
	return func(w *Writer) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// WithBuffer 设置 channel 容量。
func WithBuffer(size int) WriterOption {
	return func(w *Writer) {
		if size >= 0 {
			w.in = make(chan request, size)
		}
	}
}

// NewWriter 启动后台写入协程。调用方必须在结束时调用 Close。
func NewWriter(sinks []Sink, opts ...WriterOption) *Writer {
	w := &Writer{
		sinks: sinks,
		in:    make(chan request, 256),
		done:  make(chan struct{}),
		newID: func() string { return uuid.NewString() },
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.logger == nil {
		w.logger = logger.Named("actionlog")
	}
	if w.audit == nil {
		w.audit = logger.Audit()
	}
	go w.run()
	return w
}

// Append 实现 Recorder。记录进入队列后立即返回；缺失的 ID 与时间戳在此补齐。
func (w *Writer) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = w.newID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.now()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.in <- request{rec: rec}:
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.CodeStorageFailure, ctx.Err(), "动作记录入队超时")
	}
}

// Flush 阻塞直到此前入队的记录全部写完。
func (w *Writer) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWriterClosed
	}
	select {
	case w.in <- request{flush: ack}:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 写完剩余记录并关闭所有 sink。
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.in)
	w.mu.Unlock()

	<-w.done
	var err error
	for _, sink := range w.sinks {
		err = errors.Join(err, sink.Close())
	}
	return err
}

func (w *Writer) run() {
	defer close(w.done)
	ctx := context.Background()
	for req := range w.in {
		if req.flush != nil {
			close(req.flush)
			continue
		}
		w.write(ctx, req.rec)
	}
}

func (w *Writer) write(ctx context.Context, rec Record) {
	for _, sink := range w.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			w.logger.Error("动作记录写入失败",
				slog.String("id", rec.ID),
				slog.String("action", rec.Action),
				slog.Any("error", err))
		}
	}
	w.audit.Info("action",
		slog.String("id", rec.ID),
		slog.Int("episode_index", rec.Episode),
		slog.Int("tick", rec.Tick),
		slog.String("source_agent", rec.Agent),
		slog.String("action_name", rec.Action),
		slog.String("status", string(rec.Status)),
		slog.Any("arguments", rec.Arguments),
		slog.String("error", rec.Error))
	for _, o := range w.observers {
		o(rec)
	}
}
