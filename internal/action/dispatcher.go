package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"OpenAgent-Sim/internal/actionlog"
	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/pkg/logger"
)

// Status 表示一次调用的结果状态。
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result 是 Dispatcher.Invoke 的返回值。
type Result struct {
	Status  Status
	Value   any
	Message string
}

// OK 判断调用是否成功。
func (r Result) OK() bool { return r.Status == StatusOK }

// Dispatcher 校验参数、调用注册时绑定的外部操作，并为每次尝试写入一条动作记录。
type Dispatcher struct {
	catalog  *Catalog
	recorder actionlog.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// DispatcherOption 定义可选配置。
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger 指定日志输出。
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock 替换记录时间戳来源，主要用于测试。
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher 构造 Dispatcher。
func NewDispatcher(catalog *Catalog, recorder actionlog.Recorder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		catalog:  catalog,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.logger == nil {
		d.logger = logger.Named("dispatcher")
	}
	return d
}

// Invoke 执行一次动作。外部操作返回的错误或 panic 都被转换为 StatusError 的结果，
// 不会传播给调用方；无论成功与否，返回前都会写入恰好一条记录。
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation, desc Descriptor, args Arguments) Result {
	result := d.invoke(ctx, inv, desc, args)
	d.record(ctx, inv, desc, args, result)
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, inv Invocation, desc Descriptor, args Arguments) Result {
	if d.catalog == nil {
		return errorResult(xerrors.New(xerrors.CodeInitializationFailure, "调度器未配置动作目录"))
	}
	handler, ok := d.catalog.handler(desc.Name)
	if !ok {
		return errorResult(&UnknownActionError{Name: desc.Name})
	}
	if err := Validate(desc, args); err != nil {
		return errorResult(err)
	}
	// 上下文已取消时不再产生外部副作用。
	if err := ctx.Err(); err != nil {
		return errorResult(xerrors.Wrap(xerrors.CodeTimeout, err, "调用前上下文已取消"))
	}

	value, err := call(ctx, handler, inv, args.Clone())
	if err != nil {
		return errorResult(err)
	}
	return Result{Status: StatusOK, Value: value}
}

func call(ctx context.Context, handler Handler, inv Invocation, args Arguments) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(xerrors.CodeAdapterFailure, fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler(ctx, inv, args)
}

func errorResult(err error) Result {
	return Result{Status: StatusError, Message: err.Error()}
}

func (d *Dispatcher) record(ctx context.Context, inv Invocation, desc Descriptor, args Arguments, result Result) {
	rec := actionlog.Record{
		Episode:   inv.Episode,
		Tick:      inv.Tick,
		Agent:     inv.Agent,
		Action:    desc.Name,
		Arguments: map[string]any(args.Clone()),
		SimTime:   inv.SimTime,
		Timestamp: d.now(),
	}
	if result.OK() {
		rec.Status = actionlog.StatusOK
		rec.Result = encodeResult(result.Value)
	} else {
		rec.Status = actionlog.StatusError
		rec.Error = result.Message
	}

	if d.recorder != nil {
		// 即使本轮已超时，已经发生的调用尝试也必须留下记录。
		if err := d.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
			d.logger.Error("写入动作记录失败",
				slog.Any("error", err),
				slog.String("agent", inv.Agent),
				slog.String("action", desc.Name))
		}
	}

	if result.OK() {
		d.logger.Debug("动作执行成功",
			slog.String("agent", inv.Agent),
			slog.String("action", desc.Name),
			slog.Int("episode", inv.Episode))
		return
	}
	d.logger.Warn("动作执行失败",
		slog.String("agent", inv.Agent),
		slog.String("action", desc.Name),
		slog.Int("episode", inv.Episode),
		slog.String("error", result.Message))
}

func encodeResult(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprint(v))
	}
	return encoded
}
