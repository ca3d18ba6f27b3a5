package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/actionlog"
	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/internal/llm"
	"OpenAgent-Sim/internal/social"
	"OpenAgent-Sim/pkg/logger"
)

// State 是单个智能体在一次解析中到达的阶段。
type State string

const (
	StateStart              State = "start"
	StateDuplicateChecked   State = "duplicate_checked"
	StateActionSelected     State = "action_selected"
	StateNeedsTargetID      State = "needs_target_id"
	StateTargetResolved     State = "target_resolved"
	StateArgumentsExtracted State = "arguments_extracted"
	StateDispatched         State = "dispatched"
	StateDone               State = "done"
)

const (
	defaultTimelineLimit     = 10
	defaultMaxArgumentLength = 1000
)

// TimelineSource 提供智能体可见的最近内容。social.Adapter 满足该接口。
type TimelineSource interface {
	FetchRecentTimeline(ctx context.Context, account string, limit int) ([]social.Post, error)
}

// Request 是一次解析的输入。
type Request struct {
	Invocation action.Invocation
	Event      string
	History    *History
}

// Outcome 描述一次解析的结果。Reached 是终止前到达的最后一个阶段。
type Outcome struct {
	Reached    State
	Action     string
	TargetID   string
	Arguments  action.Arguments
	Result     *action.Result
	SkipReason string
	Err        error
}

// Succeeded 判断外部动作是否执行成功。
func (o Outcome) Succeeded() bool {
	return o.Result != nil && o.Result.OK()
}

// Skipped 判断本轮是否在调用外部动作前被放弃。
func (o Outcome) Skipped() bool { return o.SkipReason != "" }

// Resolver 把一条意图文本转换为一次经过校验的动作调用。
type Resolver struct {
	catalog       *action.Catalog
	dispatcher    *action.Dispatcher
	oracle        llm.Oracle
	timeline      TimelineSource
	recorder      actionlog.Recorder
	timelineLimit int
	maxArgLength  int
	logger        *slog.Logger
	now           func() time.Time
}

// Option 定义 Resolver 的可选配置。
type Option func(*Resolver)

// WithTimelineLimit 设置目标解析时读取的时间线条数。
func WithTimelineLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.timelineLimit = n
		}
	}
}

// WithMaxArgumentLength 限制参数补全的字符数。
func WithMaxArgumentLength(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxArgLength = n
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock 替换跳过记录的时间戳来源。
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver 构造解析器。recorder 用于写入跳过记录，应与 dispatcher 使用同一个日志。
func NewResolver(catalog *action.Catalog, dispatcher *action.Dispatcher, oracle llm.Oracle, timeline TimelineSource, recorder actionlog.Recorder, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:       catalog,
		dispatcher:    dispatcher,
		oracle:        oracle,
		timeline:      timeline,
		recorder:      recorder,
		timelineLimit: defaultTimelineLimit,
		maxArgLength:  defaultMaxArgumentLength,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("resolver")
	}
	return r
}

// Resolve 依次执行重复检查、动作选择、目标解析、参数提取与调度。
//
// 除上下文取消外的所有错误都在内部记录并结束本轮，返回的 error 只会是 ctx.Err()；
// 此时不写跳过记录，由调用方决定如何记录超时。
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	inv := req.Invocation
	event := strings.TrimSpace(req.Event)
	out := Outcome{Reached: StateStart}
	log := r.logger.With(slog.String("agent", inv.Agent), slog.Int("episode", inv.Episode), slog.Int("tick", inv.Tick))

	// 1. 重复检查
	var entries []Entry
	if req.History != nil {
		entries = req.History.Entries()
	}
	if len(entries) > 0 {
		dup, err := r.oracle.AskYesNo(ctx, duplicateQuestion(displayName(inv), event, entries))
		if err != nil {
			return r.abort(ctx, log, inv, event, out, actionlog.ReasonOracle, err)
		}
		if dup {
			out.Reached = StateDuplicateChecked
			return r.skip(ctx, log, inv, event, out, actionlog.ReasonDuplicate, nil)
		}
	}
	out.Reached = StateDuplicateChecked

	// 2. 动作选择
	descs := r.catalog.List()
	if len(descs) == 0 {
		return r.skip(ctx, log, inv, event, out, actionlog.ReasonNoAction, xerrors.New(xerrors.CodeNotFound, "动作目录为空"))
	}
	idx, err := r.oracle.AskMultipleChoice(ctx, selectionQuestion(displayName(inv), event), actionOptions(descs))
	if err != nil {
		return r.abort(ctx, log, inv, event, out, actionlog.ReasonNoAction, err)
	}
	if idx < 0 || idx >= len(descs) {
		return r.skip(ctx, log, inv, event, out, actionlog.ReasonNoAction, xerrors.New(xerrors.CodeOracleFailure, "选择结果越界"))
	}
	desc := descs[idx]
	out.Action = desc.Name
	out.Reached = StateActionSelected

	// 3. 目标解析，只针对带引用参数的动作
	var refParam *action.Parameter
	if ref, ok := desc.ReferenceParameter(); ok {
		refParam = &ref
		needed := ref.Required
		if !needed {
			needed, err = r.oracle.AskYesNo(ctx, referenceQuestion(event, desc, ref))
			if err != nil {
				return r.abort(ctx, log, inv, event, out, actionlog.ReasonOracle, err)
			}
		}
		if needed {
			out.Reached = StateNeedsTargetID
			id, reason, err := r.resolveTarget(ctx, inv, event, desc)
			if err != nil {
				return r.abort(ctx, log, inv, event, out, reason, err)
			}
			out.TargetID = id
			out.Reached = StateTargetResolved
		}
	}

	// 4. 参数提取
	raw, err := r.oracle.CompleteText(ctx, argumentPrompt(displayName(inv), event, desc, refParam), llm.Constraints{MaxLength: r.maxArgLength})
	if err != nil {
		return r.abort(ctx, log, inv, event, out, actionlog.ReasonOracle, err)
	}
	if refParam != nil {
		raw = substituteReference(raw, refParam.Name, out.TargetID)
	}
	args, err := action.Parse(desc, raw)
	if err != nil {
		return r.skip(ctx, log, inv, event, out, actionlog.ReasonInvalidArguments, err)
	}
	out.Arguments = args
	out.Reached = StateArgumentsExtracted

	// 5. 调度；已超时的智能体不再产生副作用
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Err = ctxErr
		return out, ctxErr
	}
	result := r.dispatcher.Invoke(ctx, inv, desc, args)
	out.Result = &result
	out.Reached = StateDispatched
	if !result.OK() {
		out.Err = errors.New(result.Message)
		log.Info("动作执行失败，本轮结束", slog.String("action", desc.Name), slog.String("error", result.Message))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		out.Reached = StateDone
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Err = ctxErr
		return out, ctxErr
	}
	if req.History != nil {
		rendered, _ := action.Render(desc, args)
		req.History.Add(Entry{Narrative: event, Action: desc.Name, Arguments: rendered, Tick: inv.Tick})
	}
	out.Reached = StateDone
	return out, nil
}

func (r *Resolver) resolveTarget(ctx context.Context, inv action.Invocation, event string, desc action.Descriptor) (string, string, error) {
	if r.timeline == nil {
		return "", actionlog.ReasonNoTarget, &TargetNotFoundError{Agent: inv.Agent, Action: desc.Name}
	}
	posts, err := r.timeline.FetchRecentTimeline(ctx, accountOf(inv), r.timelineLimit)
	if err != nil {
		return "", actionlog.ReasonNoTarget, xerrors.Wrap(xerrors.CodeAdapterFailure, err, "读取时间线失败")
	}
	if len(posts) > r.timelineLimit {
		posts = posts[:r.timelineLimit]
	}
	if len(posts) == 0 {
		return "", actionlog.ReasonNoTarget, &TargetNotFoundError{Agent: inv.Agent, Action: desc.Name}
	}
	idx, err := r.oracle.AskMultipleChoice(ctx, targetQuestion(event, desc), timelineOptions(posts))
	if err != nil {
		return "", actionlog.ReasonOracle, err
	}
	if idx < 0 || idx >= len(posts) {
		return "", actionlog.ReasonNoTarget, xerrors.New(xerrors.CodeOracleFailure, "目标选择结果越界")
	}
	return posts[idx].ID, "", nil
}

// abort 在出错时结束本轮；上下文已取消时不写记录，直接返回取消原因。
func (r *Resolver) abort(ctx context.Context, log *slog.Logger, inv action.Invocation, event string, out Outcome, reason string, err error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Err = ctxErr
		return out, ctxErr
	}
	return r.skip(ctx, log, inv, event, out, reason, err)
}

func (r *Resolver) skip(ctx context.Context, log *slog.Logger, inv action.Invocation, event string, out Outcome, reason string, cause error) (Outcome, error) {
	out.SkipReason = reason
	out.Err = cause
	rec := actionlog.Record{
		Episode:   inv.Episode,
		Tick:      inv.Tick,
		Agent:     inv.Agent,
		Action:    actionlog.SkipAction(reason),
		Arguments: map[string]any{"event": event},
		Status:    actionlog.StatusSkipped,
		SimTime:   inv.SimTime,
		Timestamp: r.now(),
	}
	if out.Action != "" {
		rec.Arguments["selected_action"] = out.Action
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if r.recorder != nil {
		if err := r.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
			log.Error("写入跳过记录失败", slog.Any("error", err))
		}
	}

	attrs := []any{slog.String("reason", reason)}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause), slog.String("category", string(xerrors.CategoryOf(cause))))
	}
	log.Info("本轮跳过", attrs...)
	out.Reached = StateDone
	return out, nil
}

func accountOf(inv action.Invocation) string {
	if inv.Account != "" {
		return inv.Account
	}
	return inv.Agent
}

func displayName(inv action.Invocation) string {
	return "@" + accountOf(inv)
}
