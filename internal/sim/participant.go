package sim

import (
	"context"
	"log/slog"
	"sync"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/episode"
	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/internal/intent"
	"OpenAgent-Sim/pkg/logger"
)

// Resolver 是 Participant 依赖的意图解析能力，*intent.Resolver 满足该接口。
type Resolver interface {
	Resolve(ctx context.Context, req intent.Request) (intent.Outcome, error)
}

// OutcomeHook 在每次解析结束后被调用。
type OutcomeHook func(agent episode.Agent, ec episode.Context, out intent.Outcome)

// Participant 把事件来源与意图解析器连接起来，作为调度器中的执行者。
// 每个智能体拥有独立的 History，进入新轮次时换成新的对象。
type Participant struct {
	resolver Resolver
	events   EventSource
	logger   *slog.Logger
	hooks    []OutcomeHook

	mu        sync.Mutex
	histories map[string]*intent.History
}

// ParticipantOption 定义可选配置。
type ParticipantOption func(*Participant)

// WithParticipantLogger 指定日志输出。
func WithParticipantLogger(l *slog.Logger) ParticipantOption {
	return func(p *Participant) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithOutcomeHook 注册解析结果回调。
func WithOutcomeHook(h OutcomeHook) ParticipantOption {
	return func(p *Participant) {
		if h != nil {
			p.hooks = append(p.hooks, h)
		}
	}
}

// NewParticipant 构造 Participant。
func NewParticipant(resolver Resolver, events EventSource, opts ...ParticipantOption) *Participant {
	p := &Participant{
		resolver:  resolver,
		events:    events,
		histories: make(map[string]*intent.History),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("participant")
	}
	return p
}

// Act 实现 episode.Actor。
func (p *Participant) Act(ctx context.Context, agent episode.Agent, ec episode.Context) error {
	if p.resolver == nil || p.events == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "参与者未初始化")
	}
	event, ok, err := p.events.NextEvent(ctx, agent, ec)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return xerrors.Wrap(xerrors.CodeUnknown, err, "获取意图失败")
	}
	if !ok {
		p.logger.Debug("本步没有意图", slog.String("agent", agent.ID), slog.Int("tick", ec.Tick))
		return nil
	}

	history := p.History(agent.ID, ec.Episode)
	out, err := p.resolver.Resolve(ctx, intent.Request{
		Invocation: action.Invocation{
			Agent:   agent.ID,
			Account: agent.Account,
			Episode: ec.Episode,
			Tick:    ec.Tick,
			SimTime: ec.Now,
		},
		Event:   event,
		History: history,
	})
	if err != nil {
		return err
	}
	for _, h := range p.hooks {
		h(agent, ec, out)
	}
	return nil
}

// History 返回智能体在指定轮次的历史。轮次变化时换成新的对象，
// 仍持有旧轮次历史的迟到解析不会写进新轮次。
func (p *Participant) History(agentID string, episodeIndex int) *intent.History {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.histories[agentID]
	if !ok || h.Episode() != episodeIndex {
		h = intent.NewHistory(episodeIndex)
		p.histories[agentID] = h
	}
	return h
}
