package episode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"OpenAgent-Sim/internal/actionlog"
	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/pkg/logger"
)

const (
	defaultWorkers         = 4
	defaultStepsPerEpisode = 1
)

// Context 是一步内传给每个智能体的只读信息。
type Context struct {
	Episode int
	Tick    int
	Active  []string
	Now     time.Time
}

// Actor 在一步内处理一个智能体。实现必须在 ctx 取消后尽快返回。
type Actor interface {
	Act(ctx context.Context, agent Agent, ec Context) error
}

// ActorFunc 允许使用普通函数作为 Actor。
type ActorFunc func(ctx context.Context, agent Agent, ec Context) error

// Act 实现 Actor。
func (f ActorFunc) Act(ctx context.Context, agent Agent, ec Context) error { return f(ctx, agent, ec) }

// Outcome 是单个智能体在一步内的结局。
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// AgentReport 描述单个智能体的执行情况。
type AgentReport struct {
	Agent    string        `json:"agent"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report 汇总一步的执行情况，Agents 保持名册顺序。
type Report struct {
	Episode  int           `json:"episode"`
	Tick     int           `json:"tick"`
	SimTime  time.Time     `json:"sim_time"`
	Active   []string      `json:"active"`
	Agents   []AgentReport `json:"agents"`
	Duration time.Duration `json:"duration"`
	// Advanced 表示本步结束时时钟已推进。
	Advanced bool `json:"advanced"`
}

// Count 统计指定结局的智能体数量。
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, a := range r.Agents {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}

// Observer 在每一步结束后收到报告。
type Observer func(*Report)

type member struct {
	agent Agent
	actor Actor
}

// Scheduler 按步驱动名册中的智能体并发执行。
type Scheduler struct {
	mu              sync.RWMutex
	roster          []member
	index           map[string]int
	clock           *Clock
	recorder        actionlog.Recorder
	workers         int
	stepsPerEpisode int
	logger          *slog.Logger
	observers       []Observer
}

// Option 定义调度器的可选配置。
type Option func(*Scheduler)

// WithWorkers 设置同时执行的智能体数量上限。
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithStepsPerEpisode 设置每个轮次包含的步数。
func WithStepsPerEpisode(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.stepsPerEpisode = n
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver 注册步结束回调。回调在 Step 返回前同步执行，耗时操作应自行异步处理。
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// NewScheduler 构造调度器。recorder 用于写入超时跳过记录。
func NewScheduler(clock *Clock, recorder actionlog.Recorder, opts ...Option) *Scheduler {
	s := &Scheduler{
		index:           make(map[string]int),
		clock:           clock,
		recorder:        recorder,
		workers:         defaultWorkers,
		stepsPerEpisode: defaultStepsPerEpisode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.clock == nil {
		s.clock = NewClock(time.Now().UTC(), time.Minute)
	}
	if s.logger == nil {
		s.logger = logger.Named("scheduler")
	}
	return s
}

// Add 把智能体加入名册，ID 必须唯一。
func (s *Scheduler) Add(agent Agent, actor Actor) error {
	if agent.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "智能体 ID 不能为空")
	}
	if actor == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "智能体缺少执行者", xerrors.WithMetadata("agent", agent.ID))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[agent.ID]; exists {
		return xerrors.New(xerrors.CodeConflict, "智能体 ID 重复", xerrors.WithMetadata("agent", agent.ID))
	}
	s.index[agent.ID] = len(s.roster)
	s.roster = append(s.roster, member{agent: agent, actor: actor})
	return nil
}

// Roster 返回名册中的智能体，保持加入顺序。
func (s *Scheduler) Roster() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, len(s.roster))
	for i, m := range s.roster {
		out[i] = m.agent
	}
	return out
}

// Clock 返回共享时钟。
func (s *Scheduler) Clock() *Clock { return s.clock }

// EpisodeOf 返回某一步所属的轮次。
func (s *Scheduler) EpisodeOf(tick int) int {
	return tick / s.stepsPerEpisode
}

// Step 执行一步：抽样激活智能体，并发执行，然后推进时钟一次。
//
// agentTimeout 限制单个智能体，stepTimeout 限制整步；任一为 0 表示不限制。
// 超时的智能体会留下一条 skipped:timeout 记录，其后到达的结果被丢弃。
// 只有 ctx 被取消时返回错误，此时时钟不推进。
func (s *Scheduler) Step(ctx context.Context, selector Selector, agentTimeout, stepTimeout time.Duration) (*Report, error) {
	if selector == nil {
		selector = All
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	tick, now := s.clock.Snapshot()
	s.mu.RLock()
	members := append([]member(nil), s.roster...)
	s.mu.RUnlock()

	roster := make([]Agent, len(members))
	for i, m := range members {
		roster[i] = m.agent
	}
	selected := selector.Select(tick, roster)

	report := &Report{Episode: s.EpisodeOf(tick), Tick: tick, SimTime: now}
	active := make([]member, 0, len(selected))
	for _, a := range selected {
		s.mu.RLock()
		idx, ok := s.index[a.ID]
		s.mu.RUnlock()
		if !ok || idx >= len(members) {
			continue
		}
		active = append(active, members[idx])
		report.Active = append(report.Active, a.ID)
	}
	log := s.logger.With(slog.Int("episode", report.Episode), slog.Int("tick", tick))

	if len(active) > 0 {
		ec := Context{Episode: report.Episode, Tick: tick, Active: append([]string(nil), report.Active...), Now: now}
		stepCtx, cancel := withOptionalTimeout(ctx, stepTimeout)
		results := make([]AgentReport, len(active))

		g := new(errgroup.Group)
		g.SetLimit(s.workers)
		for i, m := range active {
			i, m := i, m
			g.Go(func() error {
				results[i] = s.runAgent(stepCtx, log, m, ec, agentTimeout)
				return nil
			})
		}
		_ = g.Wait()
		cancel()
		report.Agents = results
	}

	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(started)
		log.Warn("模拟步被取消，时钟未推进", slog.Any("error", err))
		return report, err
	}

	s.clock.Advance()
	report.Advanced = true
	report.Duration = time.Since(started)
	log.Info("模拟步完成",
		slog.Int("active", len(report.Active)),
		slog.Int("timed_out", report.Count(OutcomeTimedOut)),
		slog.Int("failed", report.Count(OutcomeFailed)),
		slog.Duration("duration", report.Duration))
	for _, o := range s.observers {
		o(report)
	}
	return report, nil
}

// Run 连续执行 steps 步，ctx 取消时提前返回。
func (s *Scheduler) Run(ctx context.Context, selector Selector, steps int, agentTimeout, stepTimeout time.Duration) ([]*Report, error) {
	reports := make([]*Report, 0, steps)
	for i := 0; i < steps; i++ {
		report, err := s.Step(ctx, selector, agentTimeout, stepTimeout)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

func (s *Scheduler) runAgent(stepCtx context.Context, log *slog.Logger, m member, ec Context, timeout time.Duration) AgentReport {
	started := time.Now()
	agentCtx, cancel := withOptionalTimeout(stepCtx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("智能体执行发生 panic: %v", r))
			}
		}()
		done <- m.actor.Act(agentCtx, m.agent, ec)
	}()

	report := AgentReport{Agent: m.agent.ID}
	var err error
	select {
	case err = <-done:
	case <-agentCtx.Done():
		err = agentCtx.Err()
	}
	report.Duration = time.Since(started)

	switch {
	case err == nil:
		report.Outcome = OutcomeCompleted
	case agentCtx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		report.Outcome = OutcomeTimedOut
		report.Error = err.Error()
		s.recordTimeout(agentCtx, m.agent, ec, timeout, err)
		log.Warn("智能体超时", slog.String("agent", m.agent.ID), slog.Duration("elapsed", report.Duration))
	default:
		report.Outcome = OutcomeFailed
		report.Error = err.Error()
		log.Error("智能体执行失败", slog.String("agent", m.agent.ID), slog.Any("error", err))
	}
	return report
}

func (s *Scheduler) recordTimeout(ctx context.Context, agent Agent, ec Context, timeout time.Duration, cause error) {
	if s.recorder == nil {
		return
	}
	args := map[string]any{}
	if timeout > 0 {
		args["timeout"] = timeout.String()
	}
	rec := actionlog.Record{
		Episode:   ec.Episode,
		Tick:      ec.Tick,
		Agent:     agent.ID,
		Action:    actionlog.SkipAction(actionlog.ReasonTimeout),
		Arguments: args,
		Status:    actionlog.StatusSkipped,
		Error:     cause.Error(),
		SimTime:   ec.Now,
		Timestamp: time.Now().UTC(),
	}
	if err := s.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("写入超时记录失败", slog.String("agent", agent.ID), slog.Any("error", err))
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
