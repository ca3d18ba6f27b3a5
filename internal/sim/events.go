package sim

import (
	"context"
	"strings"
	"sync"

	"OpenAgent-Sim/internal/episode"
)

// EventSource 为智能体提供本步的意图描述。返回 false 表示本步没有意图。
type EventSource interface {
	NextEvent(ctx context.Context, agent episode.Agent, ec episode.Context) (string, bool, error)
}

// EventSourceFunc 允许使用普通函数作为 EventSource。
type EventSourceFunc func(ctx context.Context, agent episode.Agent, ec episode.Context) (string, bool, error)

// NextEvent 实现 EventSource。
func (f EventSourceFunc) NextEvent(ctx context.Context, agent episode.Agent, ec episode.Context) (string, bool, error) {
	return f(ctx, agent, ec)
}

type scriptKey struct {
	agent string
	tick  int
}

// ScriptedSource 按剧本返回意图：先查找指定步的事件，再按步数轮换智能体的日常事件。
type ScriptedSource struct {
	mu       sync.RWMutex
	scripted map[scriptKey]string
	routine  map[string][]string
}

// NewScriptedSource 创建空剧本。
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{
		scripted: make(map[scriptKey]string),
		routine:  make(map[string][]string),
	}
}

// At 为智能体在指定步安排一个事件，同一位置重复安排时保留最后一次。
func (s *ScriptedSource) At(tick int, agent, event string) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted[scriptKey{agent: agent, tick: tick}] = event
}

// Routine 设置智能体在没有指定事件时轮换使用的日常事件。
func (s *ScriptedSource) Routine(agent string, events ...string) {
	cleaned := make([]string, 0, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(cleaned) == 0 {
		delete(s.routine, agent)
		return
	}
	s.routine[agent] = cleaned
}

// NextEvent 实现 EventSource。
func (s *ScriptedSource) NextEvent(_ context.Context, agent episode.Agent, ec episode.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.scripted[scriptKey{agent: agent.ID, tick: ec.Tick}]; ok {
		return event, true, nil
	}
	if events := s.routine[agent.ID]; len(events) > 0 {
		return events[ec.Tick%len(events)], true, nil
	}
	return "", false, nil
}
