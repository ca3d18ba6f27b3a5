package episode

import (
	"sync"
	"time"
)

// Clock 是所有智能体共享的模拟时钟，只由调度器在每一步结束时推进。
type Clock struct {
	mu    sync.RWMutex
	now   time.Time
	step  time.Duration
	ticks int
}

// NewClock 创建从 start 开始、每步前进 step 的时钟。
func NewClock(start time.Time, step time.Duration) *Clock {
	if step <= 0 {
		step = time.Minute
	}
	return &Clock{now: start, step: step}
}

// Now 返回当前模拟时间。
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Tick 返回已经完成的步数。
func (c *Clock) Tick() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// StepSize 返回每步的时间跨度。
func (c *Clock) StepSize() time.Duration {
	return c.step
}

// Advance 推进一步并返回新的模拟时间。
func (c *Clock) Advance() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	c.ticks++
	return c.now
}

// Snapshot 同时返回步数与时间，避免两次读取之间被推进。
func (c *Clock) Snapshot() (int, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks, c.now
}
