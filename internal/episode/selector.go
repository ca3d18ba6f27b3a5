package episode

import (
	"math/rand"
	"sync"
)

// Agent 是名册中的一个成员。
type Agent struct {
	ID      string `json:"id" yaml:"id"`
	Account string `json:"account,omitempty" yaml:"account"`
	Role    string `json:"role,omitempty" yaml:"role"`
}

// Selector 决定某一步哪些智能体参与。返回结果必须保持名册顺序。
type Selector interface {
	Select(tick int, roster []Agent) []Agent
}

// SelectorFunc 允许使用普通函数作为 Selector。
type SelectorFunc func(tick int, roster []Agent) []Agent

// Select 实现 Selector。
func (f SelectorFunc) Select(tick int, roster []Agent) []Agent { return f(tick, roster) }

// All 让所有智能体每一步都参与。
var All Selector = SelectorFunc(func(_ int, roster []Agent) []Agent {
	return append([]Agent(nil), roster...)
})

// BernoulliSelector 按角色的激活概率独立抽样。
//
// 每一步按名册顺序为每个智能体抽取一次 [0,1) 的均匀随机数，小于角色概率即激活。
// 种子与概率固定时，激活序列完全可复现。
type BernoulliSelector struct {
	mu          sync.Mutex
	rng         *rand.Rand
	rates       map[string]float64
	defaultRate float64
}

// NewBernoulliSelector 创建抽样器。未在 rates 中出现的角色使用 defaultRate。
func NewBernoulliSelector(seed int64, rates map[string]float64, defaultRate float64) *BernoulliSelector {
	copied := make(map[string]float64, len(rates))
	for role, rate := range rates {
		copied[role] = clampRate(rate)
	}
	return &BernoulliSelector{
		rng:         rand.New(rand.NewSource(seed)),
		rates:       copied,
		defaultRate: clampRate(defaultRate),
	}
}

// Rate 返回角色的激活概率。
func (s *BernoulliSelector) Rate(role string) float64 {
	if rate, ok := s.rates[role]; ok {
		return rate
	}
	return s.defaultRate
}

// Select 实现 Selector。概率为 0 或 1 的智能体同样消耗一次抽样，保证序列只依赖名册长度。
func (s *BernoulliSelector) Select(_ int, roster []Agent) []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := make([]Agent, 0, len(roster))
	for _, a := range roster {
		if s.rng.Float64() < s.Rate(a.Role) {
			active = append(active, a)
		}
	}
	return active
}

func clampRate(rate float64) float64 {
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	default:
		return rate
	}
}
