// Package scenario 读取描述模拟名册、角色激活概率与剧本事件的 YAML 文件。
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"OpenAgent-Sim/internal/episode"
	"OpenAgent-Sim/internal/sim"
	"OpenAgent-Sim/internal/social/memory"
)

// Scenario 对应 scenario.yaml 的结构。
type Scenario struct {
	Name        string             `yaml:"name"`
	DefaultRate float64            `yaml:"default_rate"`
	Roles       map[string]float64 `yaml:"roles"`
	Agents      []AgentSpec        `yaml:"agents"`
	SeedPosts   []SeedPost         `yaml:"seed_posts"`
	Events      []ScriptedEvent    `yaml:"events"`
}

// AgentSpec 描述名册中的一个智能体。
type AgentSpec struct {
	ID      string   `yaml:"id"`
	Account string   `yaml:"account"`
	Role    string   `yaml:"role"`
	Routine []string `yaml:"routine"`
}

// SeedPost 是模拟开始前已经存在的帖子。
type SeedPost struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

// ScriptedEvent 在指定步为智能体安排一条意图。
type ScriptedEvent struct {
	Tick  int    `yaml:"tick"`
	Agent string `yaml:"agent"`
	Event string `yaml:"event"`
}

// Load 解析指定路径的场景文件。
func Load(path string) (*Scenario, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("场景文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取场景文件失败: %w", err)
	}
	return Parse(content)
}

// Parse 解析场景内容并校验。
func Parse(content []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(content, &sc); err != nil {
		return nil, fmt.Errorf("解析场景文件失败: %w", err)
	}
	if sc.Roles == nil {
		sc.Roles = map[string]float64{}
	}
	if sc.DefaultRate == 0 {
		sc.DefaultRate = 1
	}
	for i := range sc.Agents {
		if sc.Agents[i].Account == "" {
			sc.Agents[i].Account = sc.Agents[i].ID
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate 检查名册与事件是否自洽。
func (s *Scenario) Validate() error {
	if len(s.Agents) == 0 {
		return errors.New("场景至少需要一个智能体")
	}
	for role, rate := range s.Roles {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("角色 %s 的激活概率 %v 超出 [0,1]", role, rate)
		}
	}
	if s.DefaultRate < 0 || s.DefaultRate > 1 {
		return fmt.Errorf("默认激活概率 %v 超出 [0,1]", s.DefaultRate)
	}
	ids := make(map[string]struct{}, len(s.Agents))
	accounts := make(map[string]struct{}, len(s.Agents))
	for _, a := range s.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return errors.New("智能体 id 不能为空")
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("智能体 id 重复: %s", a.ID)
		}
		ids[a.ID] = struct{}{}
		accounts[a.Account] = struct{}{}
	}
	for _, e := range s.Events {
		if _, ok := ids[e.Agent]; !ok {
			return fmt.Errorf("事件引用了未知智能体: %s", e.Agent)
		}
		if e.Tick < 0 {
			return fmt.Errorf("事件步数不能为负: %d", e.Tick)
		}
	}
	for _, p := range s.SeedPosts {
		if _, ok := accounts[p.Author]; !ok {
			return fmt.Errorf("种子帖子的作者不在名册中: %s", p.Author)
		}
	}
	return nil
}

// Roster 返回调度器使用的名册，保持文件中的顺序。
func (s *Scenario) Roster() []episode.Agent {
	out := make([]episode.Agent, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = episode.Agent{ID: a.ID, Account: a.Account, Role: a.Role}
	}
	return out
}

// Selector 返回按角色概率抽样的激活器。
func (s *Scenario) Selector(seed int64) *episode.BernoulliSelector {
	return episode.NewBernoulliSelector(seed, s.Roles, s.DefaultRate)
}

// Script 把剧本事件与日常事件装入 ScriptedSource。
func (s *Scenario) Script() *sim.ScriptedSource {
	src := sim.NewScriptedSource()
	for _, a := range s.Agents {
		src.Routine(a.ID, a.Routine...)
	}
	for _, e := range s.Events {
		src.At(e.Tick, e.Agent, e.Event)
	}
	return src
}

// Populate 在内存社交网络中创建账号与种子帖子。
func (s *Scenario) Populate(n *memory.Network) error {
	for _, a := range s.Agents {
		n.AddAccount(a.Account)
	}
	for _, p := range s.SeedPosts {
		if _, err := n.Seed(p.Author, p.Content); err != nil {
			return fmt.Errorf("写入种子帖子失败: %w", err)
		}
	}
	return nil
}
