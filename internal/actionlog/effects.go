package actionlog

import (
	"sort"
	"sync"
)

// EpisodeEffects 是某个智能体在某一轮中成功产生的外部效果，按写入顺序排列。
type EpisodeEffects struct {
	Agent   string   `json:"source_agent"`
	Episode int      `json:"episode_index"`
	Records []Record `json:"records"`
}

// Effects 从完整日志中还原每个智能体每一轮的成功效果。失败与跳过的记录不计入。
// 结果按智能体名称、轮次排序。
func Effects(records []Record) []EpisodeEffects {
	type key struct {
		agent   string
		episode int
	}
	grouped := make(map[key][]Record)
	for _, rec := range records {
		if !rec.Effective() {
			continue
		}
		k := key{agent: rec.Agent, episode: rec.Episode}
		grouped[k] = append(grouped[k], rec)
	}

	out := make([]EpisodeEffects, 0, len(grouped))
	for k, recs := range grouped {
		out = append(out, EpisodeEffects{Agent: k.agent, Episode: k.episode, Records: recs})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Agent != out[j].Agent {
			return out[i].Agent < out[j].Agent
		}
		return out[i].Episode < out[j].Episode
	})
	return out
}

// Summary 按状态和跳过原因统计记录数量。
type Summary struct {
	Total   int            `json:"total"`
	OK      int            `json:"ok"`
	Errors  int            `json:"errors"`
	Skipped map[string]int `json:"skipped"`
}

// Summarize 统计一组记录。
func Summarize(records []Record) Summary {
	s := Summary{Skipped: make(map[string]int)}
	for _, rec := range records {
		s.Total++
		switch {
		case rec.Skipped():
			s.Skipped[rec.Reason()]++
		case rec.Status == StatusOK:
			s.OK++
		default:
			s.Errors++
		}
	}
	return s
}

// Tally 在写入过程中累计 Summary，不需要保留记录本身。可作为 Writer 的 Observer。
type Tally struct {
	mu      sync.Mutex
	summary Summary
}

// Observe 累计一条记录。
func (t *Tally) Observe(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.summary.Skipped == nil {
		t.summary.Skipped = make(map[string]int)
	}
	t.summary.Total++
	switch {
	case rec.Skipped():
		t.summary.Skipped[rec.Reason()]++
	case rec.Status == StatusOK:
		t.summary.OK++
	default:
		t.summary.Errors++
	}
}

// Summary 返回当前统计的副本。
func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.summary
	out.Skipped = make(map[string]int, len(t.summary.Skipped))
	for k, v := range t.summary.Skipped {
		out.Skipped[k] = v
	}
	return out
}
