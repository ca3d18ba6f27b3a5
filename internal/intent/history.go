package intent

import "sync"

// Entry 是一次成功执行的记录：原始意图文本与实际执行的动作。
type Entry struct {
	Narrative string `json:"narrative"`
	Action    string `json:"action"`
	Arguments string `json:"arguments,omitempty"`
	Tick      int    `json:"tick"`
}

// History 保存单个智能体在当前轮次内成功执行过的意图，进入新轮次时清空。
// 每个智能体持有自己的 History，解析器通过引用读写，不存在跨智能体共享。
type History struct {
	mu      sync.RWMutex
	episode int
	entries []Entry
}

// NewHistory 创建指定轮次的空历史。
func NewHistory(episode int) *History {
	return &History{episode: episode}
}

// Episode 返回历史所属的轮次。
func (h *History) Episode() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.episode
}

// Reset 在轮次变化时清空历史，同一轮次内重复调用无副作用。
func (h *History) Reset(episode int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.episode == episode {
		return
	}
	h.episode = episode
	h.entries = nil
}

// Add 追加一条成功记录。
func (h *History) Add(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Entries 返回历史的副本。
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Entry(nil), h.entries...)
}

// Len 返回历史条数。
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
