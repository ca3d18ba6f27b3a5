// Package social defines the boundary to the external social-network service
// and the catalog of actions agents may invoke against it.
package social

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Post 是时间线上的一条内容。
type Post struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
	Media      []string  `json:"media,omitempty"`
	Likes      int       `json:"likes"`
	Boosts     int       `json:"boosts"`
	CreatedAt  time.Time `json:"created_at"`
}

// Adapter 是外部社交网络服务的边界。实现必须可被多个智能体并发调用。
type Adapter interface {
	// PerformAction 以 account 身份执行名为 name 的操作，args 不包含 NoValue。
	PerformAction(ctx context.Context, account, name string, args map[string]any) (any, error)
	// FetchRecentTimeline 返回 account 可见的最近 limit 条内容，最新的在前。
	FetchRecentTimeline(ctx context.Context, account string, limit int) ([]Post, error)
}

// Summary 返回用于选择题选项的简短渲染。
func (p Post) Summary() string {
	content := strings.Join(strings.Fields(p.Content), " ")
	if utf8.RuneCountInString(content) > 80 {
		content = string([]rune(content)[:80]) + "…"
	}
	return fmt.Sprintf("@%s: %s", p.Author, content)
}
