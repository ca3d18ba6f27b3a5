// Package memory implements an in-process social network used for local runs
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/internal/social"
)

var (
	// ErrUnknownAccount 表示账号不存在。
	ErrUnknownAccount = xerrors.New(xerrors.CodeNotFound, "account not found")
	// ErrPostNotFound 表示帖子不存在或已删除。
	ErrPostNotFound = xerrors.New(xerrors.CodeNotFound, "post not found")
	// ErrForbidden 表示账号无权执行该操作。
	ErrForbidden = xerrors.New(xerrors.CodeAdapterFailure, "operation not permitted")
)

type account struct {
	handle    string
	following map[string]struct{}
	liked     map[string]struct{}
	boosted   map[string]struct{}
}

// Network 是一个线程安全的内存社交网络。
type Network struct {
	mu       sync.RWMutex
	accounts map[string]*account
	posts    map[string]*social.Post
	order    []string
	deleted  map[string]struct{}
	nextID   int
	now      func() time.Time
}

// Option 定义 Network 的可选配置。
type Option func(*Network)

// WithClock 替换帖子时间戳来源，通常接到模拟时钟上。
func WithClock(now func() time.Time) Option {
	return func(n *Network) {
		if now != nil {
			n.now = now
		}
	}
}

// New 创建空网络。
func New(opts ...Option) *Network {
	n := &Network{
		accounts: make(map[string]*account),
		posts:    make(map[string]*social.Post),
		deleted:  make(map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// AddAccount 注册账号，重复注册无副作用。
func (n *Network) AddAccount(handle string) {
	handle = normalizeHandle(handle)
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[handle]; ok {
		return
	}
	n.accounts[handle] = &account{
		handle:    handle,
		following: make(map[string]struct{}),
		liked:     make(map[string]struct{}),
		boosted:   make(map[string]struct{}),
	}
}

// Seed 直接写入一条公开帖子，用于场景初始化。
func (n *Network) Seed(author, content string) (social.Post, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[normalizeHandle(author)]; !ok {
		return social.Post{}, fmt.Errorf("%w: %s", ErrUnknownAccount, author)
	}
	return n.createPost(normalizeHandle(author), content, "", "public", nil), nil
}

// Post 按 ID 返回帖子。
func (n *Network) Post(id string) (social.Post, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.posts[id]
	if !ok {
		return social.Post{}, false
	}
	return clonePost(p), true
}

// Following 返回账号关注的用户，按字母排序。
func (n *Network) Following(handle string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	acc, ok := n.accounts[normalizeHandle(handle)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(acc.following))
	for h := range acc.following {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// PerformAction 实现 social.Adapter。
func (n *Network) PerformAction(ctx context.Context, handle, name string, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	acc, ok := n.accounts[normalizeHandle(handle)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, handle)
	}

	switch name {
	case social.ActionPost:
		visibility, _ := args["visibility"].(string)
		if visibility == "" {
			visibility = "public"
		}
		media, _ := args["media"].([]string)
		return n.createPost(acc.handle, stringArg(args, "status"), "", visibility, media), nil
	case social.ActionReply:
		parent, err := n.visiblePost(acc, stringArg(args, "target_id"))
		if err != nil {
			return nil, err
		}
		return n.createPost(acc.handle, stringArg(args, "status"), parent.ID, parent.Visibility, nil), nil
	case social.ActionLike:
		p, err := n.visiblePost(acc, stringArg(args, "target_id"))
		if err != nil {
			return nil, err
		}
		if _, done := acc.liked[p.ID]; !done {
			acc.liked[p.ID] = struct{}{}
			p.Likes++
		}
		return clonePost(p), nil
	case social.ActionBoost:
		p, err := n.visiblePost(acc, stringArg(args, "target_id"))
		if err != nil {
			return nil, err
		}
		if p.Visibility == "private" {
			return nil, fmt.Errorf("%w: private posts cannot be boosted", ErrForbidden)
		}
		if _, done := acc.boosted[p.ID]; !done {
			acc.boosted[p.ID] = struct{}{}
			p.Boosts++
		}
		return clonePost(p), nil
	case social.ActionDeletePost:
		p, err := n.visiblePost(acc, stringArg(args, "target_id"))
		if err != nil {
			return nil, err
		}
		if p.Author != acc.handle {
			return nil, fmt.Errorf("%w: %s is not the author of %s", ErrForbidden, acc.handle, p.ID)
		}
		n.deleted[p.ID] = struct{}{}
		return map[string]string{"deleted": p.ID}, nil
	case social.ActionFollow:
		target := normalizeHandle(stringArg(args, "handle"))
		if _, ok := n.accounts[target]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, target)
		}
		if target == acc.handle {
			return nil, fmt.Errorf("%w: cannot follow yourself", ErrForbidden)
		}
		acc.following[target] = struct{}{}
		return map[string]string{"following": target}, nil
	case social.ActionUnfollow:
		target := normalizeHandle(stringArg(args, "handle"))
		delete(acc.following, target)
		return map[string]string{"unfollowed": target}, nil
	default:
		return nil, xerrors.New(xerrors.CodeAdapterFailure, "unsupported action: "+name)
	}
}

// FetchRecentTimeline 实现 social.Adapter。可见内容包括所有公开帖子，
// 以及自己和已关注账号的非公开帖子；已删除的帖子不可见。
func (n *Network) FetchRecentTimeline(ctx context.Context, handle string, limit int) ([]social.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	acc, ok := n.accounts[normalizeHandle(handle)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, handle)
	}
	if limit <= 0 {
		limit = 20
	}
	out := make([]social.Post, 0, limit)
	for i := len(n.order) - 1; i >= 0 && len(out) < limit; i-- {
		p := n.posts[n.order[i]]
		if n.canSee(acc, p) {
			out = append(out, clonePost(p))
		}
	}
	return out, nil
}

func (n *Network) createPost(author, content, inReplyTo, visibility string, media []string) social.Post {
	n.nextID++
	p := &social.Post{
		ID:         strconv.Itoa(n.nextID),
		Author:     author,
		Content:    content,
		InReplyTo:  inReplyTo,
		Visibility: visibility,
		Media:      append([]string(nil), media...),
		CreatedAt:  n.now(),
	}
	n.posts[p.ID] = p
	n.order = append(n.order, p.ID)
	return clonePost(p)
}

func (n *Network) visiblePost(acc *account, id string) (*social.Post, error) {
	p, ok := n.posts[strings.TrimSpace(id)]
	if !ok || !n.canSee(acc, p) {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return p, nil
}

func (n *Network) canSee(acc *account, p *social.Post) bool {
	if _, gone := n.deleted[p.ID]; gone {
		return false
	}
	if p.Visibility == "public" || p.Author == acc.handle {
		return true
	}
	_, follows := acc.following[p.Author]
	return follows
}

func clonePost(p *social.Post) social.Post {
	c := *p
	c.Media = append([]string(nil), p.Media...)
	return c
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
