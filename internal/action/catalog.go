package action

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	xerrors "OpenAgent-Sim/internal/errors"
)

// Parameter 描述动作的一个参数。Required 为 false 时，缺失或空文本解析为 NoValue。
type Parameter struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	// Reference 标记该参数携带外部对象标识（例如某条帖子的 ID）。
	Reference bool `json:"reference,omitempty"`
}

// Descriptor 描述一个可调用的动作，注册后不可变。
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Parameter 按名称查找参数。
func (d Descriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ReferenceParameter 返回第一个外部对象引用参数。
func (d Descriptor) ReferenceParameter() (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Reference {
			return p, true
		}
	}
	return Parameter{}, false
}

func (d Descriptor) clone() Descriptor {
	d.Parameters = append([]Parameter(nil), d.Parameters...)
	return d
}

func (d Descriptor) validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.ContainsAny(d.Name, " \t\n:") {
		return xerrors.Wrap(CodeInvalidDescriptor, fmt.Errorf("name %q", d.Name), "动作名称不合法")
	}
	seen := make(map[string]struct{}, len(d.Parameters))
	for _, p := range d.Parameters {
		if strings.TrimSpace(p.Name) == "" || strings.ContainsAny(p.Name, " \t\n:,") {
			return xerrors.Wrap(CodeInvalidDescriptor, fmt.Errorf("parameter %q", p.Name), "参数名称不合法: "+d.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return xerrors.Wrap(CodeInvalidDescriptor, fmt.Errorf("parameter %q", p.Name), "参数重复: "+d.Name)
		}
		seen[p.Name] = struct{}{}
		if err := p.Kind.validate(); err != nil {
			return xerrors.Wrap(CodeInvalidDescriptor, err, fmt.Sprintf("参数类型不合法: %s.%s", d.Name, p.Name))
		}
		if p.Kind.IsOptional() && p.Required {
			return xerrors.New(CodeInvalidDescriptor, fmt.Sprintf("可选类型的参数不能是必填: %s.%s", d.Name, p.Name))
		}
	}
	return nil
}

// Builder 以声明式方式构建 Descriptor。
type Builder struct {
	desc Descriptor
}

// Define 开始定义一个动作。
func Define(name, description string) *Builder {
	return &Builder{desc: Descriptor{Name: name, Description: description}}
}

// Param 添加参数；类型为 OptionalOf 时自动视为非必填。
func (b *Builder) Param(name string, kind Kind, description string) *Builder {
	b.desc.Parameters = append(b.desc.Parameters, Parameter{
		Name:        name,
		Kind:        kind,
		Description: description,
		Required:    !kind.IsOptional(),
	})
	return b
}

// Optional 添加非必填参数。
func (b *Builder) Optional(name string, kind Kind, description string) *Builder {
	b.desc.Parameters = append(b.desc.Parameters, Parameter{
		Name:        name,
		Kind:        kind,
		Description: description,
	})
	return b
}

// Reference 添加一个字符串类型的外部对象引用参数。
func (b *Builder) Reference(name, description string, required bool) *Builder {
	kind := String()
	if !required {
		kind = OptionalOf(kind)
	}
	b.desc.Parameters = append(b.desc.Parameters, Parameter{
		Name:        name,
		Kind:        kind,
		Description: description,
		Required:    required,
		Reference:   true,
	})
	return b
}

// Descriptor 返回构建结果。
func (b *Builder) Descriptor() Descriptor {
	return b.desc.clone()
}

// Invocation 描述一次调用的来源。
type Invocation struct {
	Agent   string
	Account string
	Episode int
	Tick    int
	// SimTime 是调用发生时的模拟时钟读数。
	SimTime time.Time
}

// Handler 是注册时绑定到动作名的外部操作。
type Handler func(ctx context.Context, inv Invocation, args Arguments) (any, error)

type entry struct {
	desc    Descriptor
	handler Handler
}

// Catalog 保存所有可调用动作。构建完成后由所有智能体只读共享。
type Catalog struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// NewCatalog 创建一个空目录。
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register 注册动作及其处理函数。
func (c *Catalog) Register(desc Descriptor, handler Handler) error {
	if err := desc.validate(); err != nil {
		return err
	}
	if handler == nil {
		return xerrors.New(CodeInvalidDescriptor, "动作缺少处理函数: "+desc.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[desc.Name]; ok {
		return &DuplicateActionError{Name: desc.Name}
	}
	c.entries[desc.Name] = entry{desc: desc.clone(), handler: handler}
	c.order = append(c.order, desc.Name)
	return nil
}

// MustRegister 与 Register 相同，失败时 panic，仅用于静态目录。
func (c *Catalog) MustRegister(desc Descriptor, handler Handler) {
	if err := c.Register(desc, handler); err != nil {
		panic(err)
	}
}

// List 按注册顺序返回所有动作描述。
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name].desc.clone())
	}
	return out
}

// Describe 返回指定动作的描述。
func (c *Catalog) Describe(name string) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return Descriptor{}, &UnknownActionError{Name: name}
	}
	return e.desc.clone(), nil
}

// Len 返回已注册的动作数量。
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Catalog) handler(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e.handler, ok
}
