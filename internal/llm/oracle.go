package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	xerrors "OpenAgent-Sim/internal/errors"
	"OpenAgent-Sim/pkg/logger"
)

// Constraints 限制开放式补全的输出。MaxLength 按字符计，0 表示不限制。
type Constraints struct {
	MaxLength int
	Stop      []string
}

// Oracle 是意图解析器依赖的判断能力。实现可以是大模型，也可以是测试里的固定脚本。
type Oracle interface {
	AskYesNo(ctx context.Context, question string) (bool, error)
	// AskMultipleChoice 返回 options 中被选中项的下标（从 0 开始）。
	AskMultipleChoice(ctx context.Context, question string, options []string) (int, error)
	CompleteText(ctx context.Context, prompt string, c Constraints) (string, error)
}

const (
	defaultMaxAttempts = 3
	systemPrompt       = "You are the decision oracle of a social network simulation. " +
		"Answer exactly in the format requested and add nothing else."
)

// LMOracle 在任意 Client 之上实现 Oracle。无法解析的回答会带着纠正提示重新询问，
// 超过 maxAttempts 次后返回 ORACLE_FAILURE。
type LMOracle struct {
	client      Client
	maxAttempts int
	temperature float64
	logger      *slog.Logger
}

// OracleOption 定义 LMOracle 的可选配置。
type OracleOption func(*LMOracle)

// WithMaxAttempts 设置每个问题的最大询问次数。
func WithMaxAttempts(n int) OracleOption {
	return func(o *LMOracle) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithTemperature 设置采样温度。
func WithTemperature(t float64) OracleOption {
	return func(o *LMOracle) {
		if t >= 0 {
			o.temperature = t
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) OracleOption {
	return func(o *LMOracle) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOracle 基于模型客户端构造 Oracle。
func NewOracle(client Client, opts ...OracleOption) *LMOracle {
	o := &LMOracle{client: client, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("oracle")
	}
	return o
}

// AskYesNo 实现 Oracle。
func (o *LMOracle) AskYesNo(ctx context.Context, question string) (bool, error) {
	prompt := strings.TrimSpace(question) + "\n\nAnswer with a single word: yes or no."
	var answer bool
	err := o.ask(ctx, prompt, 4, func(text string) bool {
		v, ok := ParseYesNo(text)
		answer = v
		return ok
	})
	return answer, err
}

// AskMultipleChoice 实现 Oracle。
func (o *LMOracle) AskMultipleChoice(ctx context.Context, question string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "选择题没有选项")
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nOptions:\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "(%d) %s\n", i+1, opt)
	}
	fmt.Fprintf(&b, "\nAnswer with the number of exactly one option, between 1 and %d.", len(options))

	index := -1
	err := o.ask(ctx, b.String(), 8, func(text string) bool {
		idx, ok := ParseChoice(text, options)
		index = idx
		return ok
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// CompleteText 实现 Oracle。停止序列与长度限制在客户端再次执行，不依赖服务商是否遵守。
func (o *LMOracle) CompleteText(ctx context.Context, prompt string, c Constraints) (string, error) {
	maxTokens := 0
	if c.MaxLength > 0 {
		// 粗略按每 token 约 3 个字符估算，再留出余量，最终长度以截断为准。
		maxTokens = c.MaxLength/3 + 16
	}
	resp, err := o.client.Generate(ctx, Request{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: o.temperature,
		Stop:        c.Stop,
	})
	if err != nil {
		return "", o.wrap(ctx, err)
	}
	return ApplyConstraints(resp.Text, c), nil
}

func (o *LMOracle) ask(ctx context.Context, prompt string, maxTokens int, accept func(string) bool) error {
	current := prompt
	var last string
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		resp, err := o.client.Generate(ctx, Request{
			System:      systemPrompt,
			Prompt:      current,
			MaxTokens:   maxTokens,
			Temperature: o.temperature,
		})
		if err != nil {
			return o.wrap(ctx, err)
		}
		last = strings.TrimSpace(resp.Text)
		if accept(last) {
			return nil
		}
		o.logger.Debug("模型回答无法解析，重新询问",
			slog.Int("attempt", attempt),
			slog.String("answer", truncate(last, 80)))
		current = prompt + "\n\nYour previous answer \"" + truncate(last, 80) + "\" was not valid. Follow the answer format exactly."
	}
	return xerrors.New(xerrors.CodeOracleFailure,
		fmt.Sprintf("%d 次询问后仍无法解析模型回答", o.maxAttempts),
		xerrors.WithMetadata("last_answer", truncate(last, 200)))
}

func (o *LMOracle) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return xerrors.Wrap(xerrors.CodeOracleFailure, err, "调用模型失败")
}

var (
	leadingNumber = regexp.MustCompile(`^\(?\s*(\d+)\s*[\).:]?`)
	anyNumber     = regexp.MustCompile(`\d+`)
)

// ParseYesNo 解析是非题回答，只看第一个词。
func ParseYesNo(text string) (bool, bool) {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '是' && r != '否'
	})
	if len(fields) == 0 {
		return false, false
	}
	switch fields[0] {
	case "yes", "y", "true", "是":
		return true, true
	case "no", "n", "false", "否":
		return false, true
	}
	return false, false
}

// ParseChoice 解析选择题回答，返回从 0 开始的下标。优先识别开头的编号，
// 其次识别回答中唯一出现的编号，最后尝试与选项原文完全匹配。
func ParseChoice(text string, options []string) (int, bool) {
	text = strings.TrimSpace(text)
	if m := leadingNumber.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(options) {
			return n - 1, true
		}
	}
	if nums := anyNumber.FindAllString(text, -1); len(nums) == 1 {
		if n, err := strconv.Atoi(nums[0]); err == nil && n >= 1 && n <= len(options) {
			return n - 1, true
		}
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), text) {
			return i, true
		}
	}
	return -1, false
}

// ApplyConstraints 在第一个停止序列处截断，并把结果限制在 MaxLength 个字符以内。
func ApplyConstraints(text string, c Constraints) string {
	for _, stop := range c.Stop {
		if stop == "" {
			continue
		}
		if idx := strings.Index(text, stop); idx >= 0 {
			text = text[:idx]
		}
	}
	if c.MaxLength > 0 && utf8.RuneCountInString(text) > c.MaxLength {
		runes := []rune(text)
		text = string(runes[:c.MaxLength])
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
