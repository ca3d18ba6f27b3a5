// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"OpenAgent-Sim/internal/llm"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 512
	defaultTimeout   = 60 * time.Second
)

// Config 描述 Anthropic 客户端参数。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client 通过官方 SDK 调用 Claude 模型。
type Client struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewClient 创建 Anthropic 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Anthropic API Key")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	client := anthropic.NewClient(opts...)
	return &Client{client: &client, model: anthropic.Model(model)}, nil
}

// Generate 实现 llm.Client。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, stop := range req.Stop {
		if strings.TrimSpace(stop) != "" {
			params.StopSequences = append(params.StopSequences, stop)
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("请求 Anthropic 失败: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, errors.New("Anthropic 响应内容为空")
	}
	return &llm.Response{Text: text, Model: string(resp.Model)}, nil
}
