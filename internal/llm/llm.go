package llm

import "context"

// Request 描述一次文本补全请求。
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Response 是模型返回的文本。
type Response struct {
	Text  string
	Model string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许用普通函数实现 Client，主要用于测试。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Generate 实现 Client。
func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
