package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"OpenAgent-Sim/internal/llm"
)

// Client 通过调用 Python 脚本实现大模型推理。脚本从 stdin 读取一个 JSON 请求，
// 向 stdout 输出 {"text": "..."}。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

// Generate 调用外部脚本，并解析输出。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload := map[string]any{
		"system":      req.System,
		"prompt":      req.Prompt,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"stop":        req.Stop,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("执行 Python 脚本失败: %v, stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	var resp struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("解析 Python 输出失败: %w", err)
	}

	return &llm.Response{Text: strings.TrimSpace(resp.Text), Model: resp.Model}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
