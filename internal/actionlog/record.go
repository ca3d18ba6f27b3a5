package actionlog

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Status 表示一条记录的结果。
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// SkipPrefix 是未真正调用外部动作的记录的动作名前缀。
const SkipPrefix = "skipped:"

// 跳过原因。
const (
	ReasonDuplicate        = "duplicate"
	ReasonTimeout          = "timeout"
	ReasonNoTarget         = "no_target"
	ReasonNoAction         = "no_action"
	ReasonInvalidArguments = "invalid_arguments"
	ReasonOracle           = "oracle_error"
)

// SkipAction 返回跳过记录使用的动作名，例如 "skipped:duplicate"。
func SkipAction(reason string) string {
	return SkipPrefix + reason
}

// Record 是追加式动作日志中的一行。
type Record struct {
	ID        string          `json:"id"`
	Episode   int             `json:"episode_index"`
	Tick      int             `json:"tick"`
	Agent     string          `json:"source_agent"`
	Action    string          `json:"action_name"`
	Arguments map[string]any  `json:"arguments,omitempty"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	SimTime   time.Time       `json:"sim_time"`
	Timestamp time.Time       `json:"timestamp"`
}

// Skipped 判断记录是否为跳过记录。
func (r Record) Skipped() bool {
	return strings.HasPrefix(r.Action, SkipPrefix)
}

// Reason 返回跳过原因，非跳过记录返回空串。
func (r Record) Reason() string {
	if !r.Skipped() {
		return ""
	}
	return strings.TrimPrefix(r.Action, SkipPrefix)
}

// Effective 判断记录是否代表一次成功产生的外部效果。
func (r Record) Effective() bool {
	return r.Status == StatusOK && !r.Skipped()
}

// Recorder 接收动作记录。实现必须可被多个工作协程并发调用。
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// RecorderFunc 允许用普通函数实现 Recorder。
type RecorderFunc func(ctx context.Context, rec Record) error

// Append 实现 Recorder。
func (f RecorderFunc) Append(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
