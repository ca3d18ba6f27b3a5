package intent

import (
	"fmt"

	xerrors "OpenAgent-Sim/internal/errors"
)

// CodeTargetNotFound 表示无法为需要目标的动作找到可引用的对象。
const CodeTargetNotFound xerrors.Code = "TARGET_NOT_FOUND"

// ErrTargetNotFound 是 TargetNotFoundError 的错误码哨兵。
var ErrTargetNotFound = xerrors.New(CodeTargetNotFound, "no target available")

func init() {
	xerrors.Register(CodeTargetNotFound, xerrors.Attributes{
		Message:  "no target available",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryResolution,
	})
}

// TargetNotFoundError 在可见时间线为空时返回，本轮处理就此结束。
type TargetNotFoundError struct {
	Agent  string
	Action string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("agent %s: no visible post to use as target for %s", e.Agent, e.Action)
}

func (e *TargetNotFoundError) Unwrap() error { return ErrTargetNotFound }
