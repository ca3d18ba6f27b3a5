package action

import (
	"fmt"
	"strings"

	xerrors "OpenAgent-Sim/internal/errors"
)

const (
	CodeDuplicateAction    xerrors.Code = "ACTION_DUPLICATE"
	CodeUnknownAction      xerrors.Code = "ACTION_UNKNOWN"
	CodeInvalidDescriptor  xerrors.Code = "ACTION_INVALID_DESCRIPTOR"
	CodeMissingArgument    xerrors.Code = "ARGUMENT_MISSING_REQUIRED"
	CodeUnexpectedArgument xerrors.Code = "ARGUMENT_UNEXPECTED"
	CodeArgumentType       xerrors.Code = "ARGUMENT_TYPE"
)

var (
	// ErrDuplicateAction 表示同名动作已经注册。
	ErrDuplicateAction = xerrors.New(CodeDuplicateAction, "action already registered")
	// ErrUnknownAction 表示目录中不存在该动作。
	ErrUnknownAction = xerrors.New(CodeUnknownAction, "unknown action")
	// ErrInvalidDescriptor 表示动作描述不合法。
	ErrInvalidDescriptor = xerrors.New(CodeInvalidDescriptor, "invalid action descriptor")
	// ErrMissingArgument 是 MissingRequiredArgumentError 的错误码哨兵。
	ErrMissingArgument = xerrors.New(CodeMissingArgument, "missing required argument")
	// ErrUnexpectedArgument 是 UnexpectedArgumentError 的错误码哨兵。
	ErrUnexpectedArgument = xerrors.New(CodeUnexpectedArgument, "unexpected argument")
	// ErrArgumentType 是 ArgumentTypeError 的错误码哨兵。
	ErrArgumentType = xerrors.New(CodeArgumentType, "argument type mismatch")
)

func init() {
	xerrors.Register(CodeDuplicateAction, xerrors.Attributes{
		Message:  "action already registered",
		Severity: xerrors.SeverityCritical,
		Category: xerrors.CategoryInternal,
	})
	xerrors.Register(CodeUnknownAction, xerrors.Attributes{
		Message:  "unknown action",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryResolution,
	})
	xerrors.Register(CodeInvalidDescriptor, xerrors.Attributes{
		Message:  "invalid action descriptor",
		Severity: xerrors.SeverityCritical,
		Category: xerrors.CategoryInternal,
	})
	for _, code := range []xerrors.Code{CodeMissingArgument, CodeUnexpectedArgument, CodeArgumentType} {
		xerrors.Register(code, xerrors.Attributes{
			Message:  "argument parsing failed",
			Severity: xerrors.SeverityInfo,
			Category: xerrors.CategoryParsing,
		})
	}
}

// DuplicateActionError 在重复注册动作时返回。
type DuplicateActionError struct {
	Name string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action %q already registered", e.Name)
}

func (e *DuplicateActionError) Unwrap() error { return ErrDuplicateAction }

// UnknownActionError 在查询未注册的动作时返回。
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

func (e *UnknownActionError) Unwrap() error { return ErrUnknownAction }

// MissingRequiredArgumentError 一次性列出所有缺失的必填参数。
type MissingRequiredArgumentError struct {
	Action string
	Names  []string
}

func (e *MissingRequiredArgumentError) Error() string {
	return fmt.Sprintf("action %s: missing required arguments: %s", e.Action, strings.Join(e.Names, ", "))
}

func (e *MissingRequiredArgumentError) Unwrap() error { return ErrMissingArgument }

// UnexpectedArgumentError 一次性列出所有未声明的参数名。
type UnexpectedArgumentError struct {
	Action string
	Names  []string
}

func (e *UnexpectedArgumentError) Error() string {
	return fmt.Sprintf("action %s: unexpected arguments: %s", e.Action, strings.Join(e.Names, ", "))
}

func (e *UnexpectedArgumentError) Unwrap() error { return ErrUnexpectedArgument }

// ArgumentTypeError 记录无法转换为声明类型的参数及其原始文本。
type ArgumentTypeError struct {
	Action    string
	Parameter string
	Kind      Kind
	Raw       string
	Reason    string
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("action %s: argument %s=%q is not %s: %s", e.Action, e.Parameter, e.Raw, e.Kind, e.Reason)
}

func (e *ArgumentTypeError) Unwrap() error { return ErrArgumentType }
