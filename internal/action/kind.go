package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tag 标识参数类型的种类。
type Tag uint8

const (
	TagString Tag = iota
	TagInteger
	TagTimestamp
	TagEnum
	TagOptional
	TagList
)

// Kind 描述参数值的类型。Optional 与 List 通过 elem 嵌套一个标量类型。
type Kind struct {
	tag      Tag
	literals []string
	elem     *Kind
}

// String 返回字符串类型。
func String() Kind { return Kind{tag: TagString} }

// Integer 返回 64 位整数类型。
func Integer() Kind { return Kind{tag: TagInteger} }

// Timestamp 返回 RFC 3339 时间戳类型。
func Timestamp() Kind { return Kind{tag: TagTimestamp} }

// Enum 返回只接受给定字面量之一的类型。
func Enum(literals ...string) Kind {
	return Kind{tag: TagEnum, literals: append([]string(nil), literals...)}
}

// OptionalOf 包装一个类型，缺失或为空时解析为 NoValue。
func OptionalOf(k Kind) Kind {
	elem := k
	return Kind{tag: TagOptional, elem: &elem}
}

// ListOf 返回逗号分隔的列表类型。
func ListOf(k Kind) Kind {
	elem := k
	return Kind{tag: TagList, elem: &elem}
}

// Tag 返回类型种类。
func (k Kind) Tag() Tag { return k.tag }

// Literals 返回枚举字面量的副本。
func (k Kind) Literals() []string { return append([]string(nil), k.literals...) }

// Elem 返回 Optional/List 的内部类型。
func (k Kind) Elem() (Kind, bool) {
	if k.elem == nil {
		return Kind{}, false
	}
	return *k.elem, true
}

// IsOptional 判断类型本身是否声明为可选。
func (k Kind) IsOptional() bool { return k.tag == TagOptional }

// String 返回面向模型的类型说明。
func (k Kind) String() string {
	switch k.tag {
	case TagString:
		return "string"
	case TagInteger:
		return "integer"
	case TagTimestamp:
		return "timestamp (RFC 3339)"
	case TagEnum:
		return "one of [" + strings.Join(k.literals, ", ") + "]"
	case TagOptional:
		return "optional " + k.elem.String()
	case TagList:
		return "comma-separated list of " + k.elem.String()
	default:
		return "unknown"
	}
}

// MarshalJSON 以类型说明文本输出，供目录查询接口使用。
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// scalar 返回去掉 Optional 包装后的类型。
func (k Kind) scalar() Kind {
	if k.tag == TagOptional && k.elem != nil {
		return k.elem.scalar()
	}
	return k
}

func (k Kind) validate() error {
	switch k.tag {
	case TagString, TagInteger, TagTimestamp:
		return nil
	case TagEnum:
		if len(k.literals) == 0 {
			return errors.New("enum kind needs at least one literal")
		}
		for _, lit := range k.literals {
			if strings.TrimSpace(lit) == "" || strings.ContainsAny(lit, ",\n") {
				return fmt.Errorf("invalid enum literal %q", lit)
			}
		}
		return nil
	case TagOptional:
		if k.elem == nil {
			return errors.New("optional kind without element")
		}
		if k.elem.tag == TagOptional {
			return errors.New("optional of optional is not allowed")
		}
		return k.elem.validate()
	case TagList:
		if k.elem == nil {
			return errors.New("list kind without element")
		}
		if k.elem.tag == TagOptional || k.elem.tag == TagList {
			return fmt.Errorf("list element must be scalar, got %s", k.elem)
		}
		return k.elem.validate()
	default:
		return fmt.Errorf("unknown kind tag %d", k.tag)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// convertScalar 将文本转换为标量值。
func convertScalar(k Kind, raw string) (any, error) {
	switch k.tag {
	case TagString:
		return raw, nil
	case TagInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer")
		}
		return n, nil
	case TagTimestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("not a timestamp")
	case TagEnum:
		for _, lit := range k.literals {
			if raw == lit {
				return lit, nil
			}
		}
		return nil, fmt.Errorf("not one of [%s]", strings.Join(k.literals, ", "))
	default:
		return nil, fmt.Errorf("%s is not a scalar kind", k)
	}
}

// convertList 拆分逗号分隔的文本并逐项转换，空元素被忽略。
func convertList(elem Kind, raw string) (any, int, error) {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	switch elem.tag {
	case TagString, TagEnum:
		out := make([]string, 0, len(items))
		for i, item := range items {
			v, err := convertScalar(elem, item)
			if err != nil {
				return nil, i, err
			}
			out = append(out, v.(string))
		}
		return out, len(out), nil
	case TagInteger:
		out := make([]int64, 0, len(items))
		for i, item := range items {
			v, err := convertScalar(elem, item)
			if err != nil {
				return nil, i, err
			}
			out = append(out, v.(int64))
		}
		return out, len(out), nil
	case TagTimestamp:
		out := make([]time.Time, 0, len(items))
		for i, item := range items {
			v, err := convertScalar(elem, item)
			if err != nil {
				return nil, i, err
			}
			out = append(out, v.(time.Time))
		}
		return out, len(out), nil
	default:
		return nil, 0, fmt.Errorf("unsupported list element %s", elem)
	}
}

// formatValue 将值渲染为 "name: value" 语法中的 value 部分。
func formatValue(k Kind, v any) (string, error) {
	k = k.scalar()
	if k.tag == TagList {
		elem := *k.elem
		var parts []string
		switch list := v.(type) {
		case []string:
			parts = list
		case []int64:
			for _, n := range list {
				parts = append(parts, strconv.FormatInt(n, 10))
			}
		case []time.Time:
			for _, ts := range list {
				parts = append(parts, ts.Format(time.RFC3339Nano))
			}
		default:
			return "", fmt.Errorf("value %T does not match %s", v, k)
		}
		for _, p := range parts {
			if strings.ContainsAny(p, ",\n") || strings.TrimSpace(p) != p || p == "" {
				return "", fmt.Errorf("list element %q of %s cannot be rendered", p, elem)
			}
		}
		return strings.Join(parts, ", "), nil
	}
	var text string
	switch val := v.(type) {
	case string:
		text = val
	case int64:
		text = strconv.FormatInt(val, 10)
	case time.Time:
		text = val.Format(time.RFC3339Nano)
	default:
		return "", fmt.Errorf("value %T does not match %s", v, k)
	}
	if strings.Contains(text, "\n") || strings.TrimSpace(text) != text {
		return "", fmt.Errorf("value %q cannot be rendered on a single line", text)
	}
	return text, nil
}

// matches 判断一个已解析的值是否符合类型，供调度前的二次校验使用。
func matches(k Kind, v any) bool {
	k = k.scalar()
	switch k.tag {
	case TagString:
		_, ok := v.(string)
		return ok
	case TagInteger:
		_, ok := v.(int64)
		return ok
	case TagTimestamp:
		_, ok := v.(time.Time)
		return ok
	case TagEnum:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, lit := range k.literals {
			if s == lit {
				return true
			}
		}
		return false
	case TagList:
		switch k.elem.tag {
		case TagString:
			_, ok := v.([]string)
			return ok
		case TagEnum:
			list, ok := v.([]string)
			if !ok {
				return false
			}
			for _, item := range list {
				if !matches(*k.elem, item) {
					return false
				}
			}
			return true
		case TagInteger:
			_, ok := v.([]int64)
			return ok
		case TagTimestamp:
			_, ok := v.([]time.Time)
			return ok
		}
	}
	return false
}
