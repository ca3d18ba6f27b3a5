package action

import (
	"reflect"
	"sort"
	"time"
)

type noValue struct{}

func (noValue) String() string { return "<none>" }

// MarshalJSON 将 NoValue 输出为 null。
func (noValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// NoValue 表示非必填参数未提供值。
var NoValue = noValue{}

// IsNoValue 判断值是否为 NoValue。
func IsNoValue(v any) bool {
	_, ok := v.(noValue)
	return ok
}

// Arguments 是参数名到已解析值的映射，只由解析产生。
type Arguments map[string]any

// Has 判断参数存在且不是 NoValue。
func (a Arguments) Has(name string) bool {
	v, ok := a[name]
	return ok && !IsNoValue(v)
}

// String 返回字符串参数，缺失时返回空串。
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int 返回整数参数。
func (a Arguments) Int(name string) int64 {
	n, _ := a[name].(int64)
	return n
}

// Time 返回时间戳参数。
func (a Arguments) Time(name string) time.Time {
	ts, _ := a[name].(time.Time)
	return ts
}

// Strings 返回字符串列表参数。
func (a Arguments) Strings(name string) []string {
	list, _ := a[name].([]string)
	return append([]string(nil), list...)
}

// Names 按字母顺序返回参数名。
func (a Arguments) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values 返回去掉 NoValue 的普通映射，交给外部适配器使用。
func (a Arguments) Values() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		if IsNoValue(v) {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone 返回浅拷贝，列表值会被复制。
func (a Arguments) Clone() Arguments {
	if a == nil {
		return nil
	}
	out := make(Arguments, len(a))
	for k, v := range a {
		switch list := v.(type) {
		case []string:
			out[k] = append([]string(nil), list...)
		case []int64:
			out[k] = append([]int64(nil), list...)
		case []time.Time:
			out[k] = append([]time.Time(nil), list...)
		default:
			out[k] = v
		}
	}
	return out
}

// Equal 比较两组参数，时间值按时刻比较。
func (a Arguments) Equal(b Arguments) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []time.Time:
		bv, ok := b.([]time.Time)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !av[i].Equal(bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}
