package action

import (
	"errors"
	"strings"
	"unicode"
)

// rawLine 是参数块中的一行 "name: value"。
type rawLine struct {
	key   string
	value string
}

// splitLines 将模型输出拆分为键值行。没有冒号或键中含空白的行视为说明文字并忽略，
// 同名键只保留第一次出现。
func splitLines(raw string) []rawLine {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines []rawLine
	seen := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" || strings.IndexFunc(key, unicode.IsSpace) >= 0 {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		lines = append(lines, rawLine{key: key, value: strings.TrimSpace(line[idx+1:])})
	}
	return lines
}

// Parse 按动作描述把参数块解析为 Arguments。
//
// 缺失的必填参数、未声明的参数与类型错误都会先全部收集，再通过 errors.Join 一并返回，
// 调用方可以用 errors.As 分别取出 MissingRequiredArgumentError、UnexpectedArgumentError
// 与 ArgumentTypeError。
func Parse(desc Descriptor, raw string) (Arguments, error) {
	lines := splitLines(raw)
	values := make(map[string]string, len(lines))
	for _, l := range lines {
		values[l.key] = l.value
	}

	args := make(Arguments, len(desc.Parameters))
	var (
		missing  []string
		typeErrs []error
	)
	for _, p := range desc.Parameters {
		text, present := values[p.Name]
		if !present || text == "" {
			if p.Required {
				missing = append(missing, p.Name)
			} else {
				args[p.Name] = NoValue
			}
			continue
		}

		value, err := convertParameter(desc.Name, p, text)
		if err != nil {
			typeErrs = append(typeErrs, err)
			continue
		}
		if value == nil {
			// 列表拆分后为空。
			if p.Required {
				missing = append(missing, p.Name)
			} else {
				args[p.Name] = NoValue
			}
			continue
		}
		args[p.Name] = value
	}

	var unexpected []string
	for _, l := range lines {
		if _, ok := desc.Parameter(l.key); !ok {
			unexpected = append(unexpected, l.key)
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &MissingRequiredArgumentError{Action: desc.Name, Names: missing})
	}
	if len(unexpected) > 0 {
		errs = append(errs, &UnexpectedArgumentError{Action: desc.Name, Names: unexpected})
	}
	errs = append(errs, typeErrs...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return args, nil
}

func convertParameter(action string, p Parameter, text string) (any, error) {
	kind := p.Kind.scalar()
	if kind.tag == TagList {
		list, n, err := convertList(*kind.elem, text)
		if err != nil {
			return nil, &ArgumentTypeError{Action: action, Parameter: p.Name, Kind: p.Kind, Raw: text, Reason: err.Error()}
		}
		if n == 0 {
			return nil, nil
		}
		return list, nil
	}
	value, err := convertScalar(kind, text)
	if err != nil {
		return nil, &ArgumentTypeError{Action: action, Parameter: p.Name, Kind: p.Kind, Raw: text, Reason: err.Error()}
	}
	return value, nil
}

// Render 按参数声明顺序把 Arguments 渲染为参数块，NoValue 与缺失参数不输出。
func Render(desc Descriptor, args Arguments) (string, error) {
	var b strings.Builder
	for _, p := range desc.Parameters {
		v, ok := args[p.Name]
		if !ok || IsNoValue(v) {
			continue
		}
		text, err := formatValue(p.Kind, v)
		if err != nil {
			return "", &ArgumentTypeError{Action: desc.Name, Parameter: p.Name, Kind: p.Kind, Reason: err.Error()}
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(text)
	}
	return b.String(), nil
}

// Validate 校验已解析的参数：不允许未声明的键，必填参数不能缺失，值必须符合声明类型。
func Validate(desc Descriptor, args Arguments) error {
	var missing, unexpected []string
	var typeErrs []error
	for _, p := range desc.Parameters {
		v, ok := args[p.Name]
		if !ok || IsNoValue(v) {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		if !matches(p.Kind, v) {
			typeErrs = append(typeErrs, &ArgumentTypeError{Action: desc.Name, Parameter: p.Name, Kind: p.Kind, Reason: "value has wrong type"})
		}
	}
	for _, name := range args.Names() {
		if _, ok := desc.Parameter(name); !ok {
			unexpected = append(unexpected, name)
		}
	}
	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &MissingRequiredArgumentError{Action: desc.Name, Names: missing})
	}
	if len(unexpected) > 0 {
		errs = append(errs, &UnexpectedArgumentError{Action: desc.Name, Names: unexpected})
	}
	errs = append(errs, typeErrs...)
	return errors.Join(errs...)
}
