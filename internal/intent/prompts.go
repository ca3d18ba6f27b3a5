package intent

import (
	"fmt"
	"strings"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/social"
)

func duplicateQuestion(agent, event string, entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "During the current episode, agent %s has already carried out these intentions:\n", agent)
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s (performed %s", e.Narrative, e.Action)
		if e.Arguments != "" {
			fmt.Fprintf(&b, " with %s", strings.ReplaceAll(e.Arguments, "\n", "; "))
		}
		b.WriteString(")\n")
	}
	fmt.Fprintf(&b, "\nNew intention: %s\n\n", event)
	b.WriteString("Would carrying out the new intention have the same effect as one of the intentions already carried out?")
	return b.String()
}

func selectionQuestion(agent, event string) string {
	return fmt.Sprintf("Agent %s intends the following:\n%s\n\n"+
		"Choose the single action that carries out this intention. "+
		"Prefer the most specific action that fits. "+
		"When the intention is ambiguous, prefer an action that contributes content, such as post or reply. "+
		"Never choose an action whose required evidence is missing from the intention, for example a target that is not identified.",
		agent, event)
}

func actionOptions(descs []action.Descriptor) []string {
	options := make([]string, len(descs))
	for i, d := range descs {
		options[i] = d.Name + ": " + d.Description
	}
	return options
}

func referenceQuestion(event string, desc action.Descriptor, ref action.Parameter) string {
	return fmt.Sprintf("Intention: %s\n\nThe action %q can optionally refer to an existing post (%s). "+
		"Does this intention refer to a specific existing post?", event, desc.Name, ref.Description)
}

func targetQuestion(event string, desc action.Descriptor) string {
	return fmt.Sprintf("Intention: %s\n\nThe action %q needs an existing post. Which of these recent posts is the intention about?",
		event, desc.Name)
}

func timelineOptions(posts []social.Post) []string {
	options := make([]string, len(posts))
	for i, p := range posts {
		options[i] = p.Summary()
	}
	return options
}

func argumentPrompt(agent, event string, desc action.Descriptor, ref *action.Parameter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent %s intends the following:\n%s\n\n", agent, event)
	fmt.Fprintf(&b, "The chosen action is %q: %s\n\n", desc.Name, desc.Description)
	b.WriteString("Write the arguments of this action, one per line, in the form \"name: value\". ")
	b.WriteString("Lists are written on one line, separated by commas. ")
	b.WriteString("Leave out optional parameters that do not apply. Write nothing else.\n\nParameters:\n")
	written := 0
	for _, p := range desc.Parameters {
		if ref != nil && p.Name == ref.Name {
			continue
		}
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", p.Name, p.Kind, req, p.Description)
		written++
	}
	if written == 0 {
		b.WriteString("(none, answer with an empty line)\n")
	}
	return b.String()
}

// substituteReference 删除模型写出的引用参数行，并在 id 非空时追加解析得到的标识。
func substituteReference(raw, name, id string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if idx := strings.IndexByte(line, ':'); idx > 0 && strings.TrimSpace(line[:idx]) == name {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if id == "" {
		return out
	}
	if out != "" {
		out += "\n"
	}
	return out + name + ": " + id
}
