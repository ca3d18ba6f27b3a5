package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	xerrors "OpenAgent-Sim/internal/errors"
)

type stubLLM struct {
	answers []string
	prompts []Request
	err     error
}

func (s *stubLLM) Generate(_ context.Context, req Request) (*Response, error) {
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.answers) == 0 {
		return &Response{Text: ""}, nil
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return &Response{Text: next}, nil
}

func newTestOracle(client Client, opts ...OracleOption) *LMOracle {
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewOracle(client, opts...)
}

func TestAskYesNo(t *testing.T) {
	stub := &stubLLM{answers: []string{"Yes, definitely.", "no"}}
	oracle := newTestOracle(stub)

	yes, err := oracle.AskYesNo(context.Background(), "Is the sky blue?")
	if err != nil || !yes {
		t.Fatalf("expected yes, got %v (%v)", yes, err)
	}
	no, err := oracle.AskYesNo(context.Background(), "Is water dry?")
	if err != nil || no {
		t.Fatalf("expected no, got %v (%v)", no, err)
	}
	if !strings.Contains(stub.prompts[0].Prompt, "yes or no") {
		t.Fatalf("prompt should state the answer format: %q", stub.prompts[0].Prompt)
	}
}

func TestAskMultipleChoiceNumbersOptions(t *testing.T) {
	stub := &stubLLM{answers: []string{"(2) reply"}}
	oracle := newTestOracle(stub)

	idx, err := oracle.AskMultipleChoice(context.Background(), "Pick an action", []string{"post: publish", "reply: answer", "like: like"})
	if err != nil || idx != 1 {
		t.Fatalf("expected index 1, got %d (%v)", idx, err)
	}
	prompt := stub.prompts[0].Prompt
	for _, want := range []string{"(1) post: publish", "(2) reply: answer", "(3) like: like"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %s", want, prompt)
		}
	}
}

func TestAskMultipleChoiceReasksThenFails(t *testing.T) {
	stub := &stubLLM{answers: []string{"I am not sure", "maybe the second?", "7"}}
	oracle := newTestOracle(stub, WithMaxAttempts(3))

	_, err := oracle.AskMultipleChoice(context.Background(), "Pick", []string{"a", "b"})
	if xerrors.CodeOf(err) != xerrors.CodeOracleFailure {
		t.Fatalf("expected oracle failure, got %v", err)
	}
	if len(stub.prompts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stub.prompts))
	}
	if !strings.Contains(stub.prompts[1].Prompt, "was not valid") {
		t.Fatalf("re-ask prompt should carry a correction")
	}
}

func TestAskMultipleChoiceRecoversOnSecondAttempt(t *testing.T) {
	stub := &stubLLM{answers: []string{"hmm", "Option 1"}}
	oracle := newTestOracle(stub)
	idx, err := oracle.AskMultipleChoice(context.Background(), "Pick", []string{"a", "b"})
	if err != nil || idx != 0 {
		t.Fatalf("expected index 0, got %d (%v)", idx, err)
	}
}

func TestCompleteTextAppliesConstraints(t *testing.T) {
	stub := &stubLLM{answers: []string{"status: hello there\n###\nignored: tail"}}
	oracle := newTestOracle(stub)

	text, err := oracle.CompleteText(context.Background(), "extract", Constraints{MaxLength: 12, Stop: []string{"###"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "status: hell" {
		t.Fatalf("unexpected text %q", text)
	}
	if stub.prompts[0].MaxTokens == 0 || len(stub.prompts[0].Stop) != 1 {
		t.Fatalf("constraints should be forwarded to the client: %+v", stub.prompts[0])
	}
}

func TestOracleClientErrors(t *testing.T) {
	oracle := newTestOracle(&stubLLM{err: errors.New("rate limited")})
	if _, err := oracle.AskYesNo(context.Background(), "q"); xerrors.CodeOf(err) != xerrors.CodeOracleFailure {
		t.Fatalf("expected oracle failure, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := oracle.CompleteText(ctx, "q", Constraints{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must be returned as is, got %v", err)
	}
}

func TestParseChoice(t *testing.T) {
	options := []string{"post", "reply", "like"}
	cases := map[string]int{
		"3":               2,
		"(1)":             0,
		"2. reply":        1,
		"I choose 3":      2,
		"Like":            2,
		"4":               -1,
		"1 or 2":          0,
		"between 1 and 2": -1,
		"none of these":   -1,
	}
	for answer, want := range cases {
		got, ok := ParseChoice(answer, options)
		if want < 0 {
			if ok {
				t.Fatalf("%q should not parse, got %d", answer, got)
			}
			continue
		}
		if !ok || got != want {
			t.Fatalf("%q: got %d,%v want %d", answer, got, ok, want)
		}
	}
}
