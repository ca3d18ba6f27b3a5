package sim

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/episode"
	"OpenAgent-Sim/internal/intent"
	"OpenAgent-Sim/internal/llm"
	"OpenAgent-Sim/internal/social"
	"OpenAgent-Sim/internal/social/memory"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type stubResolver struct {
	mu       sync.Mutex
	requests []intent.Request
}

func (s *stubResolver) Resolve(_ context.Context, req intent.Request) (intent.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	req.History.Add(intent.Entry{Narrative: req.Event, Action: "post", Tick: req.Invocation.Tick})
	return intent.Outcome{Reached: intent.StateDone, Action: "post"}, nil
}

func TestScriptedSourcePrefersScheduledEvents(t *testing.T) {
	src := NewScriptedSource()
	src.At(2, "alice", "Alice replies to Bob")
	src.Routine("alice", "Alice posts a photo", "Alice reads the news")
	ctx := context.Background()
	alice := episode.Agent{ID: "alice"}

	cases := map[int]string{0: "Alice posts a photo", 1: "Alice reads the news", 2: "Alice replies to Bob", 3: "Alice reads the news"}
	for tick, want := range cases {
		got, ok, err := src.NextEvent(ctx, alice, episode.Context{Tick: tick})
		if err != nil || !ok || got != want {
			t.Fatalf("tick %d: got %q (%v, %v), want %q", tick, got, ok, err, want)
		}
	}
	if _, ok, _ := src.NextEvent(ctx, episode.Agent{ID: "bob"}, episode.Context{Tick: 0}); ok {
		t.Fatalf("agents without script have no intention")
	}
}

func TestParticipantKeepsHistoryPerAgentAndEpisode(t *testing.T) {
	resolver := &stubResolver{}
	src := NewScriptedSource()
	src.Routine("alice", "Alice posts")
	src.Routine("bob", "Bob posts")
	var hooked int
	p := NewParticipant(resolver, src, WithParticipantLogger(quiet()), WithOutcomeHook(func(episode.Agent, episode.Context, intent.Outcome) { hooked++ }))
	ctx := context.Background()

	_ = p.Act(ctx, episode.Agent{ID: "alice", Account: "alice_acct"}, episode.Context{Episode: 0, Tick: 0})
	_ = p.Act(ctx, episode.Agent{ID: "alice"}, episode.Context{Episode: 0, Tick: 1})
	_ = p.Act(ctx, episode.Agent{ID: "bob"}, episode.Context{Episode: 0, Tick: 1})

	if got := p.History("alice", 0).Len(); got != 2 {
		t.Fatalf("alice should have two entries, got %d", got)
	}
	if got := p.History("bob", 0).Len(); got != 1 {
		t.Fatalf("histories must not be shared, bob has %d", got)
	}
	_ = p.Act(ctx, episode.Agent{ID: "alice"}, episode.Context{Episode: 1, Tick: 2})
	if got := p.History("alice", 1).Len(); got != 1 {
		t.Fatalf("history must reset at the episode boundary, got %d", got)
	}
	if inv := resolver.requests[0].Invocation; inv.Account != "alice_acct" || inv.Agent != "alice" {
		t.Fatalf("unexpected invocation %+v", inv)
	}
	if hooked != 4 {
		t.Fatalf("expected 4 outcome callbacks, got %d", hooked)
	}
}

func TestLateResolutionDoesNotLeakIntoNextEpisode(t *testing.T) {
	p := NewParticipant(&stubResolver{}, NewScriptedSource(), WithParticipantLogger(quiet()))

	stale := p.History("alice", 0)
	fresh := p.History("alice", 1)
	if stale == fresh {
		t.Fatalf("a new episode must get its own history")
	}
	stale.Add(intent.Entry{Narrative: "Alice posts", Action: "post", Tick: 3})

	if fresh.Len() != 0 || p.History("alice", 1).Len() != 0 {
		t.Fatalf("late entry from episode 0 reached episode 1")
	}
	if p.History("alice", 1) != fresh {
		t.Fatalf("history must be stable within an episode")
	}
}

func TestParticipantWithoutEventDoesNothing(t *testing.T) {
	resolver := &stubResolver{}
	p := NewParticipant(resolver, NewScriptedSource(), WithParticipantLogger(quiet()))
	if err := p.Act(context.Background(), episode.Agent{ID: "alice"}, episode.Context{}); err != nil {
		t.Fatalf("act: %v", err)
	}
	if len(resolver.requests) != 0 {
		t.Fatalf("resolver must not run without an intention")
	}
}

// postingOracle 总是选择 post，并把意图原文写为状态。
type postingOracle struct{}

func (postingOracle) AskYesNo(context.Context, string) (bool, error) { return false, nil }
func (postingOracle) AskMultipleChoice(context.Context, string, []string) (int, error) {
	return 0, nil
}
func (postingOracle) CompleteText(_ context.Context, prompt string, _ llm.Constraints) (string, error) {
	first := strings.SplitN(prompt, "\n", 3)[1]
	return "status: " + first, nil
}

func TestEndToEndStepsThroughScheduler(t *testing.T) {
	network := memory.New()
	network.AddAccount("alice")
	network.AddAccount("bob")
	catalog, err := social.NewCatalog(network)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	log := actionlog.NewMemorySink()
	writer := actionlog.NewWriter([]actionlog.Sink{log}, actionlog.WithLogger(quiet()), actionlog.WithAuditLogger(quiet()))
	defer writer.Close()

	dispatcher := action.NewDispatcher(catalog, writer, action.WithDispatcherLogger(quiet()))
	resolver := intent.NewResolver(catalog, dispatcher, postingOracle{}, network, writer, intent.WithLogger(quiet()))
	src := NewScriptedSource()
	src.Routine("alice", "Alice shares her breakfast")
	src.Routine("bob", "Bob complains about the weather")
	participant := NewParticipant(resolver, src, WithParticipantLogger(quiet()))

	scheduler := episode.NewScheduler(episode.NewClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour), writer,
		episode.WithLogger(quiet()), episode.WithStepsPerEpisode(2))
	_ = scheduler.Add(episode.Agent{ID: "alice"}, participant)
	_ = scheduler.Add(episode.Agent{ID: "bob"}, participant)

	if _, err := scheduler.Run(context.Background(), episode.All, 3, time.Second, 5*time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	records := log.Records()
	if len(records) != 6 {
		t.Fatalf("expected one record per agent per step, got %d", len(records))
	}
	effects := actionlog.Effects(records)
	if len(effects) != 4 {
		t.Fatalf("expected effects for two agents over two episodes, got %d", len(effects))
	}
	timeline, _ := network.FetchRecentTimeline(context.Background(), "alice", 10)
	if len(timeline) != 6 || !strings.Contains(timeline[0].Content, "complains") && !strings.Contains(timeline[0].Content, "breakfast") {
		t.Fatalf("unexpected timeline %+v", timeline)
	}
	if scheduler.Clock().Tick() != 3 {
		t.Fatalf("clock should have advanced three times")
	}
}
