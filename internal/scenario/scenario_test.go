package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"OpenAgent-Sim/internal/episode"
	"OpenAgent-Sim/internal/social/memory"
)

const sample = `
name: morning
default_rate: 0.5
roles:
  poster: 0.9
  lurker: 0.1
agents:
  - id: alice
    role: poster
    routine:
      - Alice posts about her coffee
  - id: bob
    account: bobby
    role: lurker
seed_posts:
  - author: bobby
    content: Good morning everyone
events:
  - tick: 1
    agent: bob
    event: Bob likes Alice's coffee post
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	roster := sc.Roster()
	if len(roster) != 2 || roster[0].Account != "alice" || roster[1].Account != "bobby" {
		t.Fatalf("unexpected roster %+v", roster)
	}
	sel := sc.Selector(1)
	if sel.Rate("poster") != 0.9 || sel.Rate("unknown") != 0.5 {
		t.Fatalf("unexpected rates")
	}

	src := sc.Script()
	ev, ok, _ := src.NextEvent(context.Background(), roster[1], episode.Context{Tick: 1})
	if !ok || !strings.Contains(ev, "likes") {
		t.Fatalf("scripted event missing: %q", ev)
	}
	if _, ok, _ := src.NextEvent(context.Background(), roster[1], episode.Context{Tick: 2}); ok {
		t.Fatalf("bob has no routine")
	}

	network := memory.New()
	if err := sc.Populate(network); err != nil {
		t.Fatalf("populate: %v", err)
	}
	timeline, err := network.FetchRecentTimeline(context.Background(), "alice", 10)
	if err != nil || len(timeline) != 1 || timeline[0].Author != "bobby" {
		t.Fatalf("seed post not visible: %+v (%v)", timeline, err)
	}
}

func TestParseRejectsInconsistentScenarios(t *testing.T) {
	cases := map[string]string{
		"empty roster":  "name: x\n",
		"bad rate":      "roles: {a: 1.5}\nagents: [{id: a}]\n",
		"duplicate id":  "agents: [{id: a}, {id: a}]\n",
		"unknown agent": "agents: [{id: a}]\nevents: [{tick: 0, agent: z, event: hi}]\n",
		"unknown seed":  "agents: [{id: a}]\nseed_posts: [{author: z, content: hi}]\n",
		"not yaml":      "agents: [",
	}
	for name, content := range cases {
		if _, err := Parse([]byte(content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("empty path must fail")
	}
}
