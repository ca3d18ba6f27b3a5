package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCatalogCommandPrintsGrammar(t *testing.T) {
	out := execute(t, "catalog")
	for _, want := range []string{"name: value", "reply", "target_id: <string> (required, post id)", "media: <comma-separated list of string> (optional)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("catalog output missing %q:\n%s", want, out)
		}
	}
}

func TestEffectsCommandReadsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.jsonl")
	sink, err := actionlog.NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	ctx := context.Background()
	for _, rec := range []actionlog.Record{
		{ID: "1", Agent: "alice", Episode: 0, Tick: 0, Action: "post", Status: actionlog.StatusOK, Arguments: map[string]any{"status": "hi"}},
		{ID: "2", Agent: "alice", Episode: 0, Tick: 1, Action: "skipped:duplicate", Status: actionlog.StatusSkipped},
		{ID: "3", Agent: "bob", Episode: 0, Tick: 1, Action: "like", Status: actionlog.StatusOK},
	} {
		if err := sink.Write(ctx, rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = sink.Close()

	out := execute(t, "effects", path, "--agent", "alice", "--episode", "0")
	if !strings.Contains(out, "alice episode 0") || !strings.Contains(out, `post {"status":"hi"}`) {
		t.Fatalf("unexpected effects output:\n%s", out)
	}
	if strings.Contains(out, "bob") || !strings.Contains(out, "total=2 ok=1") {
		t.Fatalf("filter not applied:\n%s", out)
	}
}

func closeSinks(sinks []actionlog.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

func TestOpenSinksKeepsBoundedMemoryOnlyAsReader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sinks, reader, err := openSinks(ctx, config.ActionLogConfig{
		File:            filepath.Join(dir, "actions.jsonl"),
		Reader:          "memory",
		MemoryRetention: 2,
	})
	if err != nil {
		t.Fatalf("open sinks: %v", err)
	}
	defer closeSinks(sinks)
	mem, ok := reader.(*actionlog.MemorySink)
	if !ok || len(sinks) != 2 {
		t.Fatalf("expected file + memory sinks, got %d sinks and reader %T", len(sinks), reader)
	}
	for i := 0; i < 5; i++ {
		_ = mem.Write(ctx, actionlog.Record{ID: string(rune('a' + i))})
	}
	if got := mem.Records(); len(got) != 2 || got[0].ID != "d" || got[1].ID != "e" {
		t.Fatalf("memory reader must keep only the latest records: %+v", got)
	}
}

func TestOpenSinksUsesSQLReaderWithoutMemoryCopy(t *testing.T) {
	dir := t.TempDir()
	sinks, reader, err := openSinks(context.Background(), config.ActionLogConfig{
		Reader: "sql",
		SQL:    config.SQLConfig{Driver: "sqlite", DSN: "file:" + filepath.Join(dir, "actions.db")},
	})
	if err != nil {
		t.Fatalf("open sinks: %v", err)
	}
	defer closeSinks(sinks)
	if _, ok := reader.(*actionlog.SQLSink); !ok {
		t.Fatalf("expected SQL reader, got %T", reader)
	}
	for _, s := range sinks {
		if _, ok := s.(*actionlog.MemorySink); ok {
			t.Fatalf("no in-memory copy expected when SQL serves queries")
		}
	}
}
