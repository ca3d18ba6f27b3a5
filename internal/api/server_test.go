package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/episode"
	"OpenAgent-Sim/internal/social"
	"OpenAgent-Sim/internal/social/memory"
)

func newTestServer(t *testing.T) (*Server, *actionlog.MemorySink) {
	t.Helper()
	log := actionlog.NewMemorySink()
	ctx := context.Background()
	for _, rec := range []actionlog.Record{
		{ID: "1", Episode: 0, Agent: "alice", Action: "post", Status: actionlog.StatusOK},
		{ID: "2", Episode: 0, Agent: "bob", Action: "skipped:duplicate", Status: actionlog.StatusSkipped},
		{ID: "3", Episode: 1, Agent: "alice", Action: "like", Status: actionlog.StatusOK},
		{ID: "4", Episode: 1, Agent: "alice", Action: "follow", Status: actionlog.StatusError},
	} {
		_ = log.Write(ctx, rec)
	}
	catalog, err := social.NewCatalog(memory.New())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := episode.NewScheduler(episode.NewClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), time.Hour), log,
		episode.WithStepsPerEpisode(2), episode.WithLogger(quiet))
	scheduler.Clock().Advance()
	scheduler.Clock().Advance()
	scheduler.Clock().Advance()
	return NewServer(":0", log, catalog, scheduler, WithLogger(quiet)), log
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRecordsEndpointFilters(t *testing.T) {
	server, _ := newTestServer(t)
	h := server.Handler()

	rec := get(t, h, "/api/v1/records?agent=alice&status=ok")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var got []actionlog.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected records %+v", got)
	}

	rec = get(t, h, "/api/v1/records?episode=1&limit=1&offset=1")
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("paging failed: %+v", got)
	}

	for _, bad := range []string{"?episode=x", "?limit=0", "?status=done", "?offset=-1"} {
		if rec := get(t, h, "/api/v1/records"+bad); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", bad, rec.Code)
		}
	}
}

func TestEffectsClockAndCatalog(t *testing.T) {
	server, _ := newTestServer(t)
	h := server.Handler()

	var effects struct {
		Effects []actionlog.EpisodeEffects `json:"effects"`
		Summary actionlog.Summary          `json:"summary"`
	}
	if err := json.Unmarshal(get(t, h, "/api/v1/effects?agent=alice").Body.Bytes(), &effects); err != nil {
		t.Fatalf("decode effects: %v", err)
	}
	if len(effects.Effects) != 2 || effects.Summary.Total != 3 {
		t.Fatalf("unexpected effects %+v", effects)
	}

	var clock clockResponse
	if err := json.Unmarshal(get(t, h, "/api/v1/clock").Body.Bytes(), &clock); err != nil {
		t.Fatalf("decode clock: %v", err)
	}
	if clock.Tick != 3 || clock.Episode != 1 || clock.Now.Hour() != 11 {
		t.Fatalf("unexpected clock %+v", clock)
	}

	var descs []struct {
		Name       string `json:"name"`
		Parameters []struct {
			Name      string `json:"name"`
			Kind      string `json:"kind"`
			Reference bool   `json:"reference"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(get(t, h, "/api/v1/catalog").Body.Bytes(), &descs); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(descs) != 7 || descs[0].Name != "post" || descs[0].Parameters[1].Kind != "comma-separated list of string" {
		t.Fatalf("unexpected catalog %+v", descs)
	}
	if descs[1].Name != "reply" || !descs[1].Parameters[0].Reference {
		t.Fatalf("reply must expose its reference parameter: %+v", descs[1])
	}

	if rec := get(t, h, "/healthz"); rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %q", rec.Body.String())
	}
	if rec := get(t, h, "/metrics"); !strings.Contains(rec.Body.String(), "sim_http_requests_total") {
		t.Fatalf("metrics should include http counters")
	}
}

func TestEndpointsWithoutDependencies(t *testing.T) {
	h := NewServer(":0", nil, nil, nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))).Handler()
	for _, path := range []string{"/api/v1/records", "/api/v1/effects", "/api/v1/clock", "/api/v1/catalog"} {
		if rec := get(t, h, path); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/records", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
