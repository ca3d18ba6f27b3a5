package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/episode"
)

func TestObserveRecordAndStep(t *testing.T) {
	before := testutil.ToFloat64(actionRecords.WithLabelValues("skipped", "skipped:timeout"))
	ObserveRecord(actionlog.Record{Action: "skipped:timeout", Status: actionlog.StatusSkipped})
	ObserveRecord(actionlog.Record{Action: "skipped:timeout", Status: actionlog.StatusSkipped})
	if got := testutil.ToFloat64(actionRecords.WithLabelValues("skipped", "skipped:timeout")); got != before+2 {
		t.Fatalf("expected two more skipped records, got %v", got-before)
	}

	ObserveStep(&episode.Report{
		Tick:     4,
		Active:   []string{"a", "b"},
		Agents:   []episode.AgentReport{{Agent: "a", Outcome: episode.OutcomeCompleted}, {Agent: "b", Outcome: episode.OutcomeTimedOut}},
		Duration: 200 * time.Millisecond,
		Advanced: true,
	})
	if testutil.ToFloat64(activeAgents) != 2 || testutil.ToFloat64(simTick) != 5 {
		t.Fatalf("gauges not updated")
	}
	if testutil.ToFloat64(agentOutcomes.WithLabelValues("timed_out")) < 1 {
		t.Fatalf("timeout outcome not counted")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveHTTPRequest("/api/v1/records", "GET", 200, 10*time.Millisecond)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), `sim_http_requests_total{code="200",handler="/api/v1/records",method="GET"}`) {
		t.Fatalf("http metric missing from exposition:\n%s", body)
	}
}
