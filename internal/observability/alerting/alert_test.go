package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"OpenAgent-Sim/internal/episode"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) Channel() Channel { return "capture" }

func (c *captureNotifier) Notify(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func TestStepObserverThreshold(t *testing.T) {
	capture := &captureNotifier{}
	observe := StepObserver(NewFanout(capture, &LogNotifier{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}), 2)

	observe(&episode.Report{Tick: 1, Agents: []episode.AgentReport{
		{Agent: "a", Outcome: episode.OutcomeTimedOut},
		{Agent: "b", Outcome: episode.OutcomeCompleted},
	}})
	if len(capture.events) != 0 {
		t.Fatalf("below threshold must not alert")
	}

	observe(&episode.Report{Tick: 2, Episode: 1, Agents: []episode.AgentReport{
		{Agent: "a", Outcome: episode.OutcomeTimedOut},
		{Agent: "b", Outcome: episode.OutcomeTimedOut},
		{Agent: "c", Outcome: episode.OutcomeFailed},
	}})
	if len(capture.events) != 1 {
		t.Fatalf("expected one timeout alert, got %d", len(capture.events))
	}
	ev := capture.events[0]
	if ev.Code != CodeAgentTimeouts || ev.Tick != 2 || len(ev.Agents) != 2 || ev.Severity == "" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), Event{Code: CodeAgentFailures, Agents: []string{"x"}}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Code != CodeAgentFailures || len(got.Agents) != 1 {
		t.Fatalf("unexpected payload %+v", got)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	if err := (&WebhookNotifier{URL: failing.URL}).Notify(context.Background(), Event{}); err == nil {
		t.Fatalf("non-2xx must fail")
	}
}

// blockingNotifier 在 release 关闭前阻塞，模拟响应缓慢的 webhook。
type blockingNotifier struct {
	release chan struct{}
	capture captureNotifier
}

func (b *blockingNotifier) Channel() Channel { return "slow" }

func (b *blockingNotifier) Notify(ctx context.Context, e Event) error {
	<-b.release
	return b.capture.Notify(ctx, e)
}

func TestQueueDoesNotBlockTheStep(t *testing.T) {
	slow := &blockingNotifier{release: make(chan struct{})}
	q := NewQueue(NewFanout(slow), 1)
	observe := StepObserver(q, 1)
	report := &episode.Report{Tick: 4, Agents: []episode.AgentReport{{Agent: "a", Outcome: episode.OutcomeFailed}}}

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			observe(report)
		}
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("observer blocked on a slow notifier")
	}

	close(slow.release)
	q.Close()
	slow.capture.mu.Lock()
	delivered := len(slow.capture.events)
	slow.capture.mu.Unlock()
	// 一个事件被投递协程取走，一个在队列中，其余因队列已满被丢弃。
	if delivered < 1 || delivered > 2 {
		t.Fatalf("unexpected delivered count %d", delivered)
	}
	if err := q.Notify(context.Background(), Event{}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("closed queue must refuse events, got %v", err)
	}
}
