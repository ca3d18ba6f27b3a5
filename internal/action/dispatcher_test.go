package action

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"OpenAgent-Sim/internal/actionlog"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []actionlog.Record
}

func (c *captureRecorder) Append(_ context.Context, rec actionlog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *captureRecorder) all() []actionlog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]actionlog.Record(nil), c.records...)
}

func newTestDispatcher(t *testing.T, handler Handler) (*Dispatcher, *captureRecorder, Descriptor) {
	t.Helper()
	catalog := NewCatalog()
	desc := likeDescriptor()
	catalog.MustRegister(desc, handler)
	rec := &captureRecorder{}
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return NewDispatcher(catalog, rec, WithClock(func() time.Time { return fixed })), rec, desc
}

func TestDispatcherInvokeSuccessWritesOneRecord(t *testing.T) {
	var gotAccount string
	d, rec, desc := newTestDispatcher(t, func(_ context.Context, inv Invocation, args Arguments) (any, error) {
		gotAccount = inv.Account
		return map[string]string{"liked": args.String("target_id")}, nil
	})

	inv := Invocation{Agent: "alice", Account: "@alice", Episode: 2, Tick: 7}
	result := d.Invoke(context.Background(), inv, desc, Arguments{"target_id": "42"})
	if !result.OK() {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotAccount != "@alice" {
		t.Fatalf("handler saw account %q", gotAccount)
	}

	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	r := records[0]
	if r.Status != actionlog.StatusOK || r.Action != "like" || r.Agent != "alice" || r.Episode != 2 || r.Tick != 7 {
		t.Fatalf("unexpected record: %+v", r)
	}
	var payload map[string]string
	if err := json.Unmarshal(r.Result, &payload); err != nil || payload["liked"] != "42" {
		t.Fatalf("unexpected result payload %s (%v)", r.Result, err)
	}
}

func TestDispatcherAdapterErrorBecomesResult(t *testing.T) {
	d, rec, desc := newTestDispatcher(t, func(context.Context, Invocation, Arguments) (any, error) {
		return nil, errors.New("status 503 from upstream")
	})

	result := d.Invoke(context.Background(), Invocation{Agent: "bob"}, desc, Arguments{"target_id": "1"})
	if result.OK() || !strings.Contains(result.Message, "503") {
		t.Fatalf("expected error result, got %+v", result)
	}
	records := rec.all()
	if len(records) != 1 || records[0].Status != actionlog.StatusError || records[0].Error == "" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d, rec, desc := newTestDispatcher(t, func(context.Context, Invocation, Arguments) (any, error) {
		panic("nil map write")
	})

	result := d.Invoke(context.Background(), Invocation{Agent: "carol"}, desc, Arguments{"target_id": "1"})
	if result.OK() || !strings.Contains(result.Message, "nil map write") {
		t.Fatalf("panic should become an error result, got %+v", result)
	}
	if len(rec.all()) != 1 {
		t.Fatalf("panic must still produce one record")
	}
}

func TestDispatcherRevalidatesArguments(t *testing.T) {
	called := false
	d, rec, desc := newTestDispatcher(t, func(context.Context, Invocation, Arguments) (any, error) {
		called = true
		return nil, nil
	})

	result := d.Invoke(context.Background(), Invocation{Agent: "dave"}, desc, Arguments{"target_id": "1", "extra": "x"})
	if result.OK() || called {
		t.Fatalf("invalid arguments must not reach the handler")
	}
	if len(rec.all()) != 1 {
		t.Fatalf("rejected attempt must still produce one record")
	}
}

func TestDispatcherUnknownAction(t *testing.T) {
	d, rec, _ := newTestDispatcher(t, noop)
	result := d.Invoke(context.Background(), Invocation{Agent: "erin"}, Define("dance", "").Descriptor(), Arguments{})
	if result.OK() {
		t.Fatalf("unknown action must fail")
	}
	records := rec.all()
	if len(records) != 1 || records[0].Action != "dance" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestDispatcherRecordsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d, _, desc := newTestDispatcher(t, func(ctx context.Context, _ Invocation, _ Arguments) (any, error) {
		cancel()
		return nil, ctx.Err()
	})

	var seenErr error
	d.recorder = actionlog.RecorderFunc(func(ctx context.Context, _ actionlog.Record) error {
		seenErr = ctx.Err()
		return nil
	})
	d.Invoke(ctx, Invocation{Agent: "frank"}, desc, Arguments{"target_id": "9"})
	if seenErr != nil {
		t.Fatalf("record context must not be cancelled: %v", seenErr)
	}
}

func TestDispatcherSkipsHandlerWhenContextDone(t *testing.T) {
	calls := 0
	d, rec, desc := newTestDispatcher(t, func(context.Context, Invocation, Arguments) (any, error) {
		calls++
		return "liked", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Invoke(ctx, Invocation{Agent: "gina"}, desc, Arguments{"target_id": "3"})
	if result.OK() || calls != 0 {
		t.Fatalf("handler must not run after cancellation: calls=%d result=%+v", calls, result)
	}
	records := rec.all()
	if len(records) != 1 || records[0].Status != actionlog.StatusError {
		t.Fatalf("expected one error record, got %+v", records)
	}
}
