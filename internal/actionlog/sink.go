package actionlog

import (
	"context"
	"sync"
)

// Sink persists records handed over by the Writer. Write is only ever called from the
// Writer's single goroutine, so implementations need no locking for writes.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Reader is implemented by sinks that can answer queries about past records.
type Reader interface {
	Query(ctx context.Context, filter Filter) ([]Record, error)
}

// MemorySink keeps records in memory. It is used by tests, by the status API
// during local runs, and as a Recorder when no Writer is needed.
type MemorySink struct {
	mu        sync.RWMutex
	records   []Record
	retention int
}

// MemoryOption configures a MemorySink.
type MemoryOption func(*MemorySink)

// WithRetention keeps only the most recent n records. n <= 0 keeps everything.
func WithRetention(n int) MemoryOption {
	return func(m *MemorySink) {
		m.retention = n
	}
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink(opts ...MemoryOption) *MemorySink {
	m := &MemorySink{}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Write implements Sink.
func (m *MemorySink) Write(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if m.retention > 0 && len(m.records) > m.retention {
		// Copy so the backing array of dropped records can be collected.
		kept := make([]Record, m.retention, m.retention+m.retention/4+1)
		copy(kept, m.records[len(m.records)-m.retention:])
		m.records = kept
	}
	return nil
}

// Append implements Recorder.
func (m *MemorySink) Append(ctx context.Context, rec Record) error {
	return m.Write(ctx, rec)
}

// Records returns a copy of all records in log order.
func (m *MemorySink) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.records...)
}

// Query implements Reader.
func (m *MemorySink) Query(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter.apply(m.records), nil
}

// Close implements Sink.
func (m *MemorySink) Close() error { return nil }

// QueryAll pages through the reader until every matching record is returned.
func QueryAll(ctx context.Context, r Reader, opts ...QueryOption) ([]Record, error) {
	filter := NewFilter(append(opts, WithLimit(maxQueryLimit))...)
	var out []Record
	for {
		page, err := r.Query(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			return out, nil
		}
		filter.Offset += len(page)
	}
}
