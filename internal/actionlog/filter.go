package actionlog

import "strings"

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Filter controls which records are returned when querying a sink.
type Filter struct {
	Agent    string
	Episode  int
	Action   string
	Statuses []Status
	Limit    int
	Offset   int

	hasEpisode bool
}

// QueryOption mutates Filter.
type QueryOption func(*Filter)

// WithAgent keeps only records produced by the given agent.
func WithAgent(agent string) QueryOption {
	return func(f *Filter) {
		f.Agent = strings.TrimSpace(agent)
	}
}

// WithEpisode keeps only records of the given episode index.
func WithEpisode(episode int) QueryOption {
	return func(f *Filter) {
		f.Episode = episode
		f.hasEpisode = true
	}
}

// WithAction keeps only records with the given action name, e.g. "like" or "skipped:timeout".
func WithAction(action string) QueryOption {
	return func(f *Filter) {
		f.Action = strings.TrimSpace(action)
	}
}

// WithStatuses keeps only records in one of the given statuses.
func WithStatuses(statuses ...Status) QueryOption {
	return func(f *Filter) {
		f.Statuses = append(f.Statuses[:0], statuses...)
	}
}

// WithLimit bounds the number of returned records.
func WithLimit(limit int) QueryOption {
	return func(f *Filter) {
		f.Limit = limit
	}
}

// WithOffset skips the first n matching records.
func WithOffset(offset int) QueryOption {
	return func(f *Filter) {
		f.Offset = offset
	}
}

// NewFilter builds a Filter from options and applies defaults.
func NewFilter(opts ...QueryOption) Filter {
	var f Filter
	for _, opt := range opts {
		if opt != nil {
			opt(&f)
		}
	}
	f.applyDefaults()
	return f
}

// HasEpisode reports whether the filter restricts the episode index.
func (f Filter) HasEpisode() bool { return f.hasEpisode }

func (f *Filter) applyDefaults() {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Match reports whether the record satisfies the filter, ignoring Limit and Offset.
func (f Filter) Match(rec Record) bool {
	if f.Agent != "" && rec.Agent != f.Agent {
		return false
	}
	if f.hasEpisode && rec.Episode != f.Episode {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if rec.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// apply selects matching records in log order and pages them.
func (f Filter) apply(records []Record) []Record {
	out := make([]Record, 0)
	skipped := 0
	for _, rec := range records {
		if !f.Match(rec) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if len(out) >= f.Limit {
			break
		}
	}
	return out
}
