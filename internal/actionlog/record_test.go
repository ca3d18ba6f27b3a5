package actionlog

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRecordAlwaysCarriesSimTime(t *testing.T) {
	encoded, err := json.Marshal(Record{ID: "r1", Action: "post", Status: StatusOK})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"sim_time":"0001-01-01T00:00:00Z"`) {
		t.Fatalf("sim_time must always be encoded: %s", encoded)
	}

	sim := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	encoded, _ = json.Marshal(Record{ID: "r2", SimTime: sim})
	var back Record
	if err := json.Unmarshal(encoded, &back); err != nil || !back.SimTime.Equal(sim) {
		t.Fatalf("sim_time lost: %s (%v)", encoded, err)
	}
}
