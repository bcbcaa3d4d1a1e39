package export

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	core "NetShaper/internal/core/model"
	"NetShaper/internal/model"
)

func TestGobWriterRoundTrip(t *testing.T) {
	root := t.TempDir()
	w := NewGobWriter(root, time.Minute)

	if got := w.GetInterval(); got != time.Minute {
		t.Errorf("GetInterval = %s, want 1m", got)
	}

	snap := &model.StatsSnapshot{
		Timestamp: time.Now(),
		Policies: []model.PolicyRow{
			{Interface: "eth0", PolicyID: 1, Name: "gold",
				Stats: core.PolicyStatistics{BytesProcessed: 1234, PacketsProcessed: 5}},
		},
		Flows: []model.FlowRow{
			{Interface: "eth0", FlowID: 7, PolicyID: 1, SLAStatus: core.SLAConforming},
		},
		Queues: []model.QueueRow{
			{Interface: "eth0", Selector: 7, CurrentBytes: 100, CurrentPackets: 1},
		},
	}

	const timestamp = "2026-01-02_15-04-05"
	if err := w.Write(snap, timestamp); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	dir := filepath.Join(root, timestamp)

	var policies []model.PolicyRow
	readGob(t, filepath.Join(dir, "policies.dat"), &policies)
	if len(policies) != 1 || policies[0].Name != "gold" || policies[0].Stats.BytesProcessed != 1234 {
		t.Errorf("policies round-trip = %+v", policies)
	}

	var flows []model.FlowRow
	readGob(t, filepath.Join(dir, "flows.dat"), &flows)
	if len(flows) != 1 || flows[0].FlowID != 7 || flows[0].SLAStatus != core.SLAConforming {
		t.Errorf("flows round-trip = %+v", flows)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	if err != nil {
		t.Fatalf("summary.json missing: %v", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("summary.json malformed: %v", err)
	}
	if summary.TotalPolicies != 1 || summary.TotalFlows != 1 || summary.TotalQueues != 1 {
		t.Errorf("summary = %+v, want 1/1/1", summary)
	}
	if summary.Timestamp != timestamp {
		t.Errorf("summary timestamp = %s, want %s", summary.Timestamp, timestamp)
	}
}

func readGob(t *testing.T, path string, out interface{}) {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("snapshot file %s missing: %v", path, err)
	}
	defer file.Close()
	if err := gob.NewDecoder(file).Decode(out); err != nil {
		t.Fatalf("failed to decode %s: %v", path, err)
	}
}
