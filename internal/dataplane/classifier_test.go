package dataplane

import (
	"net"
	"sync"
	"testing"

	"NetShaper/internal/core/model"
)

func tuple(srcPort uint16, proto uint8) model.FiveTuple {
	return model.FiveTuple{
		SrcIP:    net.ParseIP("192.168.0.1"),
		DstIP:    net.ParseIP("8.8.8.8"),
		SrcPort:  srcPort,
		DstPort:  53,
		Protocol: proto,
	}
}

func TestClassifierAllocatesMonotonically(t *testing.T) {
	c := NewFlowClassifier(NewFlowTable(), 1)

	first := c.GetOrCreate(tuple(1000, 17))
	second := c.GetOrCreate(tuple(1001, 17))
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
	if first == model.InvalidFlowID || second == model.InvalidFlowID {
		t.Fatalf("flow id 0 is reserved and must never be allocated")
	}
}

func TestClassifierIdempotent(t *testing.T) {
	c := NewFlowClassifier(NewFlowTable(), 1)

	a := c.GetOrCreate(tuple(2000, 6))
	b := c.GetOrCreate(tuple(2000, 6))
	if a != b {
		t.Fatalf("same tuple returned different ids: %d vs %d", a, b)
	}
	if c.Len() != 1 {
		t.Fatalf("expected one interned tuple, got %d", c.Len())
	}
}

func TestClassifierInstallsDefaultContext(t *testing.T) {
	table := NewFlowTable()
	c := NewFlowClassifier(table, 7)

	id := c.GetOrCreate(tuple(3000, 6))
	fc, ok := table.Get(id)
	if !ok {
		t.Fatalf("flow context was not published")
	}
	if fc.PolicyID != 7 {
		t.Errorf("policy id = %d, want default 7", fc.PolicyID)
	}
	if fc.DropPolicy != model.DropPolicyTailDrop {
		t.Errorf("drop policy = %s, want tail_drop", fc.DropPolicy)
	}
	if fc.SLAStatus != model.SLAUnknown {
		t.Errorf("sla status = %s, want unknown", fc.SLAStatus)
	}
}

func TestClassifierConcurrentAllocation(t *testing.T) {
	const (
		goroutines      = 16
		tuplesPerWorker = 200
	)
	table := NewFlowTable()
	c := NewFlowClassifier(table, 1)

	var wg sync.WaitGroup
	results := make([][]model.FlowID, goroutines)
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			ids := make([]model.FlowID, tuplesPerWorker)
			for i := 0; i < tuplesPerWorker; i++ {
				// All workers race on the same tuple set.
				ids[i] = c.GetOrCreate(tuple(uint16(i), 17))
			}
			results[g] = ids
		}(g)
	}
	wg.Wait()

	// Exactly one id per unique tuple, and every worker saw the same
	// mapping.
	if c.Len() != tuplesPerWorker {
		t.Fatalf("interned %d tuples, want %d", c.Len(), tuplesPerWorker)
	}
	if table.Len() != tuplesPerWorker {
		t.Fatalf("flow table holds %d contexts, want %d", table.Len(), tuplesPerWorker)
	}
	for g := 1; g < goroutines; g++ {
		for i := 0; i < tuplesPerWorker; i++ {
			if results[g][i] != results[0][i] {
				t.Fatalf("worker %d saw id %d for tuple %d, worker 0 saw %d",
					g, results[g][i], i, results[0][i])
			}
		}
	}
}

func TestFlowTableUpdateAndSnapshot(t *testing.T) {
	table := NewFlowTable()
	c := NewFlowClassifier(table, 1)
	id := c.GetOrCreate(tuple(4000, 6))

	if ok := table.Update(id, func(fc *model.FlowContext) {
		fc.Stats.PacketsProcessed = 5
	}); !ok {
		t.Fatalf("Update reported missing flow")
	}
	if ok := table.Update(999, func(fc *model.FlowContext) {}); ok {
		t.Fatalf("Update on unknown flow must report false")
	}

	snap := table.Snapshot()
	if len(snap) != 1 || snap[0].Stats.PacketsProcessed != 5 {
		t.Fatalf("snapshot = %+v, want one flow with 5 packets", snap)
	}

	// The snapshot is a copy: mutating it must not touch the table.
	snap[0].Stats.PacketsProcessed = 99
	fc, _ := table.Get(id)
	if fc.Stats.PacketsProcessed != 5 {
		t.Errorf("snapshot mutation leaked into the table")
	}
}
