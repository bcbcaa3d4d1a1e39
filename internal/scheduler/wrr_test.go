package scheduler

import (
	"errors"
	"testing"

	"NetShaper/internal/core/model"
)

func newWrrScheduler(t *testing.T, weights map[model.QueueID]uint32, order []model.QueueID) *WrrScheduler {
	t.Helper()
	configs := make([]WrrQueueConfig, 0, len(order))
	for _, id := range order {
		configs = append(configs, WrrQueueConfig{ID: id, Weight: weights[id], AQM: wideOpenAqm()})
	}
	s, err := NewWrrScheduler(configs)
	if err != nil {
		t.Fatalf("NewWrrScheduler failed: %v", err)
	}
	return s
}

func TestWrrConstructorValidation(t *testing.T) {
	if _, err := NewWrrScheduler(nil); err == nil {
		t.Errorf("expected empty configuration to be rejected")
	}
	if _, err := NewWrrScheduler([]WrrQueueConfig{{ID: 1, Weight: 0, AQM: wideOpenAqm()}}); err == nil {
		t.Errorf("expected zero weight to be rejected")
	}
	if _, err := NewWrrScheduler([]WrrQueueConfig{
		{ID: 1, Weight: 1, AQM: wideOpenAqm()},
		{ID: 1, Weight: 2, AQM: wideOpenAqm()},
	}); err == nil {
		t.Errorf("expected duplicate queue id to be rejected")
	}
}

func TestWrrUnknownQueue(t *testing.T) {
	s := newWrrScheduler(t, map[model.QueueID]uint32{1: 1}, []model.QueueID{1})
	if _, err := s.Enqueue(pkt(9, 100)); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("got %v, want ErrUnknownTarget", err)
	}
	if _, err := s.Dequeue(); !errors.Is(err, ErrEmptyDequeue) {
		t.Fatalf("got %v, want ErrEmptyDequeue", err)
	}
}

func TestWrrWeightsOneToTwo(t *testing.T) {
	// Scenario: queues A=1 (weight 1) and B=2 (weight 2); 3 packets to A and
	// 6 to B come out 3 and 6, with the 1:2 ratio visible inside each cycle.
	s := newWrrScheduler(t, map[model.QueueID]uint32{1: 1, 2: 2}, []model.QueueID{1, 2})

	for i := 0; i < 3; i++ {
		s.Enqueue(pkt(1, 100))
	}
	for i := 0; i < 6; i++ {
		s.Enqueue(pkt(2, 100))
	}

	var gotA, gotB int
	var order []model.QueueID
	for i := 0; i < 9; i++ {
		got, err := s.Dequeue()
		if err != nil {
			t.Fatalf("dequeue %d failed: %v", i, err)
		}
		id := model.QueueID(got.Priority)
		order = append(order, id)
		switch id {
		case 1:
			gotA++
		case 2:
			gotB++
		}
	}
	if gotA != 3 || gotB != 6 {
		t.Fatalf("served %d from A and %d from B, want 3 and 6", gotA, gotB)
	}

	// First replenishment cycle serves A once and B twice.
	wantPrefix := []model.QueueID{1, 2, 2}
	for i, want := range wantPrefix {
		if order[i] != want {
			t.Errorf("cycle position %d served queue %d, want %d (full order %v)", i, order[i], want, order)
			break
		}
	}

	if !s.IsEmpty() {
		t.Errorf("scheduler not empty after draining")
	}
}

func TestWrrSkipsEmptyQueues(t *testing.T) {
	s := newWrrScheduler(t, map[model.QueueID]uint32{1: 1, 2: 1, 3: 1}, []model.QueueID{1, 2, 3})

	for i := 0; i < 4; i++ {
		s.Enqueue(pkt(3, 100))
	}
	for i := 0; i < 4; i++ {
		got, err := s.Dequeue()
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		if model.QueueID(got.Priority) != 3 {
			t.Fatalf("served queue %d, but only queue 3 has traffic", got.Priority)
		}
	}
}

func TestWrrLongRunProportions(t *testing.T) {
	s := newWrrScheduler(t, map[model.QueueID]uint32{1: 1, 2: 3}, []model.QueueID{1, 2})

	const perQueue = 60
	for i := 0; i < perQueue; i++ {
		s.Enqueue(pkt(1, 100))
		s.Enqueue(pkt(2, 100))
	}

	// Over the first 40 services the 1:3 weights admit 10 from queue 1 and
	// 30 from queue 2, within one packet.
	counts := map[model.QueueID]int{}
	for i := 0; i < 40; i++ {
		got, err := s.Dequeue()
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		counts[model.QueueID(got.Priority)]++
	}
	if diff := counts[2] - 3*counts[1]; diff < -3 || diff > 3 {
		t.Errorf("weight ratio drifted: counts=%v", counts)
	}
}
