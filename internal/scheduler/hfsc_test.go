package scheduler

import (
	"errors"
	"testing"

	"NetShaper/internal/core/model"
)

func rtCurve(rateBps uint64) ServiceCurve { return ServiceCurve{RateBps: rateBps} }

func newHfsc(t *testing.T, configs []HfscFlowConfig) *HfscScheduler {
	t.Helper()
	s, err := NewHfscScheduler(configs)
	if err != nil {
		t.Fatalf("NewHfscScheduler failed: %v", err)
	}
	return s
}

// hfscPkt routes to a class via the priority-as-flow-id selector.
func hfscPkt(flow model.FlowID, length uint32) model.PacketDescriptor {
	return model.PacketDescriptor{FlowID: flow, LengthBytes: length, Priority: uint8(flow)}
}

func TestHfscConstructorValidation(t *testing.T) {
	valid := HfscFlowConfig{ID: 1, RealTime: rtCurve(1_000_000)}

	if _, err := NewHfscScheduler(nil); err == nil {
		t.Errorf("expected empty configuration to be rejected")
	}
	if _, err := NewHfscScheduler([]HfscFlowConfig{valid, valid}); err == nil {
		t.Errorf("expected duplicate flow id to be rejected")
	}
	if _, err := NewHfscScheduler([]HfscFlowConfig{{ID: 0, RealTime: rtCurve(1)}}); err == nil {
		t.Errorf("expected reserved flow id 0 to be rejected")
	}
	if _, err := NewHfscScheduler([]HfscFlowConfig{{ID: 2, ParentID: 2, RealTime: rtCurve(1)}}); err == nil {
		t.Errorf("expected self-parenting to be rejected")
	}
	if _, err := NewHfscScheduler([]HfscFlowConfig{{ID: 2, ParentID: 9, RealTime: rtCurve(1)}}); err == nil {
		t.Errorf("expected unknown parent to be rejected")
	}
	if _, err := NewHfscScheduler([]HfscFlowConfig{
		{ID: 1, RealTime: rtCurve(1)},
		{ID: 2, ParentID: 1, RealTime: rtCurve(1)},
		{ID: 3, ParentID: 2, RealTime: rtCurve(1)},
	}); err == nil {
		t.Errorf("expected a third hierarchy level to be rejected")
	}
}

func TestHfscEnqueueErrors(t *testing.T) {
	s := newHfsc(t, []HfscFlowConfig{
		{ID: 1, RealTime: rtCurve(1_000_000)},
		{ID: 2, ParentID: 1, RealTime: rtCurve(500_000)},
	})

	if _, err := s.Enqueue(hfscPkt(9, 100)); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("got %v, want ErrUnknownTarget for an unconfigured flow", err)
	}
	if _, err := s.Enqueue(hfscPkt(1, 100)); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("got %v, want ErrUnknownTarget when targeting an inner class", err)
	}
	if _, err := s.Dequeue(); !errors.Is(err, ErrEmptyDequeue) {
		t.Errorf("got %v, want ErrEmptyDequeue", err)
	}
}

func TestHfscSingleFlowRealTimeService(t *testing.T) {
	// 1 Mbps: a 1000-byte packet takes 8000us of virtual service.
	s := newHfsc(t, []HfscFlowConfig{{ID: 1, RealTime: rtCurve(1_000_000)}})

	for i := 0; i < 3; i++ {
		if _, err := s.Enqueue(hfscPkt(1, 1000)); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	wantVFTs := []uint64{8000, 16000, 24000}
	for i, want := range wantVFTs {
		got, err := s.Dequeue()
		if err != nil {
			t.Fatalf("dequeue %d failed: %v", i, err)
		}
		if got.FlowID != 1 {
			t.Errorf("dequeue %d returned flow %d", i, got.FlowID)
		}
		if vt := s.CurrentVirtualTime(); vt != want {
			t.Errorf("virtual time after dequeue %d = %d, want %d", i, vt, want)
		}
	}
	if !s.IsEmpty() {
		t.Errorf("scheduler not empty after draining")
	}
}

func TestHfscRealTimeDelayShiftsFinishTime(t *testing.T) {
	s := newHfsc(t, []HfscFlowConfig{{ID: 1, RealTime: ServiceCurve{RateBps: 1_000_000, DelayUs: 500}}})

	s.Enqueue(hfscPkt(1, 1000))
	if _, err := s.Dequeue(); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if vt := s.CurrentVirtualTime(); vt != 8500 {
		t.Errorf("virtual time = %d, want 8500 (500us delay + 8000us service)", vt)
	}
}

func TestHfscTieBreakByFlowID(t *testing.T) {
	s := newHfsc(t, []HfscFlowConfig{
		{ID: 1, RealTime: rtCurve(1_000_000)},
		{ID: 2, RealTime: rtCurve(1_000_000)},
	})

	// Enqueue in reverse id order; identical VFTs must still serve flow 1
	// first.
	s.Enqueue(hfscPkt(2, 1000))
	s.Enqueue(hfscPkt(1, 1000))

	first, err := s.Dequeue()
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if first.FlowID != 1 {
		t.Errorf("tie went to flow %d, want flow 1", first.FlowID)
	}
}

func TestHfscRtDominatesThenShares(t *testing.T) {
	// Flow 1: RT 2 Mbps + LS 1 Mbps; flow 2: LS 1 Mbps only. With
	// 1000-byte packets the RT curve finishes every 4000us against the LS
	// 8000us, so the service pattern settles into 1,1,2 repeating.
	s := newHfsc(t, []HfscFlowConfig{
		{ID: 1, RealTime: rtCurve(2_000_000), LinkShare: rtCurve(1_000_000)},
		{ID: 2, LinkShare: rtCurve(1_000_000)},
	})

	for i := 0; i < 6; i++ {
		s.Enqueue(hfscPkt(1, 1000))
	}
	for i := 0; i < 3; i++ {
		s.Enqueue(hfscPkt(2, 1000))
	}

	want := []model.FlowID{1, 1, 2, 1, 1, 2, 1, 1, 2}
	var lastVT uint64
	for i, wantFlow := range want {
		got, err := s.Dequeue()
		if err != nil {
			t.Fatalf("dequeue %d failed: %v", i, err)
		}
		if got.FlowID != wantFlow {
			t.Errorf("dequeue %d returned flow %d, want %d", i, got.FlowID, wantFlow)
		}
		if vt := s.CurrentVirtualTime(); vt < lastVT {
			t.Errorf("virtual time went backwards at dequeue %d: %d < %d", i, vt, lastVT)
		} else {
			lastVT = vt
		}
	}
}

func TestHfscUpperLimitPacesRealTime(t *testing.T) {
	// RT at 2 Mbps wants 4000us spacing; UL at 1 Mbps paces every packet
	// after the first to 8000us spacing.
	s := newHfsc(t, []HfscFlowConfig{{
		ID:         1,
		RealTime:   rtCurve(2_000_000),
		UpperLimit: rtCurve(1_000_000),
	}})

	for i := 0; i < 3; i++ {
		s.Enqueue(hfscPkt(1, 1000))
	}

	wantVTs := []uint64{4000, 12000, 20000}
	for i, want := range wantVTs {
		if _, err := s.Dequeue(); err != nil {
			t.Fatalf("dequeue %d failed: %v", i, err)
		}
		if vt := s.CurrentVirtualTime(); vt != want {
			t.Errorf("virtual time after dequeue %d = %d, want %d", i, vt, want)
		}
	}
}

func TestHfscParentDelayConstrainsChildStart(t *testing.T) {
	s := newHfsc(t, []HfscFlowConfig{
		{ID: 10, RealTime: ServiceCurve{RateBps: 1_000_000, DelayUs: 1000}},
		{ID: 1, ParentID: 10, RealTime: rtCurve(2_000_000)},
	})

	s.Enqueue(hfscPkt(1, 1000))
	if _, err := s.Dequeue(); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	// Child service takes 4000us but cannot start before the parent's
	// 1000us delay passes.
	if vt := s.CurrentVirtualTime(); vt != 5000 {
		t.Errorf("virtual time = %d, want 5000", vt)
	}
}

func TestHfscReactivationResumesFromFinishTime(t *testing.T) {
	s := newHfsc(t, []HfscFlowConfig{{ID: 1, RealTime: rtCurve(1_000_000)}})

	s.Enqueue(hfscPkt(1, 1000))
	s.Dequeue()
	if vt := s.CurrentVirtualTime(); vt != 8000 {
		t.Fatalf("virtual time = %d, want 8000", vt)
	}

	// The flow went idle; re-activation bases eligibility on its previous
	// finish time.
	s.Enqueue(hfscPkt(1, 1000))
	s.Dequeue()
	if vt := s.CurrentVirtualTime(); vt != 16000 {
		t.Errorf("virtual time after reactivation = %d, want 16000", vt)
	}
}

func TestHfscNoCurvesNotEligible(t *testing.T) {
	s := newHfsc(t, []HfscFlowConfig{{ID: 1}}) // neither RT nor LS

	if _, err := s.Enqueue(hfscPkt(1, 1000)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if s.IsEmpty() {
		t.Fatalf("scheduler reports empty with a queued packet")
	}
	if _, err := s.Dequeue(); !errors.Is(err, ErrInternalInconsistency) {
		t.Fatalf("got %v, want ErrInternalInconsistency for a queued but ineligible class", err)
	}
}

func TestHfscDeterministicSequence(t *testing.T) {
	build := func() *HfscScheduler {
		return newHfsc(t, []HfscFlowConfig{
			{ID: 1, RealTime: rtCurve(2_000_000), LinkShare: rtCurve(1_000_000)},
			{ID: 2, LinkShare: rtCurve(1_500_000)},
			{ID: 3, RealTime: ServiceCurve{RateBps: 1_000_000, DelayUs: 200}},
		})
	}
	run := func(s *HfscScheduler) []model.FlowID {
		lengths := []uint32{1000, 400, 1500, 200, 1000}
		for _, l := range lengths {
			s.Enqueue(hfscPkt(1, l))
			s.Enqueue(hfscPkt(2, l))
			s.Enqueue(hfscPkt(3, l))
		}
		var order []model.FlowID
		for !s.IsEmpty() {
			got, err := s.Dequeue()
			if err != nil {
				t.Fatalf("dequeue failed: %v", err)
			}
			order = append(order, got.FlowID)
		}
		return order
	}

	first, second := run(build()), run(build())
	if len(first) != 15 || len(second) != 15 {
		t.Fatalf("expected 15 packets per run, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("runs diverged at position %d: %d vs %d", i, first[i], second[i])
		}
	}
}
