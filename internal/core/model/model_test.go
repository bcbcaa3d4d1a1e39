package model

import (
	"net"
	"testing"
)

func sampleTuple() FiveTuple {
	return FiveTuple{
		SrcIP:    net.ParseIP("192.168.0.1"),
		DstIP:    net.ParseIP("10.0.0.1"),
		SrcPort:  1234,
		DstPort:  80,
		Protocol: 6,
	}
}

func TestFiveTupleEqualityAndKey(t *testing.T) {
	a := sampleTuple()
	b := sampleTuple()
	if !a.Equal(b) {
		t.Fatalf("identical tuples compare unequal")
	}
	if a.Key() != b.Key() {
		t.Fatalf("identical tuples produce different keys: %q vs %q", a.Key(), b.Key())
	}
	if a.Hash() != b.Hash() {
		t.Fatalf("identical tuples produce different hashes")
	}

	c := sampleTuple()
	c.DstPort = 443
	if a.Equal(c) {
		t.Errorf("tuples differing in dst port compare equal")
	}
	if a.Key() == c.Key() {
		t.Errorf("tuples differing in dst port share a key")
	}
}

func TestFiveTupleHashMixesEveryField(t *testing.T) {
	base := sampleTuple()
	variants := []func(ft *FiveTuple){
		func(ft *FiveTuple) { ft.SrcIP = net.ParseIP("192.168.0.2") },
		func(ft *FiveTuple) { ft.DstIP = net.ParseIP("10.0.0.2") },
		func(ft *FiveTuple) { ft.SrcPort = 1235 },
		func(ft *FiveTuple) { ft.DstPort = 81 },
		func(ft *FiveTuple) { ft.Protocol = 17 },
	}
	for i, mutate := range variants {
		v := sampleTuple()
		mutate(&v)
		if v.Hash() == base.Hash() {
			t.Errorf("variant %d did not change the hash", i)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	if ConformanceGreen.String() != "GREEN" ||
		ConformanceYellow.String() != "YELLOW" ||
		ConformanceRed.String() != "RED" {
		t.Errorf("conformance strings wrong")
	}
	if SLAUnknown.String() != "unknown" || SLANonConforming.String() != "non_conforming" {
		t.Errorf("sla strings wrong")
	}
	if DropPolicyTailDrop.String() != "tail_drop" {
		t.Errorf("drop policy strings wrong")
	}
}

func TestNewFlowContextDefaults(t *testing.T) {
	fc := NewFlowContext(5, 2, 3, DropPolicyRED)
	if fc.FlowID != 5 || fc.PolicyID != 2 || fc.QueueID != 3 {
		t.Errorf("context ids = %+v", fc)
	}
	if fc.DropPolicy != DropPolicyRED {
		t.Errorf("drop policy = %s, want red", fc.DropPolicy)
	}
	if fc.SLAStatus != SLAUnknown {
		t.Errorf("fresh context sla = %s, want unknown", fc.SLAStatus)
	}
}
