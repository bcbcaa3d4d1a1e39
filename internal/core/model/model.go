package model

import (
	"fmt"
	"hash/fnv"
	"net"
	"time"
)

// FiveTuple identifies a flow by the classic 5-tuple of a packet header.
// It is immutable once constructed.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // e.g., TCP, UDP
}

// Key returns a stable string representation of the tuple, suitable as a map
// key. Two tuples compare equal iff their keys are equal.
func (ft FiveTuple) Key() string {
	return fmt.Sprintf("%s:%d-%s:%d-%d", ft.SrcIP, ft.SrcPort, ft.DstIP, ft.DstPort, ft.Protocol)
}

// Hash mixes all five fields into a 64-bit value.
func (ft FiveTuple) Hash() uint64 {
	hasher := fnv.New64a()
	hasher.Write(ft.SrcIP)
	hasher.Write(ft.DstIP)
	hasher.Write([]byte{byte(ft.SrcPort >> 8), byte(ft.SrcPort)})
	hasher.Write([]byte{byte(ft.DstPort >> 8), byte(ft.DstPort)})
	hasher.Write([]byte{ft.Protocol})
	return hasher.Sum64()
}

// Equal reports whether two tuples identify the same flow.
func (ft FiveTuple) Equal(other FiveTuple) bool {
	return ft.SrcIP.Equal(other.SrcIP) &&
		ft.DstIP.Equal(other.DstIP) &&
		ft.SrcPort == other.SrcPort &&
		ft.DstPort == other.DstPort &&
		ft.Protocol == other.Protocol
}

// PacketInfo holds the metadata extracted from a single ingress packet before
// it enters a shaping pipeline.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	Payload   []byte // optional, opaque; moved, never copied
}

// FlowID is an opaque, monotonically assigned flow identifier. Zero is
// reserved and never assigned; an ID is never reused within a session.
type FlowID uint64

// InvalidFlowID is the reserved zero value.
const InvalidFlowID FlowID = 0

// PolicyID identifies a node of the policy tree.
type PolicyID uint64

// NoParentPolicyID is the sentinel parent of root policies.
const NoParentPolicyID PolicyID = 0

// QueueID selects a queue inside a scheduler.
type QueueID uint32

// Conformance is the color a packet carries after metering.
type Conformance uint8

const (
	// ConformanceGreen marks traffic within the committed rate.
	ConformanceGreen Conformance = iota
	// ConformanceYellow marks traffic exceeding CIR but within PIR.
	ConformanceYellow
	// ConformanceRed marks traffic beyond PIR.
	ConformanceRed
)

func (c Conformance) String() string {
	switch c {
	case ConformanceGreen:
		return "GREEN"
	case ConformanceYellow:
		return "YELLOW"
	case ConformanceRed:
		return "RED"
	}
	return fmt.Sprintf("Conformance(%d)", uint8(c))
}

// DropPolicy selects how a flow's queue reacts to congestion.
type DropPolicy uint8

const (
	DropPolicyTailDrop DropPolicy = iota
	DropPolicyRED
	DropPolicyWRED
)

func (d DropPolicy) String() string {
	switch d {
	case DropPolicyTailDrop:
		return "tail_drop"
	case DropPolicyRED:
		return "red"
	case DropPolicyWRED:
		return "wred"
	}
	return fmt.Sprintf("DropPolicy(%d)", uint8(d))
}

// SLAStatus summarizes whether a flow has stayed within its policy.
type SLAStatus uint8

const (
	SLAUnknown SLAStatus = iota
	SLAConforming
	SLANonConforming
)

func (s SLAStatus) String() string {
	switch s {
	case SLAConforming:
		return "conforming"
	case SLANonConforming:
		return "non_conforming"
	}
	return "unknown"
}

// PacketDescriptor is the unit moved through the queueing fabric. The shaper
// writes FlowID, Priority and Conformance; schedulers interpret Priority as a
// priority level, queue selector or flow selector depending on discipline.
type PacketDescriptor struct {
	FlowID      FlowID
	LengthBytes uint32
	Priority    uint8
	Conformance Conformance
	Payload     []byte // opaque, owned by the descriptor
}

// FlowStatistics are the monotonic per-flow counters.
type FlowStatistics struct {
	BytesProcessed   uint64
	PacketsProcessed uint64
	BytesDropped     uint64
	PacketsDropped   uint64
	FirstPacketTime  time.Time
	LastPacketTime   time.Time
}

// PolicyStatistics are the monotonic per-policy counters.
type PolicyStatistics struct {
	BytesProcessed   uint64
	PacketsProcessed uint64
	BytesDropped     uint64
	PacketsDropped   uint64
}

// FlowContext is the per-flow state created by the classifier on first sight
// of a 5-tuple and mutated by the shaping pipeline afterwards.
type FlowContext struct {
	FlowID   FlowID
	PolicyID PolicyID

	// Rate observation state, refreshed once per engine stats period.
	CurrentRateBps           uint64
	AccumulatedBytesInPeriod uint64

	QueueID    QueueID
	DropPolicy DropPolicy

	Stats     FlowStatistics
	SLAStatus SLAStatus

	LastProcessingTime time.Time
}

// NewFlowContext creates a context for a freshly classified flow.
func NewFlowContext(id FlowID, policyID PolicyID, queueID QueueID, dropPolicy DropPolicy) *FlowContext {
	return &FlowContext{
		FlowID:     id,
		PolicyID:   policyID,
		QueueID:    queueID,
		DropPolicy: dropPolicy,
		SLAStatus:  SLAUnknown,
	}
}
