package shaping

import (
	"fmt"
	"time"

	"NetShaper/internal/core/model"
)

// SchedulingAlgorithm names the discipline a policy's traffic is scheduled
// under.
type SchedulingAlgorithm uint8

const (
	AlgorithmWFQ SchedulingAlgorithm = iota
	AlgorithmWRR
	AlgorithmStrictPriority
	AlgorithmDRR
	AlgorithmHFSC
)

func (a SchedulingAlgorithm) String() string {
	switch a {
	case AlgorithmWFQ:
		return "wfq"
	case AlgorithmWRR:
		return "wrr"
	case AlgorithmStrictPriority:
		return "strict_priority"
	case AlgorithmDRR:
		return "drr"
	case AlgorithmHFSC:
		return "hfsc"
	}
	return fmt.Sprintf("SchedulingAlgorithm(%d)", uint8(a))
}

// ParseAlgorithm maps a configuration string onto a SchedulingAlgorithm.
func ParseAlgorithm(s string) (SchedulingAlgorithm, error) {
	switch s {
	case "wfq":
		return AlgorithmWFQ, nil
	case "wrr":
		return AlgorithmWRR, nil
	case "strict_priority":
		return AlgorithmStrictPriority, nil
	case "drr":
		return AlgorithmDRR, nil
	case "hfsc":
		return AlgorithmHFSC, nil
	}
	return 0, fmt.Errorf("unknown scheduling algorithm %q", s)
}

// ConformanceTarget is the output mapping one conformance color resolves to.
type ConformanceTarget struct {
	Priority uint8
	QueueID  model.QueueID
}

// ShapingPolicy is one node of the policy tree: identity, the dual-rate
// metering configuration, the scheduling descriptor, and the per-color output
// map applied to descriptors after metering.
type ShapingPolicy struct {
	ID       model.PolicyID
	ParentID model.PolicyID // model.NoParentPolicyID for roots
	Name     string
	Children []model.PolicyID

	// Rate limiting parameters.
	CommittedRateBps    uint64 // CIR
	PeakRateBps         uint64 // PIR, 0 if unused
	CommittedBurstBytes uint64 // CBS
	ExcessBurstBytes    uint64 // EBS

	// Scheduling parameters.
	Algorithm     SchedulingAlgorithm
	Weight        uint32
	PriorityLevel uint8

	// Meter state.
	CIRBucket *TokenBucket
	PIRBucket *TokenBucket

	// Conformance-to-output map.
	DropOnRed bool
	Green     ConformanceTarget
	Yellow    ConformanceTarget
	Red       ConformanceTarget

	Stats       model.PolicyStatistics
	LastUpdated time.Time
}

// NewShapingPolicy builds a policy with both meter buckets sized from its
// burst parameters. The peak rate, when used, must be at least the committed
// rate.
func NewShapingPolicy(id, parentID model.PolicyID, name string,
	cirBps, pirBps, cbsBytes, ebsBytes uint64,
	algorithm SchedulingAlgorithm, weight uint32, priorityLevel uint8) (*ShapingPolicy, error) {

	if id == model.NoParentPolicyID {
		return nil, fmt.Errorf("policy id %d is reserved", id)
	}
	if pirBps > 0 && pirBps < cirBps {
		return nil, fmt.Errorf("policy %d: PIR %d bps below CIR %d bps", id, pirBps, cirBps)
	}

	return &ShapingPolicy{
		ID:                  id,
		ParentID:            parentID,
		Name:                name,
		CommittedRateBps:    cirBps,
		PeakRateBps:         pirBps,
		CommittedBurstBytes: cbsBytes,
		ExcessBurstBytes:    ebsBytes,
		Algorithm:           algorithm,
		Weight:              weight,
		PriorityLevel:       priorityLevel,
		CIRBucket:           NewTokenBucket(cirBps, cbsBytes),
		PIRBucket:           NewTokenBucket(pirBps, ebsBytes),
		LastUpdated:         time.Now(),
	}, nil
}

// Meter runs the two-rate three-color marker over one packet, debiting the
// policy's buckets. GREEN packets also debit the PIR bucket best-effort; a
// failed PIR debit does not change the color.
func (p *ShapingPolicy) Meter(lengthBytes uint32) model.Conformance {
	n := uint64(lengthBytes)
	if p.CIRBucket.Consume(n) {
		p.PIRBucket.Consume(n)
		return model.ConformanceGreen
	}
	if p.PIRBucket.Consume(n) {
		return model.ConformanceYellow
	}
	return model.ConformanceRed
}

// TargetFor returns the output mapping for a conformance color.
func (p *ShapingPolicy) TargetFor(c model.Conformance) ConformanceTarget {
	switch c {
	case model.ConformanceGreen:
		return p.Green
	case model.ConformanceYellow:
		return p.Yellow
	default:
		return p.Red
	}
}

// IsRoot reports whether the policy sits at the top of the hierarchy.
func (p *ShapingPolicy) IsRoot() bool {
	return p.ParentID == model.NoParentPolicyID
}
