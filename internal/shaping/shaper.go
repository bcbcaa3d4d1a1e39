package shaping

import (
	"time"

	"NetShaper/internal/core/model"
	"NetShaper/internal/dataplane"
)

// TrafficShaper applies a flow's bound policy to each packet: classify,
// meter, mark, and map the conformance color onto the descriptor's priority
// and the flow context's target queue. Meter state lives inside the policy tree and is mutated
// through its Modify discipline only.
type TrafficShaper struct {
	classifier *dataplane.FlowClassifier
	tree       *PolicyTree
}

// NewTrafficShaper creates a shaper over the given classifier and tree.
func NewTrafficShaper(classifier *dataplane.FlowClassifier, tree *PolicyTree) *TrafficShaper {
	return &TrafficShaper{classifier: classifier, tree: tree}
}

// Process classifies the packet, meters it against its flow's policy and
// writes flow id, conformance and mapped priority onto the descriptor. It
// returns false when the packet must be dropped instead of enqueued: either
// the policy said drop-on-red and the verdict was RED, or the flow's bound
// policy is missing, in which case the packet is marked RED and dropped.
func (s *TrafficShaper) Process(desc *model.PacketDescriptor, ft model.FiveTuple) bool {
	id := s.classifier.GetOrCreate(ft)
	desc.FlowID = id

	table := s.classifier.Table()
	fc, ok := table.Get(id)
	if !ok {
		// The classifier always installs a context; a missing one means the
		// table was swapped out from under us.
		desc.Conformance = model.ConformanceRed
		return false
	}

	var (
		color model.Conformance
		drop  bool
	)
	err := s.tree.Modify(fc.PolicyID, func(p *ShapingPolicy) error {
		color = p.Meter(desc.LengthBytes)
		desc.Conformance = color
		drop = color == model.ConformanceRed && p.DropOnRed

		target := p.TargetFor(color)
		if !drop {
			desc.Priority = target.Priority
		}

		if drop {
			p.Stats.BytesDropped += uint64(desc.LengthBytes)
			p.Stats.PacketsDropped++
		} else {
			p.Stats.BytesProcessed += uint64(desc.LengthBytes)
			p.Stats.PacketsProcessed++
		}
		return nil
	})
	if err != nil {
		// PolicyMissing: surfaced by marking RED and dropping, never as an
		// error to the caller.
		desc.Conformance = model.ConformanceRed
		s.recordFlow(table, id, desc, true, model.QueueID(0), false)
		return false
	}

	target := model.QueueID(0)
	if p, ok := s.tree.Lookup(fc.PolicyID); ok {
		target = p.TargetFor(color).QueueID
	}
	s.recordFlow(table, id, desc, drop, target, true)
	return !drop
}

// recordFlow updates the per-flow counters and SLA state for one verdict.
func (s *TrafficShaper) recordFlow(table *dataplane.FlowTable, id model.FlowID,
	desc *model.PacketDescriptor, dropped bool, queue model.QueueID, policyFound bool) {

	now := time.Now()
	table.Update(id, func(fc *model.FlowContext) {
		if fc.Stats.FirstPacketTime.IsZero() {
			fc.Stats.FirstPacketTime = now
		}
		fc.Stats.LastPacketTime = now
		fc.LastProcessingTime = now

		if dropped {
			fc.Stats.BytesDropped += uint64(desc.LengthBytes)
			fc.Stats.PacketsDropped++
		} else {
			fc.Stats.BytesProcessed += uint64(desc.LengthBytes)
			fc.Stats.PacketsProcessed++
			fc.AccumulatedBytesInPeriod += uint64(desc.LengthBytes)
		}

		if policyFound {
			fc.QueueID = queue
		}
		switch {
		case desc.Conformance == model.ConformanceRed:
			fc.SLAStatus = model.SLANonConforming
		case fc.SLAStatus == model.SLAUnknown:
			fc.SLAStatus = model.SLAConforming
		}
	})
}
