package scheduler

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"NetShaper/internal/core/model"
)

// ServiceCurve is one HFSC curve: a rate and an initial delay. A zero rate
// means the curve is absent and contributes nothing.
type ServiceCurve struct {
	RateBps uint64
	DelayUs uint64
}

// Valid reports whether the curve contributes to scheduling.
func (sc ServiceCurve) Valid() bool { return sc.RateBps > 0 }

// HfscFlowConfig configures one class of the two-level hierarchy. ParentID 0
// marks a root class; leaves reference a root class and inherit its shaping
// as a start-time constraint.
type HfscFlowConfig struct {
	ID         model.FlowID
	ParentID   model.FlowID
	RealTime   ServiceCurve
	LinkShare  ServiceCurve
	UpperLimit ServiceCurve
}

// infiniteTime is the saturating representation of "never": the service time
// of an absent curve and the finish time of an unschedulable packet.
const infiniteTime = math.MaxUint64

// hfscNoParent is the sentinel parent of root classes.
const hfscNoParent model.FlowID = 0

type hfscClass struct {
	id       model.FlowID
	parentID model.FlowID
	children []model.FlowID

	queue []model.PacketDescriptor

	rtSC ServiceCurve
	lsSC ServiceCurve
	ulSC ServiceCurve

	virtualStartTime  uint64
	virtualFinishTime uint64
	eligibleTime      uint64
	vftUL             uint64
}

type eligibleEntry struct {
	vft uint64
	id  model.FlowID
}

// eligibleHeap is a min-heap on (vft, flow id); the flow id tie-break makes
// the service order total and deterministic.
type eligibleHeap []eligibleEntry

func (h eligibleHeap) Len() int { return len(h) }
func (h eligibleHeap) Less(i, j int) bool {
	if h[i].vft != h[j].vft {
		return h[i].vft < h[j].vft
	}
	return h[i].id < h[j].id
}
func (h eligibleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eligibleHeap) Push(x interface{}) { *h = append(*h, x.(eligibleEntry)) }
func (h *eligibleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// HfscScheduler is a two-level hierarchical fair service curve scheduler.
// Packets route to leaf classes via the descriptor priority used as a flow
// id; virtual start/finish times derive from the real-time and link-share
// curves, capped by upper-limit curves and the parent's start-time
// constraint. Dequeue order is the eligible set's (vft, flow id) order.
type HfscScheduler struct {
	classes map[model.FlowID]*hfscClass

	currentVirtualTime uint64
	totalPackets       int
	eligible           eligibleHeap
}

// NewHfscScheduler validates the class hierarchy (non-empty, unique ids, no
// self-parenting, parents exist and are roots) and builds the scheduler.
func NewHfscScheduler(configs []HfscFlowConfig) (*HfscScheduler, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("hfsc: no classes configured")
	}
	s := &HfscScheduler{classes: make(map[model.FlowID]*hfscClass, len(configs))}
	for _, fc := range configs {
		if fc.ID == hfscNoParent {
			return nil, fmt.Errorf("hfsc: flow id 0 is reserved")
		}
		if fc.ID == fc.ParentID {
			return nil, fmt.Errorf("hfsc: flow %d cannot be its own parent", fc.ID)
		}
		if _, dup := s.classes[fc.ID]; dup {
			return nil, fmt.Errorf("hfsc: duplicate flow id %d", fc.ID)
		}
		s.classes[fc.ID] = &hfscClass{
			id:       fc.ID,
			parentID: fc.ParentID,
			rtSC:     fc.RealTime,
			lsSC:     fc.LinkShare,
			ulSC:     fc.UpperLimit,
		}
	}
	for _, c := range s.classes {
		if c.parentID == hfscNoParent {
			continue
		}
		parent, ok := s.classes[c.parentID]
		if !ok {
			return nil, fmt.Errorf("hfsc: flow %d references unknown parent %d", c.id, c.parentID)
		}
		if parent.parentID != hfscNoParent {
			return nil, fmt.Errorf("hfsc: flow %d nests under non-root parent %d; the hierarchy is two-level",
				c.id, c.parentID)
		}
		parent.children = append(parent.children, c.id)
	}
	for _, c := range s.classes {
		sort.Slice(c.children, func(i, j int) bool { return c.children[i] < c.children[j] })
	}
	return s, nil
}

// serviceTimeUs is the virtual service duration of a packet on one curve, or
// infiniteTime when the curve is absent.
func serviceTimeUs(lengthBytes uint32, sc ServiceCurve) uint64 {
	if !sc.Valid() {
		return infiniteTime
	}
	return uint64(lengthBytes) * 8 * 1_000_000 / sc.RateBps
}

// addSat adds two virtual durations, saturating at infiniteTime.
func addSat(a, b uint64) uint64 {
	if a == infiniteTime || b == infiniteTime || a > infiniteTime-b {
		return infiniteTime
	}
	return a + b
}

func maxTime(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// chooseCurve computes eligibility and virtual finish for the RT/LS pair of
// one class: the curve with the smaller finish governs, ties to RT. ok is
// false when neither curve contributes.
func chooseCurve(base uint64, lengthBytes uint32, rt, ls ServiceCurve) (e, vft uint64, ok bool) {
	eRT := addSat(base, rt.DelayUs)
	vftRT := addSat(eRT, serviceTimeUs(lengthBytes, rt))
	eLS := addSat(base, ls.DelayUs)
	vftLS := addSat(eLS, serviceTimeUs(lengthBytes, ls))

	switch {
	case rt.Valid() && ls.Valid():
		if vftRT <= vftLS {
			return eRT, vftRT, true
		}
		return eLS, vftLS, true
	case rt.Valid():
		return eRT, vftRT, true
	case ls.Valid():
		return eLS, vftLS, true
	}
	return 0, infiniteTime, false
}

// schedule computes eligibility and virtual finish for the head packet of
// the class and registers it in the eligible set. A newly active class bases
// eligibility on its previous finish time; a continuing class starts from the
// scheduler's current virtual time.
func (s *HfscScheduler) schedule(c *hfscClass, newlyActive bool) {
	if len(c.queue) == 0 {
		return
	}
	length := c.queue[0].LengthBytes

	base := s.currentVirtualTime
	if newlyActive {
		base = maxTime(base, c.virtualFinishTime)
	}

	// Self: RT/LS choice, then the upper limit as a start-time constraint.
	eSelf, vftSelf, ok := chooseCurve(base, length, c.rtSC, c.lsSC)
	serviceSelf := uint64(infiniteTime)
	if ok {
		serviceSelf = vftSelf - eSelf
	}
	if c.ulSC.Valid() {
		eUL := addSat(maxTime(base, c.vftUL), c.ulSC.DelayUs)
		if eUL > eSelf {
			eSelf = eUL
		}
		if ok {
			vftSelf = addSat(eSelf, serviceSelf)
		}
	}

	eFinal, vftFinal := eSelf, vftSelf

	// Parent cascade: the parent constrains when service may start, never
	// how long it takes.
	if c.parentID != hfscNoParent {
		parent := s.classes[c.parentID]
		pBase := maxTime(s.currentVirtualTime, parent.virtualFinishTime)
		eParent, _, okParent := chooseCurve(pBase, length, parent.rtSC, parent.lsSC)
		if !okParent {
			eParent = 0
		}
		if parent.ulSC.Valid() {
			eULParent := addSat(maxTime(pBase, parent.vftUL), parent.ulSC.DelayUs)
			if eULParent > eParent {
				eParent = eULParent
			}
		}
		eFinal = maxTime(eSelf, eParent)
		if serviceSelf != infiniteTime {
			vftFinal = addSat(eFinal, serviceSelf)
		} else {
			vftFinal = infiniteTime
		}
	}

	if vftFinal == infiniteTime {
		// Neither RT nor LS contributes; the class cannot become eligible
		// until it is reconfigured.
		return
	}

	c.virtualStartTime = eFinal
	c.eligibleTime = eFinal
	c.virtualFinishTime = vftFinal
	if c.ulSC.Valid() {
		c.vftUL = addSat(eFinal, serviceTimeUs(length, c.ulSC))
	}
	heap.Push(&s.eligible, eligibleEntry{vft: vftFinal, id: c.id})
}

// Enqueue appends the packet to its leaf's queue, activating the leaf in the
// eligible set when it was empty. The descriptor priority selects the flow.
func (s *HfscScheduler) Enqueue(pkt model.PacketDescriptor) (bool, error) {
	c, ok := s.classes[model.FlowID(pkt.Priority)]
	if !ok {
		return false, fmt.Errorf("hfsc: flow id %d: %w", pkt.Priority, ErrUnknownTarget)
	}
	if len(c.children) > 0 {
		return false, fmt.Errorf("hfsc: flow id %d is an inner class, only leaves queue packets: %w",
			pkt.Priority, ErrUnknownTarget)
	}

	wasEmpty := len(c.queue) == 0
	c.queue = append(c.queue, pkt)
	s.totalPackets++

	if wasEmpty {
		s.schedule(c, true)
	}
	return true, nil
}

// Dequeue pops the eligible class with the smallest virtual finish time,
// advances the scheduler's virtual time to it, and re-registers the class if
// it still holds packets.
func (s *HfscScheduler) Dequeue() (model.PacketDescriptor, error) {
	if s.totalPackets == 0 {
		return model.PacketDescriptor{}, fmt.Errorf("hfsc: %w", ErrEmptyDequeue)
	}
	if s.eligible.Len() == 0 {
		// Packets exist but no class could be scheduled: every queued class
		// has neither a real-time nor a link-share curve.
		return model.PacketDescriptor{}, fmt.Errorf("hfsc: %d packets queued but no class is eligible: %w",
			s.totalPackets, ErrInternalInconsistency)
	}

	entry := heap.Pop(&s.eligible).(eligibleEntry)
	c, ok := s.classes[entry.id]
	if !ok || len(c.queue) == 0 {
		return model.PacketDescriptor{}, fmt.Errorf("hfsc: eligible set references empty flow %d: %w",
			entry.id, ErrInternalInconsistency)
	}

	pkt := c.queue[0]
	c.queue[0] = model.PacketDescriptor{}
	c.queue = c.queue[1:]
	s.totalPackets--

	s.currentVirtualTime = entry.vft

	// Settle the upper-limit timeline from the service the packet actually
	// received, seeded at its scheduled start time.
	if c.ulSC.Valid() {
		c.vftUL = addSat(c.virtualStartTime, serviceTimeUs(pkt.LengthBytes, c.ulSC))
	}

	if len(c.queue) > 0 {
		s.schedule(c, false)
	}
	return pkt, nil
}

// IsEmpty reports whether no class holds a packet.
func (s *HfscScheduler) IsEmpty() bool { return s.totalPackets == 0 }

// NumClasses returns the number of configured classes.
func (s *HfscScheduler) NumClasses() int { return len(s.classes) }

// QueueSize returns the packet count queued at one class.
func (s *HfscScheduler) QueueSize(id model.FlowID) (int, error) {
	c, ok := s.classes[id]
	if !ok {
		return 0, fmt.Errorf("hfsc: flow id %d: %w", id, ErrUnknownTarget)
	}
	return len(c.queue), nil
}

// ClassIDs returns the configured class ids in ascending order.
func (s *HfscScheduler) ClassIDs() []model.FlowID {
	ids := make([]model.FlowID, 0, len(s.classes))
	for id := range s.classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CurrentVirtualTime returns the scheduler's virtual clock.
func (s *HfscScheduler) CurrentVirtualTime() uint64 { return s.currentVirtualTime }

// VirtualFinishTime returns the last computed virtual finish time of one
// class.
func (s *HfscScheduler) VirtualFinishTime(id model.FlowID) (uint64, error) {
	c, ok := s.classes[id]
	if !ok {
		return 0, fmt.Errorf("hfsc: flow id %d: %w", id, ErrUnknownTarget)
	}
	return c.virtualFinishTime, nil
}
