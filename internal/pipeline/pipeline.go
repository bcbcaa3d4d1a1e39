package pipeline

import (
	"NetShaper/internal/core/model"
	"NetShaper/internal/dataplane"
	"NetShaper/internal/scheduler"
	"NetShaper/internal/shaping"
)

// PacketPipeline wires classifier, shaper and scheduler for one interface:
// ingress descriptors are classified, metered and enqueued; egress slots pop
// whatever the scheduler selects next. The pipeline never retries, reorders
// or buffers outside the scheduler.
type PacketPipeline struct {
	classifier *dataplane.FlowClassifier
	shaper     *shaping.TrafficShaper
	sched      scheduler.Scheduler
}

// New wires the three stages together.
func New(classifier *dataplane.FlowClassifier, shaper *shaping.TrafficShaper, sched scheduler.Scheduler) *PacketPipeline {
	return &PacketPipeline{classifier: classifier, shaper: shaper, sched: sched}
}

// HandleIncoming builds a descriptor for the parsed packet, runs the shaper
// and enqueues the survivor into the scheduler. The payload is moved, not
// copied. It reports whether the packet entered the queueing fabric; shaper
// and AQM drops are ordinary outcomes, not errors.
func (p *PacketPipeline) HandleIncoming(ft model.FiveTuple, lengthBytes uint32, payload []byte) (bool, error) {
	desc := model.PacketDescriptor{
		LengthBytes: lengthBytes,
		Payload:     payload,
	}

	if !p.shaper.Process(&desc, ft) {
		return false, nil
	}

	accepted, err := p.sched.Enqueue(desc)
	if err != nil {
		return false, err
	}
	return accepted, nil
}

// NextToTransmit pops one packet from the scheduler. A nil descriptor with a
// nil error means the scheduler is empty.
func (p *PacketPipeline) NextToTransmit() (*model.PacketDescriptor, error) {
	if p.sched.IsEmpty() {
		return nil, nil
	}
	pkt, err := p.sched.Dequeue()
	if err != nil {
		return nil, err
	}
	return &pkt, nil
}

// Classifier returns the pipeline's classifier.
func (p *PacketPipeline) Classifier() *dataplane.FlowClassifier { return p.classifier }

// Scheduler returns the pipeline's scheduler.
func (p *PacketPipeline) Scheduler() scheduler.Scheduler { return p.sched }
