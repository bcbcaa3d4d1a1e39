package scheduler

import (
	"fmt"

	"NetShaper/internal/core/model"
)

// WrrQueueConfig configures one weighted round robin queue.
type WrrQueueConfig struct {
	ID     model.QueueID
	Weight uint32
	AQM    RedAqmParameters
}

type wrrQueue struct {
	id      model.QueueID
	queue   *RedAqmQueue
	weight  uint32
	deficit int64
}

// WrrScheduler serves queues in proportion to integer weights: each packet
// sent costs one deficit unit, and when a full cycle finds nothing
// serviceable every deficit is replenished by its queue's weight. The packet
// priority field selects the target queue id.
type WrrScheduler struct {
	queues    []*wrrQueue
	idToIndex map[model.QueueID]int

	cursor       int
	totalPackets int
}

// NewWrrScheduler validates the configuration (non-empty, positive weights,
// unique ids) and builds the scheduler. Deficits start at the weights so
// every queue is immediately serviceable.
func NewWrrScheduler(configs []WrrQueueConfig) (*WrrScheduler, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("wrr: no queues configured")
	}
	s := &WrrScheduler{idToIndex: make(map[model.QueueID]int, len(configs))}
	for i, qc := range configs {
		if qc.Weight == 0 {
			return nil, fmt.Errorf("wrr: queue %d has zero weight", qc.ID)
		}
		if _, dup := s.idToIndex[qc.ID]; dup {
			return nil, fmt.Errorf("wrr: duplicate queue id %d", qc.ID)
		}
		q, err := NewRedAqmQueue(qc.AQM)
		if err != nil {
			return nil, fmt.Errorf("wrr: queue %d: %w", qc.ID, err)
		}
		s.queues = append(s.queues, &wrrQueue{
			id:      qc.ID,
			queue:   q,
			weight:  qc.Weight,
			deficit: int64(qc.Weight),
		})
		s.idToIndex[qc.ID] = i
	}
	return s, nil
}

// Enqueue routes the packet by priority-as-queue-id. The counter moves only
// when the AQM queue accepts.
func (s *WrrScheduler) Enqueue(pkt model.PacketDescriptor) (bool, error) {
	idx, ok := s.idToIndex[model.QueueID(pkt.Priority)]
	if !ok {
		return false, fmt.Errorf("wrr: queue id %d: %w", pkt.Priority, ErrUnknownTarget)
	}
	if !s.queues[idx].queue.Enqueue(pkt) {
		return false, nil
	}
	s.totalPackets++
	return true, nil
}

// Dequeue sends one packet from the first non-empty queue with a positive
// deficit, starting at the cursor. When a full cycle yields nothing it
// replenishes every deficit by its weight and rescans.
func (s *WrrScheduler) Dequeue() (model.PacketDescriptor, error) {
	if s.IsEmpty() {
		return model.PacketDescriptor{}, fmt.Errorf("wrr: %w", ErrEmptyDequeue)
	}

	replenished := false
	for {
		for i := 0; i < len(s.queues); i++ {
			idx := (s.cursor + i) % len(s.queues)
			q := s.queues[idx]
			if q.queue.IsEmpty() || q.deficit <= 0 {
				continue
			}
			pkt, err := q.queue.Dequeue()
			if err != nil {
				return model.PacketDescriptor{}, fmt.Errorf("wrr: queue %d: %w", q.id, ErrInternalInconsistency)
			}
			q.deficit--
			s.totalPackets--
			s.cursor = (idx + 1) % len(s.queues)
			return pkt, nil
		}

		if replenished {
			return model.PacketDescriptor{}, fmt.Errorf("wrr: replenished but nothing serviceable with %d packets: %w",
				s.totalPackets, ErrInternalInconsistency)
		}
		for _, q := range s.queues {
			q.deficit += int64(q.weight)
		}
		replenished = true
	}
}

// IsEmpty reports whether no queue holds a packet.
func (s *WrrScheduler) IsEmpty() bool { return s.totalPackets == 0 }

// NumQueues returns the configured queue count.
func (s *WrrScheduler) NumQueues() int { return len(s.queues) }

// QueueSize returns the packet count of one queue.
func (s *WrrScheduler) QueueSize(id model.QueueID) (int, error) {
	idx, ok := s.idToIndex[id]
	if !ok {
		return 0, fmt.Errorf("wrr: queue id %d: %w", id, ErrUnknownTarget)
	}
	return s.queues[idx].queue.PacketCount(), nil
}

// QueueIDs returns the configured queue ids in their configuration order.
func (s *WrrScheduler) QueueIDs() []model.QueueID {
	ids := make([]model.QueueID, len(s.queues))
	for i, q := range s.queues {
		ids[i] = q.id
	}
	return ids
}

// Queue exposes the AQM queue with the given id for observation.
func (s *WrrScheduler) Queue(id model.QueueID) (*RedAqmQueue, error) {
	idx, ok := s.idToIndex[id]
	if !ok {
		return nil, fmt.Errorf("wrr: queue id %d: %w", id, ErrUnknownTarget)
	}
	return s.queues[idx].queue, nil
}
