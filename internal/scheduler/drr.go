package scheduler

import (
	"fmt"

	"NetShaper/internal/core/model"
)

// DrrQueueConfig configures one deficit round robin queue.
type DrrQueueConfig struct {
	ID           model.QueueID
	QuantumBytes uint32
	AQM          RedAqmParameters
}

type drrQueue struct {
	id      model.QueueID
	queue   *RedAqmQueue
	quantum uint32
	deficit int64
}

// DrrScheduler serves queues in byte proportion to their quanta. Each visit
// to a non-empty queue adds its quantum to the deficit; the head packet is
// emitted iff the deficit covers its length, and the cursor advances after
// every packet. An unserved deficit carries over to the next visit, so any
// finite-length packet is eventually served.
type DrrScheduler struct {
	queues    []*drrQueue
	idToIndex map[model.QueueID]int

	cursor       int
	totalPackets int
}

// NewDrrScheduler validates the configuration (non-empty, positive quanta,
// unique ids) and builds the scheduler.
func NewDrrScheduler(configs []DrrQueueConfig) (*DrrScheduler, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("drr: no queues configured")
	}
	s := &DrrScheduler{idToIndex: make(map[model.QueueID]int, len(configs))}
	for i, qc := range configs {
		if qc.QuantumBytes == 0 {
			return nil, fmt.Errorf("drr: queue %d has zero quantum", qc.ID)
		}
		if _, dup := s.idToIndex[qc.ID]; dup {
			return nil, fmt.Errorf("drr: duplicate queue id %d", qc.ID)
		}
		q, err := NewRedAqmQueue(qc.AQM)
		if err != nil {
			return nil, fmt.Errorf("drr: queue %d: %w", qc.ID, err)
		}
		s.queues = append(s.queues, &drrQueue{
			id:      qc.ID,
			queue:   q,
			quantum: qc.QuantumBytes,
		})
		s.idToIndex[qc.ID] = i
	}
	return s, nil
}

// Enqueue routes the packet by priority-as-queue-id. The counter moves only
// when the AQM queue accepts.
func (s *DrrScheduler) Enqueue(pkt model.PacketDescriptor) (bool, error) {
	idx, ok := s.idToIndex[model.QueueID(pkt.Priority)]
	if !ok {
		return false, fmt.Errorf("drr: queue id %d: %w", pkt.Priority, ErrUnknownTarget)
	}
	if !s.queues[idx].queue.Enqueue(pkt) {
		return false, nil
	}
	s.totalPackets++
	return true, nil
}

// Dequeue emits one packet then advances the cursor. The scan terminates
// because every full cycle grows each non-empty queue's deficit by its
// quantum.
func (s *DrrScheduler) Dequeue() (model.PacketDescriptor, error) {
	if s.IsEmpty() {
		return model.PacketDescriptor{}, fmt.Errorf("drr: %w", ErrEmptyDequeue)
	}

	for {
		q := s.queues[s.cursor]
		if !q.queue.IsEmpty() {
			q.deficit += int64(q.quantum)
			head, err := q.queue.Front()
			if err != nil {
				return model.PacketDescriptor{}, fmt.Errorf("drr: queue %d: %w", q.id, ErrInternalInconsistency)
			}
			if q.deficit >= int64(head.LengthBytes) {
				pkt, err := q.queue.Dequeue()
				if err != nil {
					return model.PacketDescriptor{}, fmt.Errorf("drr: queue %d: %w", q.id, ErrInternalInconsistency)
				}
				q.deficit -= int64(pkt.LengthBytes)
				s.totalPackets--
				s.cursor = (s.cursor + 1) % len(s.queues)
				return pkt, nil
			}
			// Head still too large; the accumulated deficit stays for the
			// next visit.
		}
		s.cursor = (s.cursor + 1) % len(s.queues)
	}
}

// IsEmpty reports whether no queue holds a packet.
func (s *DrrScheduler) IsEmpty() bool { return s.totalPackets == 0 }

// NumQueues returns the configured queue count.
func (s *DrrScheduler) NumQueues() int { return len(s.queues) }

// QueueSize returns the packet count of one queue.
func (s *DrrScheduler) QueueSize(id model.QueueID) (int, error) {
	idx, ok := s.idToIndex[id]
	if !ok {
		return 0, fmt.Errorf("drr: queue id %d: %w", id, ErrUnknownTarget)
	}
	return s.queues[idx].queue.PacketCount(), nil
}

// QueueIDs returns the configured queue ids in their configuration order.
func (s *DrrScheduler) QueueIDs() []model.QueueID {
	ids := make([]model.QueueID, len(s.queues))
	for i, q := range s.queues {
		ids[i] = q.id
	}
	return ids
}

// Queue exposes the AQM queue with the given id for observation.
func (s *DrrScheduler) Queue(id model.QueueID) (*RedAqmQueue, error) {
	idx, ok := s.idToIndex[id]
	if !ok {
		return nil, fmt.Errorf("drr: queue id %d: %w", id, ErrUnknownTarget)
	}
	return s.queues[idx].queue, nil
}
