package scheduler

import (
	"fmt"

	"NetShaper/internal/core/model"
)

// StrictPriorityScheduler serves a fixed set of priority levels, always
// draining the highest non-empty level first. Numerically higher priority
// means higher service priority; starvation of lower levels is by design.
type StrictPriorityScheduler struct {
	levels       []*RedAqmQueue
	totalPackets int
}

// NewStrictPriorityScheduler builds one AQM queue per priority level. The
// parameter list must not be empty; entry i manages level i.
func NewStrictPriorityScheduler(levelParams []RedAqmParameters) (*StrictPriorityScheduler, error) {
	if len(levelParams) == 0 {
		return nil, fmt.Errorf("strict priority: no priority levels configured")
	}
	levels := make([]*RedAqmQueue, 0, len(levelParams))
	for i, params := range levelParams {
		q, err := NewRedAqmQueue(params)
		if err != nil {
			return nil, fmt.Errorf("strict priority: level %d: %w", i, err)
		}
		levels = append(levels, q)
	}
	return &StrictPriorityScheduler{levels: levels}, nil
}

// Enqueue routes the packet by its priority field. The total-packet counter
// moves only when the level's AQM queue accepts.
func (s *StrictPriorityScheduler) Enqueue(pkt model.PacketDescriptor) (bool, error) {
	if int(pkt.Priority) >= len(s.levels) {
		return false, fmt.Errorf("strict priority: level %d: %w", pkt.Priority, ErrUnknownTarget)
	}
	if !s.levels[pkt.Priority].Enqueue(pkt) {
		return false, nil
	}
	s.totalPackets++
	return true, nil
}

// Dequeue scans from the highest level downwards and pops the first
// non-empty queue.
func (s *StrictPriorityScheduler) Dequeue() (model.PacketDescriptor, error) {
	if s.IsEmpty() {
		return model.PacketDescriptor{}, fmt.Errorf("strict priority: %w", ErrEmptyDequeue)
	}
	for i := len(s.levels) - 1; i >= 0; i-- {
		if s.levels[i].IsEmpty() {
			continue
		}
		pkt, err := s.levels[i].Dequeue()
		if err != nil {
			return model.PacketDescriptor{}, fmt.Errorf("strict priority: level %d: %w", i, ErrInternalInconsistency)
		}
		s.totalPackets--
		return pkt, nil
	}
	return model.PacketDescriptor{}, fmt.Errorf("strict priority: counter says %d packets but all levels empty: %w",
		s.totalPackets, ErrInternalInconsistency)
}

// IsEmpty reports whether no level holds a packet.
func (s *StrictPriorityScheduler) IsEmpty() bool { return s.totalPackets == 0 }

// NumLevels returns the configured number of priority levels.
func (s *StrictPriorityScheduler) NumLevels() int { return len(s.levels) }

// QueueSize returns the packet count at one priority level.
func (s *StrictPriorityScheduler) QueueSize(level uint8) (int, error) {
	if int(level) >= len(s.levels) {
		return 0, fmt.Errorf("strict priority: level %d: %w", level, ErrUnknownTarget)
	}
	return s.levels[level].PacketCount(), nil
}

// Queue exposes the AQM queue of one level for observation.
func (s *StrictPriorityScheduler) Queue(level uint8) (*RedAqmQueue, error) {
	if int(level) >= len(s.levels) {
		return nil, fmt.Errorf("strict priority: level %d: %w", level, ErrUnknownTarget)
	}
	return s.levels[level], nil
}
