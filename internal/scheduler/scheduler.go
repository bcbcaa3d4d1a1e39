package scheduler

import (
	"errors"

	"NetShaper/internal/core/model"
)

// Scheduler is the common contract of every queueing discipline. Enqueue
// routes the descriptor to an internal queue keyed by the discipline's
// selector (an AQM queue for strict priority, WRR and DRR; a plain FIFO per
// HFSC class); an AQM drop is an ordinary outcome (accepted=false, nil error),
// while a selector that names no configured queue is an error. Dequeue
// returns the next packet under the discipline or ErrEmptyDequeue.
type Scheduler interface {
	Enqueue(pkt model.PacketDescriptor) (accepted bool, err error)
	Dequeue() (model.PacketDescriptor, error)
	IsEmpty() bool
}

var (
	// ErrEmptyDequeue is returned when Dequeue is called on a scheduler that
	// holds no packets.
	ErrEmptyDequeue = errors.New("scheduler is empty")

	// ErrUnknownTarget is returned when a packet's selector names a level,
	// queue or flow the scheduler was not configured with.
	ErrUnknownTarget = errors.New("unknown enqueue target")

	// ErrInternalInconsistency is returned when scheduler bookkeeping
	// disagrees with queue contents.
	ErrInternalInconsistency = errors.New("scheduler state inconsistent")
)
