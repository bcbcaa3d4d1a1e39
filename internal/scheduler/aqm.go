package scheduler

import (
	"fmt"
	"math/rand"
	"time"

	"NetShaper/internal/core/model"
)

// RedAqmParameters configure one RED-managed queue.
type RedAqmParameters struct {
	MinThresholdBytes uint64  // average size below which nothing is dropped
	MaxThresholdBytes uint64  // average size at which drop probability reaches MaxProbability
	MaxProbability    float64 // in (0, 1]
	EwmaWeight        float64 // in (0, 1]
	CapacityBytes     uint64  // physical queue capacity

	// Seed for the queue's drop generator. Zero means "derive a fresh seed";
	// tests fix it for reproducible drop sequences.
	Seed int64
}

// Validate applies the construction-time rules: monotone thresholds, capacity
// covering the max threshold, and probability/weight inside (0, 1].
func (p RedAqmParameters) Validate() error {
	if p.MinThresholdBytes == 0 || p.MaxThresholdBytes == 0 || p.CapacityBytes == 0 {
		return fmt.Errorf("red aqm: thresholds and capacity must be non-zero")
	}
	if p.MinThresholdBytes >= p.MaxThresholdBytes {
		return fmt.Errorf("red aqm: min threshold %d not below max threshold %d",
			p.MinThresholdBytes, p.MaxThresholdBytes)
	}
	if p.MaxThresholdBytes > p.CapacityBytes {
		return fmt.Errorf("red aqm: max threshold %d exceeds capacity %d",
			p.MaxThresholdBytes, p.CapacityBytes)
	}
	if p.MaxProbability <= 0 || p.MaxProbability > 1 {
		return fmt.Errorf("red aqm: max probability %v outside (0, 1]", p.MaxProbability)
	}
	if p.EwmaWeight <= 0 || p.EwmaWeight > 1 {
		return fmt.Errorf("red aqm: ewma weight %v outside (0, 1]", p.EwmaWeight)
	}
	return nil
}

// RedAqmQueue is a bounded FIFO with RED active queue management and the
// gentle-RED count adjustment. Observers never mutate queue state.
type RedAqmQueue struct {
	params RedAqmParameters

	buffer           []model.PacketDescriptor
	currentBytes     uint64
	averageQueueSize float64
	sinceLastDrop    int

	totalEnqueues uint64
	totalDrops    uint64

	seed int64
	rng  *rand.Rand
}

// NewRedAqmQueue validates the parameters and builds the queue. Each queue
// gets its own generator so drop patterns do not synchronize across queues.
func NewRedAqmQueue(params RedAqmParameters) (*RedAqmQueue, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RedAqmQueue{
		params: params,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// updateAverage folds the instantaneous byte occupancy into the EWMA.
func (q *RedAqmQueue) updateAverage() {
	w := q.params.EwmaWeight
	q.averageQueueSize = (1-w)*q.averageQueueSize + w*float64(q.currentBytes)
}

// dropProbability is the piecewise-linear base probability for the current
// average queue size.
func (q *RedAqmQueue) dropProbability() float64 {
	avg := q.averageQueueSize
	switch {
	case avg < float64(q.params.MinThresholdBytes):
		return 0
	case avg >= float64(q.params.MaxThresholdBytes):
		return q.params.MaxProbability
	default:
		span := float64(q.params.MaxThresholdBytes - q.params.MinThresholdBytes)
		return q.params.MaxProbability * (avg - float64(q.params.MinThresholdBytes)) / span
	}
}

// Enqueue appends the packet unless RED or the physical capacity rejects it.
// The EWMA is refreshed from the occupancy seen by the arriving packet.
func (q *RedAqmQueue) Enqueue(pkt model.PacketDescriptor) bool {
	q.totalEnqueues++
	q.updateAverage()

	if q.currentBytes+uint64(pkt.LengthBytes) > q.params.CapacityBytes {
		// Physical overflow is a tail drop, not a RED drop; the gentle-RED
		// counter is left alone.
		q.totalDrops++
		return false
	}

	pb := q.dropProbability()
	finalProb := 0.0
	if pb > 0 {
		denom := 1.0 - float64(q.sinceLastDrop)*pb
		if denom <= 1e-9 {
			finalProb = 1.0
		} else {
			finalProb = pb / denom
		}
		if finalProb > 1.0 {
			finalProb = 1.0
		}
	}

	if finalProb > 0 && q.rng.Float64() < finalProb {
		q.sinceLastDrop = 0
		q.totalDrops++
		return false
	}

	q.sinceLastDrop++
	q.currentBytes += uint64(pkt.LengthBytes)
	q.buffer = append(q.buffer, pkt)
	return true
}

// Dequeue pops the oldest packet and refreshes the EWMA from the
// post-departure occupancy.
func (q *RedAqmQueue) Dequeue() (model.PacketDescriptor, error) {
	if len(q.buffer) == 0 {
		return model.PacketDescriptor{}, fmt.Errorf("red aqm: %w", ErrEmptyDequeue)
	}
	pkt := q.buffer[0]
	q.buffer[0] = model.PacketDescriptor{}
	q.buffer = q.buffer[1:]
	q.currentBytes -= uint64(pkt.LengthBytes)
	q.updateAverage()
	return pkt, nil
}

// Front returns the oldest packet without removing it.
func (q *RedAqmQueue) Front() (*model.PacketDescriptor, error) {
	if len(q.buffer) == 0 {
		return nil, fmt.Errorf("red aqm: %w", ErrEmptyDequeue)
	}
	return &q.buffer[0], nil
}

// IsEmpty reports whether the queue holds no packets.
func (q *RedAqmQueue) IsEmpty() bool { return len(q.buffer) == 0 }

// PacketCount returns the number of queued packets.
func (q *RedAqmQueue) PacketCount() int { return len(q.buffer) }

// ByteSize returns the queued byte total.
func (q *RedAqmQueue) ByteSize() uint64 { return q.currentBytes }

// AverageQueueSize returns the running EWMA of the byte occupancy.
func (q *RedAqmQueue) AverageQueueSize() float64 { return q.averageQueueSize }

// Parameters returns the configured RED parameters.
func (q *RedAqmQueue) Parameters() RedAqmParameters { return q.params }

// Seed returns the seed the queue's generator was built from.
func (q *RedAqmQueue) Seed() int64 { return q.seed }

// TotalEnqueues returns the number of enqueue attempts.
func (q *RedAqmQueue) TotalEnqueues() uint64 { return q.totalEnqueues }

// TotalDrops returns the number of rejected packets, physical and RED alike.
func (q *RedAqmQueue) TotalDrops() uint64 { return q.totalDrops }
