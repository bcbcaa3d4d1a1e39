package model

import (
	"time"

	core "NetShaper/internal/core/model"
)

// PolicyRow is the per-policy slice of a stats snapshot.
type PolicyRow struct {
	Interface string
	PolicyID  core.PolicyID
	Name      string
	Stats     core.PolicyStatistics
}

// FlowRow is the per-flow slice of a stats snapshot.
type FlowRow struct {
	Interface      string
	FlowID         core.FlowID
	PolicyID       core.PolicyID
	QueueID        core.QueueID
	CurrentRateBps uint64
	SLAStatus      core.SLAStatus
	Stats          core.FlowStatistics
}

// QueueRow is the per-queue slice of a stats snapshot.
type QueueRow struct {
	Interface        string
	Selector         uint64 // level, queue id or flow id, per discipline
	CurrentBytes     uint64
	CurrentPackets   int
	AverageQueueSize float64
	TotalEnqueues    uint64
	TotalDrops       uint64
}

// StatsSnapshot is a consistent copy of the observable counters of one
// engine, taken out-of-band from the data path.
type StatsSnapshot struct {
	Timestamp time.Time
	Policies  []PolicyRow
	Flows     []FlowRow
	Queues    []QueueRow
}
