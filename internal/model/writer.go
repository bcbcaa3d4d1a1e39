package model

import "time"

// StatsWriter defines a generic interface for persisting stats snapshots.
type StatsWriter interface {
	// Write persists one snapshot. The timestamp string names the snapshot
	// (directory, table row key) and is formatted by the caller.
	Write(snapshot *StatsSnapshot, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
