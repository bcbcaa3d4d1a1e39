package export

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"NetShaper/internal/logging"
	"NetShaper/internal/model"
)

var gobLog = logging.NewComponentLogger("export.gob")

// SummaryData holds the metadata written next to each snapshot.
type SummaryData struct {
	TotalPolicies int    `json:"total_policies"`
	TotalFlows    int    `json:"total_flows"`
	TotalQueues   int    `json:"total_queues"`
	Timestamp     string `json:"timestamp"`
}

// GobWriter persists stats snapshots to disk in gob format, one timestamped
// directory per snapshot. It implements the model.StatsWriter interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new on-disk snapshot writer.
func NewGobWriter(rootPath string, interval time.Duration) model.StatsWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write serializes the snapshot into policies.dat, flows.dat and queues.dat
// under a timestamped directory, plus a summary.json.
func (w *GobWriter) Write(snapshot *model.StatsSnapshot, timestamp string) error {
	snapshotDir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := writeGobFile(filepath.Join(snapshotDir, "policies.dat"), snapshot.Policies); err != nil {
		return err
	}
	if err := writeGobFile(filepath.Join(snapshotDir, "flows.dat"), snapshot.Flows); err != nil {
		return err
	}
	if err := writeGobFile(filepath.Join(snapshotDir, "queues.dat"), snapshot.Queues); err != nil {
		return err
	}

	summary := SummaryData{
		TotalPolicies: len(snapshot.Policies),
		TotalFlows:    len(snapshot.Flows),
		TotalQueues:   len(snapshot.Queues),
		Timestamp:     timestamp,
	}
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	summaryPath := filepath.Join(snapshotDir, "summary.json")
	if err := os.WriteFile(summaryPath, summaryBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	gobLog.Infof("wrote snapshot %s (%d policies, %d flows)", timestamp,
		len(snapshot.Policies), len(snapshot.Flows))
	return nil
}

func writeGobFile(path string, payload interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(payload); err != nil {
		return fmt.Errorf("failed to encode snapshot file '%s': %w", path, err)
	}
	return nil
}
