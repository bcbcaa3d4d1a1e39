package export

import (
	"context"
	"fmt"
	"time"

	"NetShaper/internal/config"
	"NetShaper/internal/logging"
	"NetShaper/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var chLog = logging.NewComponentLogger("export.clickhouse")

const createPolicyTableStatement = `
CREATE TABLE IF NOT EXISTS qos_policy_metrics (
    Timestamp        DateTime,
    Interface        String,
    PolicyID         UInt64,
    PolicyName       String,
    BytesProcessed   UInt64,
    PacketsProcessed UInt64,
    BytesDropped     UInt64,
    PacketsDropped   UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Interface, PolicyID, Timestamp);
`

const createFlowTableStatement = `
CREATE TABLE IF NOT EXISTS qos_flow_metrics (
    Timestamp        DateTime,
    Interface        String,
    FlowID           UInt64,
    PolicyID         UInt64,
    QueueID          UInt32,
    CurrentRateBps   UInt64,
    SLAStatus        String,
    BytesProcessed   UInt64,
    PacketsProcessed UInt64,
    BytesDropped     UInt64,
    PacketsDropped   UInt64,
    FirstSeen        DateTime,
    LastSeen         DateTime
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Interface, FlowID, Timestamp);
`

// ClickHouseWriter implements the model.StatsWriter interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects, ensures both metric tables exist and returns
// the writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (model.StatsWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createPolicyTableStatement, createFlowTableStatement} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	chLog.Info("connected to ClickHouse and ensured tables exist")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write inserts the snapshot's policy and flow rows as two batches.
func (w *ClickHouseWriter) Write(snapshot *model.StatsSnapshot, timestamp string) error {
	snapshotTime, err := time.Parse("2006-01-02_15-04-05", timestamp)
	if err != nil {
		snapshotTime = snapshot.Timestamp
	}

	if len(snapshot.Policies) > 0 {
		batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO qos_policy_metrics")
		if err != nil {
			return fmt.Errorf("failed to prepare policy batch: %w", err)
		}
		for _, row := range snapshot.Policies {
			if err := batch.Append(
				snapshotTime,
				row.Interface,
				uint64(row.PolicyID),
				row.Name,
				row.Stats.BytesProcessed,
				row.Stats.PacketsProcessed,
				row.Stats.BytesDropped,
				row.Stats.PacketsDropped,
			); err != nil {
				return fmt.Errorf("failed to append policy row: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send policy batch: %w", err)
		}
	}

	if len(snapshot.Flows) > 0 {
		batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO qos_flow_metrics")
		if err != nil {
			return fmt.Errorf("failed to prepare flow batch: %w", err)
		}
		for _, row := range snapshot.Flows {
			if err := batch.Append(
				snapshotTime,
				row.Interface,
				uint64(row.FlowID),
				uint64(row.PolicyID),
				uint32(row.QueueID),
				row.CurrentRateBps,
				row.SLAStatus.String(),
				row.Stats.BytesProcessed,
				row.Stats.PacketsProcessed,
				row.Stats.BytesDropped,
				row.Stats.PacketsDropped,
				row.Stats.FirstPacketTime,
				row.Stats.LastPacketTime,
			); err != nil {
				return fmt.Errorf("failed to append flow row: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send flow batch: %w", err)
		}
	}

	chLog.Infof("wrote %d policy rows and %d flow rows to ClickHouse",
		len(snapshot.Policies), len(snapshot.Flows))
	return nil
}
