package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"NetShaper/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// PolicySummary aggregates the latest counters of one policy across the
// stored snapshots.
type PolicySummary struct {
	Interface        string `json:"interface"`
	PolicyID         uint64 `json:"policy_id"`
	PolicyName       string `json:"policy_name"`
	BytesProcessed   uint64 `json:"bytes_processed"`
	PacketsProcessed uint64 `json:"packets_processed"`
	BytesDropped     uint64 `json:"bytes_dropped"`
	PacketsDropped   uint64 `json:"packets_dropped"`
}

// FlowPoint is one snapshot observation of a flow.
type FlowPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	Interface        string    `json:"interface"`
	FlowID           uint64    `json:"flow_id"`
	PolicyID         uint64    `json:"policy_id"`
	CurrentRateBps   uint64    `json:"current_rate_bps"`
	SLAStatus        string    `json:"sla_status"`
	BytesProcessed   uint64    `json:"bytes_processed"`
	PacketsProcessed uint64    `json:"packets_processed"`
	BytesDropped     uint64    `json:"bytes_dropped"`
	PacketsDropped   uint64    `json:"packets_dropped"`
}

// Querier defines the interface for querying persisted shaping statistics.
type Querier interface {
	AggregatePolicies(ctx context.Context, iface string, since time.Time) ([]PolicySummary, error)
	TraceFlow(ctx context.Context, flowID uint64) ([]FlowPoint, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// AggregatePolicies returns, per policy, the latest counters observed in the
// window. Counters are monotonic, so argMax over the snapshot timestamp is
// the current value.
func (q *clickhouseQuerier) AggregatePolicies(ctx context.Context, iface string, since time.Time) ([]PolicySummary, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			Interface,
			PolicyID,
			argMax(PolicyName, Timestamp)       AS Name,
			argMax(BytesProcessed, Timestamp)   AS BytesProcessed,
			argMax(PacketsProcessed, Timestamp) AS PacketsProcessed,
			argMax(BytesDropped, Timestamp)     AS BytesDropped,
			argMax(PacketsDropped, Timestamp)   AS PacketsDropped
		FROM qos_policy_metrics
	`)

	var whereClauses []string
	args := []interface{}{}

	if !since.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, since)
	}
	if iface != "" {
		whereClauses = append(whereClauses, "Interface = ?")
		args = append(args, iface)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	queryBuilder.WriteString(" GROUP BY Interface, PolicyID ORDER BY Interface, PolicyID")

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []PolicySummary
	for rows.Next() {
		var s PolicySummary
		if err := rows.Scan(&s.Interface, &s.PolicyID, &s.PolicyName,
			&s.BytesProcessed, &s.PacketsProcessed, &s.BytesDropped, &s.PacketsDropped); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation result: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// TraceFlow returns the stored observations of one flow in time order.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, flowID uint64) ([]FlowPoint, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT
			Timestamp, Interface, FlowID, PolicyID, CurrentRateBps, SLAStatus,
			BytesProcessed, PacketsProcessed, BytesDropped, PacketsDropped
		FROM qos_flow_metrics
		WHERE FlowID = ?
		ORDER BY Timestamp
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var points []FlowPoint
	for rows.Next() {
		var p FlowPoint
		if err := rows.Scan(&p.Timestamp, &p.Interface, &p.FlowID, &p.PolicyID,
			&p.CurrentRateBps, &p.SLAStatus,
			&p.BytesProcessed, &p.PacketsProcessed, &p.BytesDropped, &p.PacketsDropped); err != nil {
			return nil, fmt.Errorf("failed to scan flow point: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}
