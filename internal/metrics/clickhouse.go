// Package metrics records per-job extraction outcomes and stage timings to
// ClickHouse, so throughput and failure-rate dashboards don't have to query
// the operational Postgres tables directly.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/tutordex/core/internal/model"
)

// Sink records one extraction job's final outcome. Implementations must be
// safe to call from every worker goroutine concurrently.
type Sink interface {
	RecordJob(ctx context.Context, event JobEvent) error
}

// JobEvent is one finished (ok, failed, skipped, or pending-requeued) job,
// denormalized for a single-table ClickHouse insert.
type JobEvent struct {
	PipelineVersion string
	ChannelRef      string
	MessageID       string
	Status          model.ExtractionStatus
	Attempt         int
	FilterReason    string
	PersistResult   string
	StageTimingsMS  map[string]int
	RecordedAt      time.Time
}

// ClickHouseSink writes JobEvents into a single flat table. Config is
// intentionally minimal: the table name and DSN are the only two inputs
// most deployments need to change.
type ClickHouseSink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// ClickHouseConfig mirrors the extraction-metrics slice of the ambient
// ClickHouse config: a bare DSN plus the table to insert into.
type ClickHouseConfig struct {
	DSN            string
	Table          string
	TimeoutSeconds int
}

// NewClickHouseSink opens a connection and verifies it with Ping. Returns
// (nil, nil) when cfg.DSN is empty, mirroring the teacher's
// newClickHouseTokenMetrics no-op-when-unconfigured convention.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("metrics: open clickhouse connection: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "extraction_jobs"
	}
	if err := sanitizeIdentifier(table); err != nil {
		return nil, fmt.Errorf("metrics: invalid table: %w", err)
	}

	ctxPing, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(ctxPing); err != nil {
		return nil, fmt.Errorf("metrics: clickhouse ping: %w", err)
	}

	return &ClickHouseSink{conn: conn, table: table, timeout: timeout}, nil
}

// RecordJob inserts one row. Failures are the caller's to decide whether to
// treat as fatal; the extraction worker logs and continues, since a lost
// metrics row never blocks a job from completing.
func (s *ClickHouseSink) RecordJob(ctx context.Context, event JobEvent) error {
	if s == nil || s.conn == nil {
		return nil
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`
INSERT INTO %s
  (pipeline_version, channel_ref, message_id, status, attempt, filter_reason,
   persist_result, stage_total_ms, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, s.table)

	return s.conn.Exec(execCtx, query,
		event.PipelineVersion,
		event.ChannelRef,
		event.MessageID,
		string(event.Status),
		event.Attempt,
		event.FilterReason,
		event.PersistResult,
		event.StageTimingsMS["total"],
		event.RecordedAt,
	)
}

// NoopSink discards every event; used when EXTRACTION_METRICS_CLICKHOUSE_DSN
// is unset.
type NoopSink struct{}

func (NoopSink) RecordJob(context.Context, JobEvent) error { return nil }

// LoggingRecordJob is a best-effort helper cmd/ wires in place of a direct
// RecordJob call: it logs and swallows the error rather than letting a
// metrics outage fail the job it's describing.
func LoggingRecordJob(ctx context.Context, sink Sink, event JobEvent) {
	if err := sink.RecordJob(ctx, event); err != nil {
		log.Warn().Err(err).Str("channel_ref", event.ChannelRef).Str("message_id", event.MessageID).
			Msg("metrics: record job failed")
	}
}

func sanitizeIdentifier(s string) error {
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return fmt.Errorf("identifier contains invalid characters: %s", s)
	}
	return nil
}
