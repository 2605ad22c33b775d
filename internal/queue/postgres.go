package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutordex/core/internal/model"
)

// PostgresQueue is a pgx-backed Queue implementation.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

func NewPostgresQueue(pool *pgxpool.Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool}
}

// Init creates the extractions table if it does not already exist.
func (q *PostgresQueue) Init(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS extractions (
	pipeline_version TEXT NOT NULL,
	raw_id BIGINT NOT NULL,
	channel_ref TEXT NOT NULL,
	message_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	meta JSONB NOT NULL DEFAULT '{}',
	canonical_json JSONB,
	llm_model TEXT NOT NULL DEFAULT '',
	error_json JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pipeline_version, raw_id)
);
CREATE INDEX IF NOT EXISTS idx_extractions_claim ON extractions (pipeline_version, status, updated_at);
`)
	if err != nil {
		return fmt.Errorf("queue: init schema: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, pipelineVersion string, raws []RawRef, force bool) (int, error) {
	if len(raws) == 0 {
		return 0, nil
	}
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("queue: begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	count := 0
	for _, r := range raws {
		var rowsAffected int64
		if force {
			ct, err := tx.Exec(ctx, `
INSERT INTO extractions (pipeline_version, raw_id, channel_ref, message_id, status, meta)
VALUES ($1, COALESCE(NULLIF($2, 0), (SELECT id FROM raw_messages WHERE channel_ref = $3 AND message_id = $4)), $3, $4, 'pending', '{"attempt":0}'::jsonb)
ON CONFLICT (pipeline_version, raw_id) DO UPDATE SET
	status = 'pending',
	meta = jsonb_set(extractions.meta, '{attempt}', to_jsonb(COALESCE((extractions.meta->>'attempt')::int, 0) + 1)),
	updated_at = now()
`, pipelineVersion, r.RawID, r.ChannelRef, r.MessageID)
			if err != nil {
				return count, fmt.Errorf("queue: enqueue(force) raw_id=%d: %w", r.RawID, err)
			}
			rowsAffected = ct.RowsAffected()
		} else {
			ct, err := tx.Exec(ctx, `
INSERT INTO extractions (pipeline_version, raw_id, channel_ref, message_id, status, meta)
VALUES ($1, COALESCE(NULLIF($2, 0), (SELECT id FROM raw_messages WHERE channel_ref = $3 AND message_id = $4)), $3, $4, 'pending', '{"attempt":0}'::jsonb)
ON CONFLICT (pipeline_version, raw_id) DO NOTHING
`, pipelineVersion, r.RawID, r.ChannelRef, r.MessageID)
			if err != nil {
				return count, fmt.Errorf("queue: enqueue raw_id=%d: %w", r.RawID, err)
			}
			rowsAffected = ct.RowsAffected()
		}
		if rowsAffected > 0 {
			count++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return count, fmt.Errorf("queue: commit enqueue: %w", err)
	}
	return count, nil
}

func (q *PostgresQueue) Claim(ctx context.Context, pipelineVersion string, limit int) ([]model.ExtractionJob, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("queue: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT pipeline_version, raw_id, channel_ref, message_id, status, meta, canonical_json, llm_model, error_json, created_at, updated_at
FROM extractions
WHERE pipeline_version = $1 AND status = 'pending'
ORDER BY created_at
LIMIT $2
FOR UPDATE SKIP LOCKED
`, pipelineVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: select for claim: %w", err)
	}

	var ids []int64
	var jobs []model.ExtractionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		jobs = append(jobs, j)
		ids = append(ids, j.RawID)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, fmt.Errorf("queue: claim rows: %w", rows.Err())
	}

	if len(ids) > 0 {
		_, err = tx.Exec(ctx, `
UPDATE extractions SET status = 'processing', updated_at = now()
WHERE pipeline_version = $1 AND raw_id = ANY($2)
`, pipelineVersion, ids)
		if err != nil {
			return nil, fmt.Errorf("queue: flip claimed to processing: %w", err)
		}
		for i := range jobs {
			jobs[i].Status = model.ExtractionProcessing
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("queue: commit claim: %w", err)
	}
	return jobs, nil
}

func (q *PostgresQueue) RequeueStale(ctx context.Context, pipelineVersion string, olderThanSeconds int) (int, error) {
	tag, err := q.pool.Exec(ctx, `
UPDATE extractions SET
	status = 'pending',
	meta = jsonb_set(jsonb_set(meta, '{attempt}', to_jsonb(COALESCE((meta->>'attempt')::int, 0) + 1)), '{requeued_at}', to_jsonb(now())),
	updated_at = now()
WHERE pipeline_version = $1 AND status = 'processing'
  AND updated_at < now() - make_interval(secs => $2)
`, pipelineVersion, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("queue: requeue stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (q *PostgresQueue) UpdateStatus(ctx context.Context, job model.ExtractionJob) error {
	meta, err := json.Marshal(job.Meta)
	if err != nil {
		return fmt.Errorf("queue: marshal meta: %w", err)
	}
	_, err = q.pool.Exec(ctx, `
UPDATE extractions SET
	status = $3, meta = $4, canonical_json = $5, llm_model = $6, error_json = $7, updated_at = now()
WHERE pipeline_version = $1 AND raw_id = $2
`, job.PipelineVersion, job.RawID, job.Status, meta, nullableJSON(job.CanonicalJSON), job.LLMModel, nullableJSON(job.ErrorJSON))
	if err != nil {
		return fmt.Errorf("queue: update status raw_id=%d: %w", job.RawID, err)
	}
	return nil
}

func (q *PostgresQueue) Backlog(ctx context.Context, pipelineVersion string) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
SELECT count(*) FROM extractions WHERE pipeline_version = $1 AND status IN ('pending', 'processing')
`, pipelineVersion).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: backlog: %w", err)
	}
	return n, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// scanner is the subset of pgx.Rows used by scanJob, so it also works over
// a single-row pgx.Row via QueryRow wrapping (not used currently but kept
// narrow for testability).
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (model.ExtractionJob, error) {
	var j model.ExtractionJob
	var metaRaw []byte
	var canonical, errJSON []byte
	err := row.Scan(
		&j.PipelineVersion, &j.RawID, &j.ChannelRef, &j.MessageID, &j.Status,
		&metaRaw, &canonical, &j.LLMModel, &errJSON, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, fmt.Errorf("queue: scan job: %w", err)
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &j.Meta); err != nil {
			return j, fmt.Errorf("queue: unmarshal meta: %w", err)
		}
	}
	j.CanonicalJSON = canonical
	j.ErrorJSON = errJSON
	return j, nil
}
