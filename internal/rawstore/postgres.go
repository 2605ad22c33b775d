package rawstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/observability"
)

// PostgresStore is a pgx-backed implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore over an existing pool. Callers
// must invoke Init once at startup.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the Raw Store's tables if they do not already exist. This is
// a best-effort bootstrap for dev/small deployments; production schemas
// should be managed by an external migration tool.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS channels (
	channel_ref TEXT PRIMARY KEY,
	numeric_id BIGINT NOT NULL,
	display_title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS raw_messages (
	channel_ref TEXT NOT NULL,
	message_id TEXT NOT NULL,
	message_date TIMESTAMPTZ NOT NULL,
	edit_date TIMESTAMPTZ,
	is_forward BOOLEAN NOT NULL DEFAULT FALSE,
	is_reply BOOLEAN NOT NULL DEFAULT FALSE,
	reply_to_msg_id TEXT NOT NULL DEFAULT '',
	raw_text TEXT NOT NULL DEFAULT '',
	entities JSONB,
	sender_id BIGINT NOT NULL DEFAULT 0,
	view_count BIGINT NOT NULL DEFAULT 0,
	forward_count BIGINT NOT NULL DEFAULT 0,
	reply_count BIGINT NOT NULL DEFAULT 0,
	deleted_at TIMESTAMPTZ,
	last_seen TIMESTAMPTZ NOT NULL,
	source_object JSONB NOT NULL,
	id BIGSERIAL,
	PRIMARY KEY (channel_ref, message_id)
);
CREATE INDEX IF NOT EXISTS idx_raw_messages_channel_date ON raw_messages (channel_ref, message_date DESC);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	run_id BIGSERIAL PRIMARY KEY,
	run_type TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	channels TEXT[] NOT NULL DEFAULT '{}',
	meta JSONB
);

CREATE TABLE IF NOT EXISTS run_progress (
	run_id BIGINT NOT NULL REFERENCES ingestion_runs(run_id),
	channel_ref TEXT NOT NULL,
	scanned BIGINT NOT NULL DEFAULT 0,
	inserted BIGINT NOT NULL DEFAULT 0,
	updated BIGINT NOT NULL DEFAULT 0,
	errors BIGINT NOT NULL DEFAULT 0,
	last_message_id TEXT NOT NULL DEFAULT '',
	last_message_date TIMESTAMPTZ,
	PRIMARY KEY (run_id, channel_ref)
);
`)
	if err != nil {
		return fmt.Errorf("rawstore: init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertChannel(ctx context.Context, ch model.Channel) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO channels (channel_ref, numeric_id, display_title)
VALUES ($1, $2, $3)
ON CONFLICT (channel_ref) DO UPDATE SET
	numeric_id = EXCLUDED.numeric_id,
	display_title = EXCLUDED.display_title
`, ch.ChannelRef, ch.NumericID, ch.DisplayTitle)
	if err != nil {
		return fmt.Errorf("rawstore: upsert channel %q: %w", ch.ChannelRef, err)
	}
	return nil
}

func (s *PostgresStore) UpsertMessagesBatch(ctx context.Context, rows []model.RawMessage) (BatchResult, error) {
	res := BatchResult{}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, fmt.Errorf("rawstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range rows {
		res.Attempted++
		if !validRow(m) {
			observability.LoggerWithTrace(ctx).Warn().
				Str("channel_ref", m.ChannelRef).Str("message_id", m.MessageID).
				Msg("raw_row_missing_required_fields")
			continue
		}
		entities := m.Entities
		if entities == nil {
			entities = []byte("null")
		}
		_, err := tx.Exec(ctx, `
INSERT INTO raw_messages (
	channel_ref, message_id, message_date, edit_date, is_forward, is_reply,
	reply_to_msg_id, raw_text, entities, sender_id, view_count, forward_count,
	reply_count, deleted_at, last_seen, source_object
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (channel_ref, message_id) DO UPDATE SET
	raw_text = EXCLUDED.raw_text,
	edit_date = EXCLUDED.edit_date,
	entities = EXCLUDED.entities,
	view_count = EXCLUDED.view_count,
	forward_count = EXCLUDED.forward_count,
	reply_count = EXCLUDED.reply_count,
	last_seen = EXCLUDED.last_seen,
	source_object = EXCLUDED.source_object
`,
			m.ChannelRef, m.MessageID, m.MessageDate, m.EditDate, m.IsForward, m.IsReply,
			m.ReplyToMsgID, m.Text, entities, m.SenderID, m.ViewCount, m.ForwardCount,
			m.ReplyCount, m.DeletedAt, m.LastSeen, m.SourceObject,
		)
		if err != nil {
			return res, fmt.Errorf("rawstore: upsert message %s/%s: %w", m.ChannelRef, m.MessageID, err)
		}
		res.Written++
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("rawstore: commit batch: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) MarkDeleted(ctx context.Context, channelRef string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE raw_messages SET deleted_at = now()
WHERE channel_ref = $1 AND message_id = ANY($2) AND deleted_at IS NULL
`, channelRef, messageIDs)
	if err != nil {
		return 0, fmt.Errorf("rawstore: mark deleted: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.IngestionRun) (int64, error) {
	meta, err := json.Marshal(run.Meta)
	if err != nil {
		return 0, fmt.Errorf("rawstore: marshal run meta: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
INSERT INTO ingestion_runs (run_type, status, started_at, channels, meta)
VALUES ($1, $2, $3, $4, $5) RETURNING run_id
`, run.RunType, run.Status, run.StartedAt, run.Channels, meta).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("rawstore: create run: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID int64, status model.RunStatus) error {
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_runs SET status = $2, finished_at = now() WHERE run_id = $1
`, runID, status)
	if err != nil {
		return fmt.Errorf("rawstore: finish run %d: %w", runID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertProgress(ctx context.Context, p model.RunProgress) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO run_progress (run_id, channel_ref, scanned, inserted, updated, errors, last_message_id, last_message_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (run_id, channel_ref) DO UPDATE SET
	scanned = EXCLUDED.scanned,
	inserted = EXCLUDED.inserted,
	updated = EXCLUDED.updated,
	errors = EXCLUDED.errors,
	last_message_id = EXCLUDED.last_message_id,
	last_message_date = EXCLUDED.last_message_date
`, p.RunID, p.ChannelRef, p.Scanned, p.Inserted, p.Updated, p.Errors, p.LastMessageID, p.LastMessageDate)
	if err != nil {
		return fmt.Errorf("rawstore: upsert progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestCursor(ctx context.Context, channelRef string) (Cursor, error) {
	var c Cursor
	var iso time.Time
	var msgID string
	err := s.pool.QueryRow(ctx, `
SELECT message_date, message_id FROM raw_messages
WHERE channel_ref = $1
ORDER BY message_date DESC LIMIT 1
`, channelRef).Scan(&iso, &msgID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Cursor{}, nil
		}
		return c, fmt.Errorf("rawstore: latest cursor for %q: %w", channelRef, err)
	}
	return Cursor{ISO: iso, MessageID: msgID, Found: true}, nil
}

func (s *PostgresStore) GetRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	switch {
	case filter.RunID != 0:
		rows, err = s.pool.Query(ctx, `
SELECT run_id, run_type, status, started_at, finished_at, channels, meta
FROM ingestion_runs WHERE run_id = $1
`, filter.RunID)
	case filter.RunType != "":
		rows, err = s.pool.Query(ctx, `
SELECT run_id, run_type, status, started_at, finished_at, channels, meta
FROM ingestion_runs WHERE run_type = $1 ORDER BY started_at DESC LIMIT $2
`, filter.RunType, limit)
	default:
		rows, err = s.pool.Query(ctx, `
SELECT run_id, run_type, status, started_at, finished_at, channels, meta
FROM ingestion_runs ORDER BY started_at DESC LIMIT $1
`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("rawstore: get runs: %w", err)
	}
	defer rows.Close()

	var out []model.IngestionRun
	for rows.Next() {
		var r model.IngestionRun
		var meta []byte
		if err := rows.Scan(&r.RunID, &r.RunType, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Channels, &meta); err != nil {
			return nil, fmt.Errorf("rawstore: scan run: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Meta); err != nil {
				return nil, fmt.Errorf("rawstore: unmarshal run meta: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rawstore: get runs: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, rawID int64) (model.RawMessage, bool, error) {
	var m model.RawMessage
	var entities, sourceObj []byte
	err := s.pool.QueryRow(ctx, `
SELECT channel_ref, message_id, message_date, edit_date, is_forward, is_reply, reply_to_msg_id,
	raw_text, entities, sender_id, view_count, forward_count, reply_count, deleted_at, last_seen, source_object
FROM raw_messages WHERE id = $1
`, rawID).Scan(
		&m.ChannelRef, &m.MessageID, &m.MessageDate, &m.EditDate, &m.IsForward, &m.IsReply, &m.ReplyToMsgID,
		&m.Text, &entities, &m.SenderID, &m.ViewCount, &m.ForwardCount, &m.ReplyCount, &m.DeletedAt, &m.LastSeen, &sourceObj,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.RawMessage{}, false, nil
		}
		return model.RawMessage{}, false, fmt.Errorf("rawstore: get by id %d: %w", rawID, err)
	}
	m.Entities = entities
	m.SourceObject = sourceObj
	return m, true, nil
}

// RecentRow pairs a raw message with its store-assigned row id, the shape
// ListSince returns so a caller can force-enqueue by id without a second
// natural-key lookup.
type RecentRow struct {
	RawID   int64
	Message model.RawMessage
}

// ListSince returns every non-deleted message at or after since, optionally
// narrowed to channelRefs (all channels if empty). Backs the
// reprocess-recent CLI tool; not part of the Store interface because the
// JSONL fallback store has no indexed read path to support it (same
// limitation documented on GetRuns/GetLatestCursor).
func (s *PostgresStore) ListSince(ctx context.Context, since time.Time, channelRefs []string) ([]RecentRow, error) {
	var rows pgx.Rows
	var err error
	if len(channelRefs) > 0 {
		rows, err = s.pool.Query(ctx, `
SELECT id, channel_ref, message_id, message_date, edit_date, is_forward, is_reply, reply_to_msg_id,
	raw_text, entities, sender_id, view_count, forward_count, reply_count, deleted_at, last_seen, source_object
FROM raw_messages
WHERE message_date >= $1 AND channel_ref = ANY($2) AND deleted_at IS NULL
ORDER BY message_date ASC
`, since, channelRefs)
	} else {
		rows, err = s.pool.Query(ctx, `
SELECT id, channel_ref, message_id, message_date, edit_date, is_forward, is_reply, reply_to_msg_id,
	raw_text, entities, sender_id, view_count, forward_count, reply_count, deleted_at, last_seen, source_object
FROM raw_messages
WHERE message_date >= $1 AND deleted_at IS NULL
ORDER BY message_date ASC
`, since)
	}
	if err != nil {
		return nil, fmt.Errorf("rawstore: list since %s: %w", since, err)
	}
	defer rows.Close()

	var out []RecentRow
	for rows.Next() {
		var r RecentRow
		var entities, sourceObj []byte
		if err := rows.Scan(&r.RawID, &r.Message.ChannelRef, &r.Message.MessageID, &r.Message.MessageDate, &r.Message.EditDate,
			&r.Message.IsForward, &r.Message.IsReply, &r.Message.ReplyToMsgID, &r.Message.Text, &entities,
			&r.Message.SenderID, &r.Message.ViewCount, &r.Message.ForwardCount, &r.Message.ReplyCount,
			&r.Message.DeletedAt, &r.Message.LastSeen, &sourceObj); err != nil {
			return nil, fmt.Errorf("rawstore: scan recent row: %w", err)
		}
		r.Message.Entities = entities
		r.Message.SourceObject = sourceObj
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rawstore: list since %s: %w", since, err)
	}
	return out, nil
}
