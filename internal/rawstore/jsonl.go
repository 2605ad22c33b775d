package rawstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tutordex/core/internal/model"
)

// JSONLStore is the disabled-store fallback (spec §4.1): when no database
// credentials are configured, every write is appended to a single JSONL
// file instead, keyed by kind, so the pipeline survives outages of its own
// database.
type JSONLStore struct {
	mu     sync.Mutex
	file   *os.File
	nextID int64
	cache  map[int64]model.RawMessage
}

type jsonlRecord struct {
	Kind string `json:"kind"`
	At   time.Time `json:"at"`
	Data any    `json:"data"`
}

// NewJSONLStore opens (or creates) path in append mode.
func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonlstore: open %q: %w", path, err)
	}
	return &JSONLStore{file: f, cache: make(map[int64]model.RawMessage)}, nil
}

func (s *JSONLStore) append(kind string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := jsonlRecord{Kind: kind, At: time.Now().UTC(), Data: data}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonlstore: marshal %s: %w", kind, err)
	}
	b = append(b, '\n')
	if _, err := s.file.Write(b); err != nil {
		return fmt.Errorf("jsonlstore: write %s: %w", kind, err)
	}
	return nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *JSONLStore) UpsertChannel(ctx context.Context, ch model.Channel) error {
	return s.append("channel", ch)
}

func (s *JSONLStore) UpsertMessagesBatch(ctx context.Context, rows []model.RawMessage) (BatchResult, error) {
	res := BatchResult{}
	for _, m := range rows {
		res.Attempted++
		if !validRow(m) {
			continue
		}
		if err := s.append("message", m); err != nil {
			return res, err
		}
		s.mu.Lock()
		s.nextID++
		s.cache[s.nextID] = m
		s.mu.Unlock()
		res.Written++
	}
	return res, nil
}

func (s *JSONLStore) MarkDeleted(ctx context.Context, channelRef string, messageIDs []string) (int, error) {
	if err := s.append("delete", map[string]any{"channel_ref": channelRef, "message_ids": messageIDs}); err != nil {
		return 0, err
	}
	return len(messageIDs), nil
}

func (s *JSONLStore) CreateRun(ctx context.Context, run model.IngestionRun) (int64, error) {
	if err := s.append("run_start", run); err != nil {
		return 0, err
	}
	return time.Now().UnixNano(), nil
}

func (s *JSONLStore) FinishRun(ctx context.Context, runID int64, status model.RunStatus) error {
	return s.append("run_finish", map[string]any{"run_id": runID, "status": status})
}

func (s *JSONLStore) UpsertProgress(ctx context.Context, p model.RunProgress) error {
	return s.append("progress", p)
}

func (s *JSONLStore) GetLatestCursor(ctx context.Context, channelRef string) (Cursor, error) {
	// The JSONL fallback is a write-only outage buffer; it does not support
	// reconstructing a cursor by scanning history. Callers should treat a
	// !Found cursor as "start from the configured default lookback".
	return Cursor{}, nil
}

// GetByID serves from an in-process cache of rows written this session: the
// JSONL fallback has no indexed read path, so a row written before a
// process restart can't be recovered this way. Acceptable for an
// outage-of-last-resort buffer; the Worker treats a !found row as a
// skip-with-reason rather than a hard failure.
func (s *JSONLStore) GetByID(ctx context.Context, rawID int64) (model.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.cache[rawID]
	return m, ok, nil
}

// GetRuns always returns an empty slice: the JSONL fallback is a write-only
// outage buffer with no indexed read path, same limitation as
// GetLatestCursor above.
func (s *JSONLStore) GetRuns(ctx context.Context, filter RunFilter) ([]model.IngestionRun, error) {
	return nil, nil
}
