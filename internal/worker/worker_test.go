package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/filters"
	"github.com/tutordex/core/internal/llmextract"
	"github.com/tutordex/core/internal/metrics"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/pipeline"
	"github.com/tutordex/core/internal/queue"
	"github.com/tutordex/core/internal/rawstore"
)

// --- fakes -----------------------------------------------------------------

type fakeRawStore struct {
	rows map[int64]model.RawMessage
}

func (s *fakeRawStore) UpsertChannel(ctx context.Context, ch model.Channel) error { return nil }
func (s *fakeRawStore) UpsertMessagesBatch(ctx context.Context, rows []model.RawMessage) (rawstore.BatchResult, error) {
	return rawstore.BatchResult{Attempted: len(rows), Written: len(rows)}, nil
}
func (s *fakeRawStore) MarkDeleted(ctx context.Context, channelRef string, messageIDs []string) (int, error) {
	return 0, nil
}
func (s *fakeRawStore) CreateRun(ctx context.Context, run model.IngestionRun) (int64, error) {
	return 1, nil
}
func (s *fakeRawStore) FinishRun(ctx context.Context, runID int64, status model.RunStatus) error {
	return nil
}
func (s *fakeRawStore) UpsertProgress(ctx context.Context, p model.RunProgress) error { return nil }
func (s *fakeRawStore) GetLatestCursor(ctx context.Context, channelRef string) (rawstore.Cursor, error) {
	return rawstore.Cursor{}, nil
}
func (s *fakeRawStore) GetByID(ctx context.Context, rawID int64) (model.RawMessage, bool, error) {
	m, ok := s.rows[rawID]
	return m, ok, nil
}
func (s *fakeRawStore) GetRuns(ctx context.Context, filter rawstore.RunFilter) ([]model.IngestionRun, error) {
	return nil, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	updates []model.ExtractionJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, pipelineVersion string, raws []queue.RawRef, force bool) (int, error) {
	return len(raws), nil
}
func (q *fakeQueue) Claim(ctx context.Context, pipelineVersion string, limit int) ([]model.ExtractionJob, error) {
	return nil, nil
}
func (q *fakeQueue) RequeueStale(ctx context.Context, pipelineVersion string, olderThanSeconds int) (int, error) {
	return 0, nil
}
func (q *fakeQueue) UpdateStatus(ctx context.Context, job model.ExtractionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates = append(q.updates, job)
	return nil
}
func (q *fakeQueue) Backlog(ctx context.Context, pipelineVersion string) (int, error) { return 0, nil }

type fakeAssignmentStore struct {
	mu   sync.Mutex
	rows map[string]model.Assignment
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{rows: map[string]model.Assignment{}}
}

func (s *fakeAssignmentStore) key(agencyRef, externalID string) string { return agencyRef + "|" + externalID }

func (s *fakeAssignmentStore) FindByExternalID(_ context.Context, agencyRef, externalID string) (model.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[s.key(agencyRef, externalID)]
	return a, ok, nil
}

func (s *fakeAssignmentStore) Insert(_ context.Context, a model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[s.key(a.AgencyRef, a.ExternalID)] = a
	return nil
}

func (s *fakeAssignmentStore) MergeUpdate(_ context.Context, a model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[s.key(a.AgencyRef, a.ExternalID)] = a
	return nil
}

func (s *fakeAssignmentStore) UpdateStatus(_ context.Context, agencyRef, externalID string, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.rows[s.key(agencyRef, externalID)]
	a.Status = status
	s.rows[s.key(agencyRef, externalID)] = a
	return nil
}

type fakeLLM struct {
	result *llmextract.Result
	err    error
	calls  int
}

func (f *fakeLLM) Extract(ctx context.Context, text, channelHint, correlationID string) (*llmextract.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeFanout struct {
	broadcasts int
	dms        int
}

func (f *fakeFanout) Broadcast(ctx context.Context, a model.Assignment) error {
	f.broadcasts++
	return nil
}
func (f *fakeFanout) NotifyDM(ctx context.Context, a model.Assignment) error {
	f.dms++
	return nil
}

func newTestWorker(t *testing.T, raw model.RawMessage, llm *fakeLLM) (*Worker, *fakeQueue, *fakeAssignmentStore, *fakeFanout) {
	t.Helper()
	q := &fakeQueue{}
	store := newFakeAssignmentStore()
	fanout := &fakeFanout{}
	w := &Worker{
		Queue:       q,
		RawStore:    &fakeRawStore{rows: map[int64]model.RawMessage{1: raw}},
		Persist:     store,
		LLM:         llm,
		Broadcaster: fanout,
		DMs:         fanout,
		Metrics:     metrics.NoopSink{},
		AgencyRef:   "agency1",
		Config: Config{
			PipelineVersion:       "v1",
			MaxAttempts:           3,
			EnableBroadcast:       true,
			EnableDMs:             true,
			CompilationThresholds: filters.DefaultCompilationThresholds,
			AssignmentCodePattern: filters.DefaultAssignmentCodePattern,
			IdentifierPattern:     filters.DefaultAssignmentCodePattern,
		},
	}
	return w, q, store, fanout
}

func baseJob(rawID int64) model.ExtractionJob {
	return model.ExtractionJob{
		PipelineVersion: "v1",
		RawID:           rawID,
		ChannelRef:      "channel1",
		MessageID:       "100",
		Status:          model.ExtractionProcessing,
	}
}

func validAssignment() model.Assignment {
	return model.Assignment{
		AssignmentCode:      "ABC1234",
		AcademicDisplayText: "Sec 2 Math",
		LearningMode:        model.LearningModeOnline,
		LessonSchedule:      []string{"Mon 4-6pm"},
	}
}

// --- tests -------------------------------------------------------------

func TestProcessJob_StandardPathInsertsAndBroadcasts(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "ABC1234 Sec 2 Math tutor needed, online, Mon 4-6pm"}
	llm := &fakeLLM{result: &llmextract.Result{Assignment: validAssignment()}}
	w, q, store, fanout := newTestWorker(t, raw, llm)

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionOK, q.updates[0].Status)
	require.NotEmpty(t, q.updates[0].CanonicalJSON)

	stored, ok := store.rows["agency1|ABC1234"]
	require.True(t, ok)
	require.Equal(t, "ABC1234", stored.AssignmentCode)
	require.Equal(t, 1, fanout.broadcasts)
	require.Equal(t, 1, fanout.dms)
}

func TestProcessJob_MergeDoesNotRebroadcast(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "ABC1234 Sec 2 Math tutor needed, online, Mon 4-6pm"}
	llm := &fakeLLM{result: &llmextract.Result{Assignment: validAssignment()}}
	w, _, store, fanout := newTestWorker(t, raw, llm)
	require.NoError(t, store.Insert(context.Background(), model.Assignment{
		AgencyRef: "agency1", ExternalID: "ABC1234", AssignmentCode: "ABC1234", Status: model.StatusOpen,
	}))

	w.processJob(context.Background(), baseJob(1))

	require.Equal(t, 0, fanout.broadcasts)
	require.Equal(t, 0, fanout.dms)
}

func TestProcessJob_GuardSkipsEmptyText(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "   "}
	llm := &fakeLLM{}
	w, q, _, _ := newTestWorker(t, raw, llm)

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionSkipped, q.updates[0].Status)
	require.Equal(t, "empty_text", q.updates[0].Meta.FilterReason)
	require.Zero(t, llm.calls)
}

func TestProcessJob_GuardBumpsByCodeWithoutCallingLLM(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "101", IsForward: true, Text: "Fwd: ABC1234 still available"}
	llm := &fakeLLM{}
	w, q, store, fanout := newTestWorker(t, raw, llm)
	require.NoError(t, store.Insert(context.Background(), model.Assignment{
		AgencyRef: "agency1", ExternalID: "ABC1234", AssignmentCode: "ABC1234", Status: model.StatusOpen, BumpCount: 2,
	}))

	w.processJob(context.Background(), baseJob(1))

	require.Zero(t, llm.calls)
	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionOK, q.updates[0].Status)
	stored, ok := store.rows["agency1|ABC1234"]
	require.True(t, ok)
	require.Equal(t, 3, stored.BumpCount)
	require.Zero(t, fanout.broadcasts)
}

func TestProcessJob_GuardClosesDeletedAssignment(t *testing.T) {
	now := time.Now().UTC()
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", DeletedAt: &now}
	llm := &fakeLLM{}
	w, q, store, _ := newTestWorker(t, raw, llm)
	require.NoError(t, store.Insert(context.Background(), model.Assignment{
		AgencyRef: "agency1", ExternalID: "tg:1:100", Status: model.StatusOpen,
	}))

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionOK, q.updates[0].Status)
	stored, ok := store.rows["agency1|tg:1:100"]
	require.True(t, ok)
	require.Equal(t, model.StatusClosed, stored.Status)
}

func TestProcessJob_NonAssignmentTextIsSkipped(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "This assignment has been taken, thanks all!"}
	llm := &fakeLLM{}
	w, q, _, _ := newTestWorker(t, raw, llm)

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionSkipped, q.updates[0].Status)
	require.Zero(t, llm.calls)
}

func TestProcessJob_RetriableLLMFailureGoesBackToPendingWithAttemptsLeft(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "ABC1234 Sec 2 Math tutor needed"}
	llm := &fakeLLM{err: pipeline.NewStageError(pipeline.CodeLLMTimeout, fmt.Errorf("simulated timeout"))}
	w, q, _, _ := newTestWorker(t, raw, llm)

	job := baseJob(1)
	job.Meta.Attempt = 0
	w.processJob(context.Background(), job)

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionPending, q.updates[0].Status)
}

func TestProcessJob_NonRetriableLLMFailureIsTerminal(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "ABC1234 Sec 2 Math tutor needed"}
	llm := &fakeLLM{err: pipeline.NewStageError(pipeline.CodeLLMInvalidJSON, fmt.Errorf("bad json"))}
	w, q, _, _ := newTestWorker(t, raw, llm)

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionFailed, q.updates[0].Status)
}

func TestProcessJob_SchemaValidationFailureIsTerminal(t *testing.T) {
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: "ABC1234 tutor needed"}
	incomplete := model.Assignment{AssignmentCode: "ABC1234"} // no schedule, no location -> fails schema.Validate
	llm := &fakeLLM{result: &llmextract.Result{Assignment: incomplete}}
	w, q, _, _ := newTestWorker(t, raw, llm)

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionFailed, q.updates[0].Status)
	require.NotEmpty(t, q.updates[0].ErrorJSON)
}

func TestProcessJob_CompilationSplitsAndPersistsEachSegment(t *testing.T) {
	text := "1) ABC1234 Sec 2 Math online Mon 4-6pm $40/h\n\n" +
		"2) DEF5678 Sec 3 Chem online Tue 5-7pm $45/h\n\n" +
		"3) GHI9012 Sec 1 English online Wed 3-5pm $35/h"
	raw := model.RawMessage{ChannelRef: "channel1", ChannelID: 1, MessageID: "100", Text: text}
	llm := &fakeLLM{result: &llmextract.Result{Assignment: validAssignment()}}
	w, q, _, _ := newTestWorker(t, raw, llm)

	w.processJob(context.Background(), baseJob(1))

	require.Len(t, q.updates, 1)
	require.Equal(t, model.ExtractionOK, q.updates[0].Status)
	require.GreaterOrEqual(t, llm.calls, 1)
}
