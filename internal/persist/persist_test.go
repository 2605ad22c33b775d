package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

type fakeStore struct {
	rows map[string]model.Assignment // key: agencyRef+"|"+externalID
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]model.Assignment{}}
}

func (s *fakeStore) key(agencyRef, externalID string) string { return agencyRef + "|" + externalID }

func (s *fakeStore) FindByExternalID(_ context.Context, agencyRef, externalID string) (model.Assignment, bool, error) {
	a, ok := s.rows[s.key(agencyRef, externalID)]
	return a, ok, nil
}

func (s *fakeStore) Insert(_ context.Context, a model.Assignment) error {
	s.rows[s.key(a.AgencyRef, a.ExternalID)] = a
	return nil
}

func (s *fakeStore) MergeUpdate(_ context.Context, a model.Assignment) error {
	s.rows[s.key(a.AgencyRef, a.ExternalID)] = a
	return nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, agencyRef, externalID string, status model.Status) error {
	a := s.rows[s.key(agencyRef, externalID)]
	a.Status = status
	s.rows[s.key(agencyRef, externalID)] = a
	return nil
}

func TestExternalID_PrefersAssignmentCode(t *testing.T) {
	id := ExternalID(model.Assignment{AssignmentCode: "ABC123"}, Source{ChannelID: 1, MessageID: "5"})
	require.Equal(t, "ABC123", id)
}

func TestExternalID_FallsBackToTelegramComposite(t *testing.T) {
	id := ExternalID(model.Assignment{}, Source{ChannelID: 42, MessageID: "99"})
	require.Equal(t, "tg:42:99", id)
}

func TestExternalID_FallsBackToMessageLinkThenCID(t *testing.T) {
	id := ExternalID(model.Assignment{}, Source{MessageLink: "https://t.me/chan/5"})
	require.Equal(t, "https://t.me/chan/5", id)

	id2 := ExternalID(model.Assignment{}, Source{CID: "cid-xyz"})
	require.Equal(t, "cid-xyz", id2)
}

func TestPersist_MissInsertsAsOpenWithZeroBumpCount(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	res := Persist(context.Background(), store, model.Assignment{AssignmentCode: "X1", AgencyRef: "agency-a"}, Source{LastSeen: now})
	require.True(t, res.OK)
	require.Equal(t, ActionInserted, res.Action)
	require.Equal(t, model.StatusOpen, res.StatusCode)

	row, found, _ := store.FindByExternalID(context.Background(), "agency-a", "X1")
	require.True(t, found)
	require.Equal(t, 0, row.BumpCount)
	require.Equal(t, now, row.LastSeen)
}

func TestPersist_HitMergesAndBumpsWithoutOverwritingNonNull(t *testing.T) {
	store := newFakeStore()
	older := time.Now().UTC().Add(-time.Hour)
	existingRemark := "existing remark"
	store.rows["agency-a|X1"] = model.Assignment{
		AgencyRef: "agency-a", ExternalID: "X1", Status: model.StatusOpen,
		Addresses: []string{"Old Address"}, AdditionalRemarks: &existingRemark, BumpCount: 2, LastSeen: older,
	}

	newer := older.Add(2 * time.Hour)
	res := Persist(context.Background(), store, model.Assignment{AssignmentCode: "X1", AgencyRef: "agency-a"}, Source{LastSeen: newer})
	require.True(t, res.OK)
	require.Equal(t, ActionUpdated, res.Action)

	row, _, _ := store.FindByExternalID(context.Background(), "agency-a", "X1")
	require.Equal(t, 3, row.BumpCount)
	require.Equal(t, newer, row.LastSeen)
	require.Equal(t, []string{"Old Address"}, row.Addresses) // untouched: incoming had no addresses
	require.NotNil(t, row.AdditionalRemarks)
	require.Equal(t, "existing remark", *row.AdditionalRemarks)
}

func TestPersist_HitOverwritesFieldsThatAreNonNullOnIncoming(t *testing.T) {
	store := newFakeStore()
	store.rows["agency-a|X1"] = model.Assignment{
		AgencyRef: "agency-a", ExternalID: "X1", Status: model.StatusOpen,
		Addresses: []string{"Old Address"},
	}

	res := Persist(context.Background(), store, model.Assignment{
		AssignmentCode: "X1", AgencyRef: "agency-a", Addresses: []string{"New Address"},
	}, Source{LastSeen: time.Now().UTC()})
	require.True(t, res.OK)

	row, _, _ := store.FindByExternalID(context.Background(), "agency-a", "X1")
	require.Equal(t, []string{"New Address"}, row.Addresses)
}

func TestPersist_DeletedEventClosesExistingAssignment(t *testing.T) {
	store := newFakeStore()
	store.rows["agency-a|X1"] = model.Assignment{AgencyRef: "agency-a", ExternalID: "X1", Status: model.StatusOpen}

	res := Persist(context.Background(), store, model.Assignment{AssignmentCode: "X1", AgencyRef: "agency-a"}, Source{DeletedEvent: true})
	require.True(t, res.OK)
	require.Equal(t, model.StatusClosed, res.StatusCode)

	row, _, _ := store.FindByExternalID(context.Background(), "agency-a", "X1")
	require.Equal(t, model.StatusClosed, row.Status)
}

func TestPersist_DeletedEventForUnknownRowIsANoOp(t *testing.T) {
	store := newFakeStore()
	res := Persist(context.Background(), store, model.Assignment{AssignmentCode: "NOPE", AgencyRef: "agency-a"}, Source{DeletedEvent: true})
	require.True(t, res.OK)
	require.Equal(t, model.StatusDeleted, res.StatusCode)
}

func TestPersist_InvalidTransitionOnHitKeepsExistingStatus(t *testing.T) {
	store := newFakeStore()
	store.rows["agency-a|X1"] = model.Assignment{AgencyRef: "agency-a", ExternalID: "X1", Status: model.StatusDeleted}

	res := Persist(context.Background(), store, model.Assignment{AssignmentCode: "X1", AgencyRef: "agency-a"}, Source{LastSeen: time.Now().UTC()})
	require.True(t, res.OK)
	require.Equal(t, model.StatusDeleted, res.StatusCode)
}
