package rawstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

func TestJSONLStore_DropsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")
	st, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer st.Close()

	rows := []model.RawMessage{
		{ChannelRef: "c1", MessageID: "1", MessageDate: time.Now(), SourceObject: []byte(`{}`)},
		{ChannelRef: "c1", MessageID: "", MessageDate: time.Now(), SourceObject: []byte(`{}`)}, // missing message id
		{ChannelRef: "", MessageID: "3", MessageDate: time.Now(), SourceObject: []byte(`{}`)},  // missing channel ref
	}
	res, err := st.UpsertMessagesBatch(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempted)
	require.Equal(t, 1, res.Written)
}

func TestJSONLStore_MarkDeletedCountsAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")
	st, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer st.Close()

	n, err := st.MarkDeleted(context.Background(), "c1", []string{"1", "2"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
