package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/objectstore"
)

func TestObjectStoreArchiver_PutThenGetRoundTrips(t *testing.T) {
	a := NewObjectStoreArchiver(objectstore.NewMemoryStore())
	ctx := context.Background()

	raw := model.RawMessage{
		ChannelRef:   "chan1",
		MessageID:    "42",
		SourceObject: []byte(`{"id":42,"text":"hello"}`),
	}
	require.NoError(t, a.Put(ctx, "chan1", "42", raw))

	got, found, err := a.Get(ctx, "chan1", "42")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, raw.SourceObject, got.SourceObject)
	require.Equal(t, "chan1", got.ChannelRef)
	require.Equal(t, "42", got.MessageID)
}

func TestObjectStoreArchiver_GetMissingReturnsNotFound(t *testing.T) {
	a := NewObjectStoreArchiver(objectstore.NewMemoryStore())
	_, found, err := a.Get(context.Background(), "chan1", "nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestObjectStoreArchiver_PutSkipsEmptyPayload(t *testing.T) {
	a := NewObjectStoreArchiver(objectstore.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, "chan1", "43", model.RawMessage{ChannelRef: "chan1", MessageID: "43"}))
	_, found, err := a.Get(ctx, "chan1", "43")
	require.NoError(t, err)
	require.False(t, found)
}
