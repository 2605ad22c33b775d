package fanout

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/tutordex/core/internal/model"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

var _ Writer = (*mockWriter)(nil)

func (w *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaFanout_BroadcastWritesKeyedByAgencyAndExternalID(t *testing.T) {
	broadcast := &mockWriter{}
	f := &KafkaFanout{broadcastWriter: broadcast}

	a := model.Assignment{AgencyRef: "agency1", ExternalID: "ABC1234", AssignmentCode: "ABC1234"}
	require.NoError(t, f.Broadcast(context.Background(), a))

	require.Len(t, broadcast.messages, 1)
	require.Equal(t, "agency1:ABC1234", string(broadcast.messages[0].Key))

	var decoded model.Assignment
	require.NoError(t, json.Unmarshal(broadcast.messages[0].Value, &decoded))
	require.Equal(t, "ABC1234", decoded.AssignmentCode)
}

func TestKafkaFanout_NotifyDMNoopsWithoutDMWriter(t *testing.T) {
	broadcast := &mockWriter{}
	f := &KafkaFanout{broadcastWriter: broadcast}

	err := f.NotifyDM(context.Background(), model.Assignment{AgencyRef: "agency1", ExternalID: "ABC1234"})
	require.NoError(t, err)
}

func TestKafkaFanout_NotifyDMWritesWhenConfigured(t *testing.T) {
	broadcast := &mockWriter{}
	dm := &mockWriter{}
	f := &KafkaFanout{broadcastWriter: broadcast, dmWriter: dm}

	require.NoError(t, f.NotifyDM(context.Background(), model.Assignment{AgencyRef: "agency1", ExternalID: "ABC1234"}))
	require.Len(t, dm.messages, 1)
	require.Empty(t, broadcast.messages)
}

func TestKafkaFanout_CloseClosesBothWriters(t *testing.T) {
	broadcast := &mockWriter{}
	dm := &mockWriter{}
	f := &KafkaFanout{broadcastWriter: broadcast, dmWriter: dm}

	require.NoError(t, f.Close())
	require.True(t, broadcast.closed)
	require.True(t, dm.closed)
}
