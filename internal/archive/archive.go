// Package archive persists a durable copy of each raw source message to
// object storage, independent of the raw_messages table, so a botched
// migration or retention sweep on Postgres doesn't take the only copy of a
// message's original payload with it.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tutordex/core/internal/config"
	"github.com/tutordex/core/internal/model"
	"github.com/tutordex/core/internal/objectstore"
)

// Archiver stores and retrieves the raw JSON payload of a source message,
// keyed by channel and message id.
type Archiver interface {
	Put(ctx context.Context, channelRef, messageID string, raw model.RawMessage) error
	Get(ctx context.Context, channelRef, messageID string) (model.RawMessage, bool, error)
}

// ObjectStoreArchiver implements Archiver over any objectstore.ObjectStore,
// most commonly an S3-backed one built by NewS3FromConfig.
type ObjectStoreArchiver struct {
	store objectstore.ObjectStore
}

// NewObjectStoreArchiver wraps an already-constructed object store.
func NewObjectStoreArchiver(store objectstore.ObjectStore) *ObjectStoreArchiver {
	return &ObjectStoreArchiver{store: store}
}

// NewS3FromConfig builds an Archiver backed by S3 (or an S3-compatible
// endpoint) from the raw-archive section of Config. Callers should check
// cfg.Bucket != "" before wiring this in.
func NewS3FromConfig(ctx context.Context, cfg config.S3Config) (*ObjectStoreArchiver, error) {
	store, err := objectstore.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: build s3 store: %w", err)
	}
	return NewObjectStoreArchiver(store), nil
}

func key(channelRef, messageID string) string {
	return fmt.Sprintf("%s/%s.json", channelRef, messageID)
}

// Ping verifies connectivity to the underlying object store, when the store
// supports it (an S3-backed store does; the in-process MemoryStore used in
// tests reports success unconditionally since there's nothing to dial).
// Used by `tutordex collector status` to surface archive reachability
// alongside ingestion run history.
func (a *ObjectStoreArchiver) Ping(ctx context.Context) error {
	type pinger interface{ Ping(ctx context.Context) error }
	if p, ok := a.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Put archives raw's SourceObject (the provider's original payload) under a
// key derived from channel and message id. A later Put for the same key
// overwrites the prior copy, matching the edit-in-place semantics of
// raw_messages itself.
func (a *ObjectStoreArchiver) Put(ctx context.Context, channelRef, messageID string, raw model.RawMessage) error {
	if len(raw.SourceObject) == 0 {
		return nil
	}
	_, err := a.store.Put(ctx, key(channelRef, messageID), bytes.NewReader(raw.SourceObject), objectstore.PutOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("archive: put %s/%s: %w", channelRef, messageID, err)
	}
	return nil
}

// Get fetches a previously archived message's original payload back as a
// bare model.RawMessage carrying just ChannelRef, MessageID, SourceObject
// and LastSeen; callers needing the full row still query raw_messages.
func (a *ObjectStoreArchiver) Get(ctx context.Context, channelRef, messageID string) (model.RawMessage, bool, error) {
	body, attrs, err := a.store.Get(ctx, key(channelRef, messageID))
	if err != nil {
		if err == objectstore.ErrNotFound {
			return model.RawMessage{}, false, nil
		}
		return model.RawMessage{}, false, fmt.Errorf("archive: get %s/%s: %w", channelRef, messageID, err)
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return model.RawMessage{}, false, fmt.Errorf("archive: read %s/%s: %w", channelRef, messageID, err)
	}

	lastSeen := attrs.LastModified
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}
	return model.RawMessage{
		ChannelRef:   channelRef,
		MessageID:    messageID,
		SourceObject: buf.Bytes(),
		LastSeen:     lastSeen,
	}, true, nil
}
