package worker

import (
	"context"

	"github.com/tutordex/core/internal/model"
)

// Broadcaster fans a newly inserted assignment out to whatever downstream
// channel/DM surface the deployment wires up. The standard pipeline only
// calls this on insert, never on a merge-update, per spec §4.10.
type Broadcaster interface {
	Broadcast(ctx context.Context, a model.Assignment) error
}

// DMNotifier sends a direct-message alert for a newly inserted assignment,
// kept separate from Broadcaster since a deployment may enable one without
// the other (EnableBroadcast/EnableDMs are independent config flags).
type DMNotifier interface {
	NotifyDM(ctx context.Context, a model.Assignment) error
}

// noopFanout satisfies both interfaces as a do-nothing default so the
// Worker never needs a nil check at the call site.
type noopFanout struct{}

func (noopFanout) Broadcast(ctx context.Context, a model.Assignment) error { return nil }
func (noopFanout) NotifyDM(ctx context.Context, a model.Assignment) error  { return nil }
