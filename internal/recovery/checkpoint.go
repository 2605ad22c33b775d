package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the resumable catchup snapshot: a per-channel cursor, the target
// timestamp catchup is driving every cursor toward, and a status the next
// run checks before deciding whether to resume or rebuild.
type State struct {
	Version    int                  `json:"version"`
	CreatedAt  time.Time            `json:"created_at"`
	TargetISO  time.Time            `json:"target_iso"`
	Cursors    map[string]time.Time `json:"cursors"`
	Status     string               `json:"status"` // running|ok
	LastUpdate time.Time            `json:"last_update_at"`
	Errors     []string             `json:"errors,omitempty"`
}

// Checkpointer loads and persists catchup State. The file-backed
// implementation below is the default; a database-backed one can satisfy
// the same interface without the worker caring which is wired.
type Checkpointer interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, s State) error
}

// FileCheckpointer persists State as JSON at Path, written atomically via a
// temp-file-then-rename so a crash mid-write never leaves a truncated
// checkpoint behind.
type FileCheckpointer struct {
	Path string
}

func (f FileCheckpointer) Load(_ context.Context) (State, bool, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("recovery: read checkpoint: %w", err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, false, fmt.Errorf("recovery: decode checkpoint: %w", err)
	}
	return s, true, nil
}

func (f FileCheckpointer) Save(_ context.Context, s State) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("recovery: create checkpoint dir: %w", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("recovery: encode checkpoint: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", f.Path, os.Getpid())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("recovery: write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("recovery: rename checkpoint into place: %w", err)
	}
	return nil
}
