package rawstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New resolves a Store implementation. When dsn is empty the store falls
// back to an append-only JSONL file at jsonlPath (spec §4.1's "disabled
// store"), matching the teacher's memory/postgres backend-switch
// convention in internal/persistence/databases/factory.go.
func New(ctx context.Context, dsn string, jsonlPath string) (Store, func(), error) {
	if dsn == "" {
		st, err := NewJSONLStore(jsonlPath)
		if err != nil {
			return nil, func() {}, fmt.Errorf("rawstore: jsonl fallback: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, func() {}, fmt.Errorf("rawstore: connect postgres: %w", err)
	}
	st := NewPostgresStore(pool)
	if err := st.Init(ctx); err != nil {
		pool.Close()
		return nil, func() {}, err
	}
	return st, pool.Close, nil
}
