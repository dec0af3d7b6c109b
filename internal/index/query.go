package index

import (
	"context"
	"database/sql"

	"github.com/fellanH/context-vault/pkg/mddb"
)

// Exported table names so internal/search can build entries/entries_fts/
// entries_vec SQL without reaching into this package's unexported
// constants.
const (
	EntriesTable    = tableName
	EntriesFTSTable = ftsTableName
	EntriesVecTable = vecTableName
)

// Query runs fn against the index's underlying SQLite handle under mddb's
// read lock - the same access pattern Store itself uses for GetByIdentity
// and reconciliation snapshots (store.go, reconcile.go). internal/search
// uses this directly instead of duplicating that plumbing or exposing the
// *mddb.MDDB[entry.Entry] field itself.
func Query[R any](ctx context.Context, s *Store, fn func(db *sql.DB) (R, error)) (R, error) {
	return mddb.Query(ctx, s.db, fn)
}
