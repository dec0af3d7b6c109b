package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fellanH/context-vault/internal/embed"
)

const vecTableName = "entries_vec"

// createVecTable attempts to create the dense-vector sidecar (spec §4.6:
// "entries_vec: dense-vector sidecar keyed by rowid"). sqlite-vec is only
// usable when the process was built with cgo and the extension registered
// (vec_cgo.go); when it is not, this fails and the caller disables vector
// search for the session rather than treating it as fatal - matching
// codenerd's initVecIndex "attempt and flag" pattern.
func createVecTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`,
		vecTableName, embed.Dimensions,
	))

	return err
}

func dropVecTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+vecTableName)

	return err
}

// rowIDForEntry looks up the current rowid for id. INSERT OR REPLACE can
// reassign rowids, so every vector write/delete re-resolves it rather than
// caching it (spec §4.6's "critical contract").
func rowIDForEntry(ctx context.Context, tx *sql.Tx, id string) (int64, bool, error) {
	var rowid int64

	err := tx.QueryRowContext(ctx, "SELECT rowid FROM "+tableName+" WHERE id = ?", id).Scan(&rowid)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	return rowid, true, nil
}

// writeVector upserts the embedding for id, keyed by its current rowid.
func writeVector(ctx context.Context, tx *sql.Tx, id string, vec []float32) error {
	rowid, ok, err := rowIDForEntry(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("resolve rowid for %s: %w", id, err)
	}

	if !ok {
		return fmt.Errorf("resolve rowid for %s: no entries row", id)
	}

	// vec0 virtual tables don't support ON CONFLICT upsert clauses; INSERT OR
	// REPLACE is the pattern sqlite-vec callers actually use to overwrite a
	// rowid's embedding.
	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+vecTableName+"(rowid, embedding) VALUES (?, ?)",
		rowid, embed.EncodeFloat32(vec),
	)

	return err
}

// deleteVectorByID translates id -> rowid -> vector delete before the main
// table row disappears (spec §4.6's explicit delete-ordering contract).
func deleteVectorByID(ctx context.Context, tx *sql.Tx, id string) error {
	rowid, ok, err := rowIDForEntry(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("resolve rowid for %s: %w", id, err)
	}

	if !ok {
		return nil
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM "+vecTableName+" WHERE rowid = ?", rowid)

	return err
}
