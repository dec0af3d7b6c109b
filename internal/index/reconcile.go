package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fellanH/context-vault/pkg/mddb"
)

// Mode selects a reconciliation strategy (spec §4.7: "reconcile(mode) ->
// {added, updated, unchanged, removed} where mode in {full, add-only}").
type Mode string

const (
	// ModeFull rebuilds the whole index from the vault's files, detecting
	// additions, content changes, and removals.
	ModeFull Mode = "full"

	// ModeAddOnly only discovers new and changed files via mtime/size,
	// skipping the full content_hash diff a full reindex performs - the
	// fast path for session cold-start when a full reindex already ran
	// recently.
	ModeAddOnly Mode = "add-only"
)

// Result reports what a reconciliation did.
type Result struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
}

// reconcileFuture is the single-flight promise a caller racing an in-flight
// Reconcile joins instead of starting a second scan (spec §4.7's
// concurrency guard). It is published under reconcileMu before the scan
// itself starts, so a racing caller can never miss it.
type reconcileFuture struct {
	done   chan struct{}
	result Result
	err    error
}

// Reconcile scans the vault and brings the index up to date, then prunes
// expired rows. Only one reconciliation runs per Store at a time; concurrent
// callers join the in-flight one rather than starting a second scan.
func (s *Store) Reconcile(ctx context.Context, mode Mode) (Result, error) {
	s.reconcileMu.Lock()

	if s.reconcile != nil {
		future := s.reconcile
		s.reconcileMu.Unlock()

		return joinReconcile(ctx, future)
	}

	future := &reconcileFuture{done: make(chan struct{})}
	s.reconcile = future
	s.reconcileMu.Unlock()

	future.result, future.err = s.runReconcile(ctx, mode)
	close(future.done)

	s.reconcileMu.Lock()
	s.reconcile = nil
	s.reconcileMu.Unlock()

	return future.result, future.err
}

func joinReconcile(ctx context.Context, future *reconcileFuture) (Result, error) {
	select {
	case <-future.done:
		return future.result, future.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Store) runReconcile(ctx context.Context, mode Mode) (Result, error) {
	var (
		result Result
		err    error
	)

	switch mode {
	case ModeAddOnly:
		result, err = s.reconcileAddOnly(ctx)
	default:
		result, err = s.reconcileFull(ctx)
	}

	if err != nil {
		return result, err
	}

	removed, err := s.pruneExpired(ctx)
	if err != nil {
		return result, fmt.Errorf("prune expired: %w", err)
	}

	result.Removed += removed

	return result, nil
}

// reconcileFull wraps pkg/mddb.Reindex, which rebuilds the whole table but
// reports only a bare total. The {added,updated,unchanged,removed} split
// spec §4.7 asks for is reconstructed by diffing the content_hash column
// mddb.Reindex wrote (via columnValues) against the snapshot taken just
// before the rebuild - mddb's own parallel file walk (pkg/mddb/reindex.go)
// is not reused directly since it is internal to pkg/mddb; this diff only
// needs what mddb.Reindex leaves behind in SQL.
func (s *Store) reconcileFull(ctx context.Context) (Result, error) {
	before, err := s.hashSnapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot before reindex: %w", err)
	}

	if _, err := s.db.Reindex(ctx); err != nil {
		return Result{}, fmt.Errorf("reindex: %w", err)
	}

	after, err := s.hashSnapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot after reindex: %w", err)
	}

	var result Result

	for id, hash := range after {
		prior, existed := before[id]
		switch {
		case !existed:
			result.Added++
		case prior != hash:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	for id := range before {
		if _, stillPresent := after[id]; !stillPresent {
			result.Removed++
		}
	}

	return result, nil
}

// reconcileAddOnly wraps pkg/mddb.ReindexIncremental, whose mtime/size
// change detection plays the role of spec §4.7's add-only fast path: new
// and touched files are picked up, unions with identical mtime+size are
// left alone, and files missing from the walk are dropped.
func (s *Store) reconcileAddOnly(ctx context.Context) (Result, error) {
	r, err := s.db.ReindexIncremental(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("incremental reindex: %w", err)
	}

	return Result{
		Added:     r.Inserted,
		Updated:   r.Updated,
		Unchanged: r.Skipped,
		Removed:   r.Deleted,
	}, nil
}

func (s *Store) hashSnapshot(ctx context.Context) (map[string]string, error) {
	return mddb.Query(ctx, s.db, func(db *sql.DB) (map[string]string, error) {
		rows, err := db.QueryContext(ctx, "SELECT id, content_hash FROM "+tableName)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		out := make(map[string]string)

		for rows.Next() {
			var id, hash string
			if err := rows.Scan(&id, &hash); err != nil {
				return nil, err
			}

			out[id] = hash
		}

		return out, rows.Err()
	})
}

// pruneExpired deletes rows whose expires_at has passed (spec §4.7 step 6),
// going through Store.Delete so the file, row, and vector all disappear
// together.
func (s *Store) pruneExpired(ctx context.Context) (int, error) {
	ids, err := s.expiredIDs(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return 0, fmt.Errorf("delete expired %s: %w", id, err)
		}
	}

	return len(ids), nil
}

func (s *Store) expiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	return mddb.Query(ctx, s.db, func(db *sql.DB) ([]string, error) {
		rows, err := db.QueryContext(ctx,
			"SELECT id FROM "+tableName+" WHERE expires_at != '' AND expires_at <= ?",
			now.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		var ids []string

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}

			ids = append(ids, id)
		}

		return ids, rows.Err()
	})
}
