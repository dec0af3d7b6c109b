// Package index builds the relational + full-text + vector index (spec
// §4.6, §4.7) on top of the generalized pkg/mddb document-store engine:
// markdown files under the vault remain the source of truth, entries is a
// fully rebuildable SQLite cache alongside entries_fts and entries_vec.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/internal/errcode"
	"github.com/fellanH/context-vault/pkg/mddb"
)

// Store is the entries index: one markdown-backed mddb.MDDB[entry.Entry]
// plus the vector sidecar and reconciliation machinery layered on top.
type Store struct {
	db       *mddb.MDDB[entry.Entry]
	embedder embed.Adapter
	log      *zap.Logger

	// writeMu serializes Create/Update/Delete so the RelPathFromID pending
	// hint below is never read by the wrong call (spec §5: "single writer,
	// serialized by the store's own locking").
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]string

	vecMu      sync.RWMutex
	vecEnabled bool

	reconcileMu sync.Mutex
	reconcile   *reconcileFuture
}

// Open opens (creating if necessary) the entries index rooted at vaultDir.
func Open(ctx context.Context, vaultDir string, embedder embed.Adapter, log *zap.Logger) (*Store, error) {
	if embedder == nil {
		embedder = embed.NewUnavailable("none")
	}

	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{
		embedder: embedder,
		log:      log,
		pending:  make(map[string]string),
	}

	cfg := mddb.Config[entry.Entry]{
		BaseDir:               vaultDir,
		DocumentFrom:          entry.FromIndexable,
		SQLSchema:             buildSchema(),
		SQLColumnValues:       columnValues,
		RelPathFromID:         s.relPathFromID,
		ShortIDFromID:         shortIDFromID,
		AfterPut:              s.afterPut,
		AfterDelete:           s.afterDelete,
		AfterRecreateSchema:   s.afterRecreateSchema,
		AfterBulkIndex:        s.afterBulkIndex,
		AfterIncrementalIndex: s.afterIncrementalIndex,
	}

	db, err := mddb.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	s.db = db

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaFingerprint returns the running schema's version hash (context_status
// surfaces this verbatim - spec §9.3 - rather than a hardcoded label, so the
// printed value is mechanically tied to the migration state actually on
// disk).
func (s *Store) SchemaFingerprint() uint32 {
	return s.db.SchemaFingerprint()
}

// VectorSearchEnabled reports whether entries_vec was created successfully
// (context_status surfaces this - spec §4.9.6).
func (s *Store) VectorSearchEnabled() bool {
	s.vecMu.RLock()
	defer s.vecMu.RUnlock()

	return s.vecEnabled
}

// relPathFromID is the mddb.Config.RelPathFromID callback. mddb calls it
// purely as a function of id while validating a pending Create/Update - it
// never calls it for reads (those resolve path from the indexed row, see
// pkg/mddb/query.go's Get). Registering the caller's intended path under a
// write-serialized lock right before the call is therefore sufficient and
// lets Update honor entry.Entry.RelPath()'s "update legacy files in place"
// rule, which a pure id->path function alone could not express.
func (s *Store) relPathFromID(id string) string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	return s.pending[id]
}

func shortIDFromID(id string) string {
	const shortLen = 10
	if len(id) <= shortLen {
		return id
	}

	return id[len(id)-shortLen:]
}

func (s *Store) setPendingPath(id, relPath string) {
	s.pendingMu.Lock()
	s.pending[id] = relPath
	s.pendingMu.Unlock()
}

func (s *Store) clearPendingPath(id string) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// Create persists a brand-new entry (spec §4.9.1's create mode).
func (s *Store) Create(ctx context.Context, e *entry.Entry) (*entry.Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.setPendingPath(e.ID(), e.RelPath())
	defer s.clearPendingPath(e.ID())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Create(e); err != nil {
		_ = tx.Rollback()

		if errors.Is(err, mddb.ErrAlreadyExists) {
			return nil, errcode.New(errcode.InvalidInput, err)
		}

		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

// Update rewrites an existing entry at its current on-disk path (spec
// §4.9.1's update mode: "rewrite file at the same path; re-index").
func (s *Store) Update(ctx context.Context, e *entry.Entry) (*entry.Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.setPendingPath(e.ID(), e.RelPath())
	defer s.clearPendingPath(e.ID())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Update(e); err != nil {
		_ = tx.Rollback()

		if errors.Is(err, mddb.ErrNotFound) {
			return nil, errcode.New(errcode.NotFound, err)
		}

		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

// Get loads an entry by id, or errcode.NotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*entry.Entry, error) {
	e, err := s.db.Get(ctx, id)
	if err != nil {
		if errors.Is(err, mddb.ErrNotFound) {
			return nil, errcode.New(errcode.NotFound, err)
		}

		return nil, err
	}

	return e, nil
}

// GetByIdentity resolves the upsert target for (kind, identityKey) (spec
// §4.9.1: "If an entity with the same (kind, identity_key) exists, update
// in place"). Returns errcode.NotFound if none exists.
func (s *Store) GetByIdentity(ctx context.Context, kind, identityKey string) (*entry.Entry, error) {
	id, err := mddb.Query(ctx, s.db, func(db *sql.DB) (string, error) {
		var id string

		row := db.QueryRowContext(ctx,
			"SELECT id FROM "+tableName+" WHERE kind = ? AND identity_key = ? LIMIT 1",
			kind, identityKey,
		)

		err := row.Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return id, err
	})
	if err != nil {
		return nil, err
	}

	if id == "" {
		return nil, errcode.New(errcode.NotFound, fmt.Errorf("no entry with kind=%s identity_key=%s", kind, identityKey))
	}

	return s.Get(ctx, id)
}

// Delete removes an entry's file, row, and embedding in that order,
// tolerating prior absence (spec §4.9.4's idempotent delete contract - the
// vector cleanup itself happens inside afterDelete).
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	path, ok, err := s.currentPath(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve path for %s: %w", id, err)
	}

	if !ok {
		return nil
	}

	// tx.Delete resolves its own path via RelPathFromID(id), same as
	// Create/Update - register the row's existing path for it to read.
	s.setPendingPath(id, path)
	defer s.clearPendingPath(id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := tx.Delete(id); err != nil {
		_ = tx.Rollback()

		if errors.Is(err, mddb.ErrNotFound) {
			return nil
		}

		return err
	}

	return tx.Commit(ctx)
}

// currentPath looks up the path currently on file for id, so Delete and
// Update can register it as the RelPathFromID pending hint. Returns ("",
// false, nil) if no row exists - a path is never legitimately empty.
func (s *Store) currentPath(ctx context.Context, id string) (string, bool, error) {
	path, err := mddb.Query(ctx, s.db, func(db *sql.DB) (string, error) {
		var path string

		err := db.QueryRowContext(ctx, "SELECT path FROM "+tableName+" WHERE id = ?", id).Scan(&path)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return path, err
	})
	if err != nil {
		return "", false, err
	}

	return path, path != "", nil
}

// afterPut embeds the entry's searchable text and writes it into
// entries_vec, keyed by the row mddb just wrote (spec §4.6). Embedding here
// is safe inside the write transaction only because embed.Adapter is
// documented pure/non-blocking (internal/embed's HashAdapter does no I/O);
// an HTTP-backed adapter would need to move this to the reconciler's
// second, short transaction per spec §4.7's ordering rule instead.
func (s *Store) afterPut(ctx context.Context, tx *sql.Tx, e *entry.Entry) error {
	if !s.VectorSearchEnabled() {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, searchableText(e.Title(), e.Body()))
	if err != nil {
		s.log.Warn("embed failed, leaving entry without a vector", zap.String("id", e.ID()), zap.Error(err))

		return nil
	}

	return writeVector(ctx, tx, e.ID(), vec)
}

func (s *Store) afterDelete(ctx context.Context, tx *sql.Tx, id string) error {
	if !s.VectorSearchEnabled() {
		return nil
	}

	return deleteVectorByID(ctx, tx, id)
}

// afterRecreateSchema (re)creates entries_fts and entries_vec after mddb
// recreates the main table. The FTS table is required; the vec table is
// optional - if sqlite-vec is unavailable in this build, vector search is
// disabled for the session rather than failing the whole schema rebuild.
func (s *Store) afterRecreateSchema(ctx context.Context, tx *sql.Tx) error {
	if err := dropFTSTable(ctx, tx); err != nil {
		return fmt.Errorf("drop fts table: %w", err)
	}

	if err := createFTSTable(ctx, tx); err != nil {
		return fmt.Errorf("create fts table: %w", err)
	}

	if err := dropVecTable(ctx, tx); err != nil {
		return fmt.Errorf("drop vec table: %w", err)
	}

	err := createVecTable(ctx, tx)

	s.vecMu.Lock()
	s.vecEnabled = err == nil
	s.vecMu.Unlock()

	if err != nil {
		s.log.Warn("sqlite-vec unavailable, vector search disabled for this session", zap.Error(err))
	}

	return nil
}

// afterBulkIndex backfills entries_vec for a full-reindex batch.
func (s *Store) afterBulkIndex(ctx context.Context, tx *sql.Tx, batch []mddb.IndexableDocument) error {
	return s.embedBatch(ctx, tx, batch)
}

// afterIncrementalIndex backfills entries_vec for an incremental-reindex
// batch and removes vectors for deleted ids.
func (s *Store) afterIncrementalIndex(ctx context.Context, tx *sql.Tx, upserted []mddb.IndexableDocument, deletedIDs []string) error {
	if err := s.embedBatch(ctx, tx, upserted); err != nil {
		return err
	}

	if !s.VectorSearchEnabled() {
		return nil
	}

	for _, id := range deletedIDs {
		if err := deleteVectorByID(ctx, tx, id); err != nil {
			return fmt.Errorf("delete vector for %s: %w", id, err)
		}
	}

	return nil
}

func (s *Store) embedBatch(ctx context.Context, tx *sql.Tx, batch []mddb.IndexableDocument) error {
	if !s.VectorSearchEnabled() || len(batch) == 0 {
		return nil
	}

	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = searchableText(string(doc.Title), string(doc.Body))
	}

	vecs, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		s.log.Warn("batch embed failed, leaving batch without vectors", zap.Int("batch_size", len(batch)), zap.Error(err))

		return nil
	}

	for i, doc := range batch {
		if err := writeVector(ctx, tx, string(doc.ID), vecs[i]); err != nil {
			return fmt.Errorf("write vector for %s: %w", doc.ID, err)
		}
	}

	return nil
}

func searchableText(title, body string) string {
	return title + "\n\n" + body
}
