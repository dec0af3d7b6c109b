// Package search implements the hybrid lexical + vector ranker (spec §4.8):
// an FTS5 MATCH query and a sqlite-vec KNN query over the same
// entries/entries_fts/entries_vec triad internal/index maintains, fused
// into one ranked result set with category-aware recency decay.
package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/errcode"
	"github.com/fellanH/context-vault/internal/index"
)

const (
	defaultSearchLimit = 10
	maxLimit           = 100
)

// Options configures Search. Every field is optional; the zero value means
// "no filter" for every field except Limit/Offset, which fall back to
// defaultSearchLimit/0.
type Options struct {
	Kind        string
	Category    string
	Tags        []string
	Since       *time.Time
	Until       *time.Time
	IdentityKey string
	Limit       int
	Offset      int

	// UserIDFilter/TeamIDFilter are forward-compatible tenant filters (spec
	// §9): always empty in single-user mode, but implemented so the WHERE
	// clause and the vector post-filter stay consistent across variants.
	UserIDFilter string
	TeamIDFilter string
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = defaultSearchLimit
	}

	if o.Limit > maxLimit {
		o.Limit = maxLimit
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	return o
}

// Hit is the projection returned to callers (spec §4.8's result shape):
// never exposes the internal rowid.
type Hit struct {
	ID        string
	Kind      string
	Category  string
	Title     string
	Body      string
	Tags      []string
	CreatedAt time.Time
	Score     float64
}

// Result is what Search returns.
type Result struct {
	Hits []Hit

	// SemanticDisabled is true when the vector stage did not run, either
	// because the embedder is unavailable or because entries_vec could not
	// be created for this session (get_context's response header notes
	// this - spec §4.9.2).
	SemanticDisabled bool
}

// Searcher runs hybrid_search against a single internal/index.Store and
// embed.Adapter pair (spec §4.8).
type Searcher struct {
	store          *index.Store
	embedder       embed.Adapter
	eventDecayDays int
}

// New builds a Searcher. eventDecayDays feeds the event-category recency
// boost (spec §4.8's recency_boost, config-resolved per spec §4.1).
func New(store *index.Store, embedder embed.Adapter, eventDecayDays int) *Searcher {
	return &Searcher{store: store, embedder: embedder, eventDecayDays: eventDecayDays}
}

// Search runs hybrid_search(query, opts) (spec §4.8).
func (s *Searcher) Search(ctx context.Context, query string, opts Options) (Result, error) {
	opts = opts.withDefaults()
	now := time.Now()

	if opts.IdentityKey != "" {
		return s.identityLookup(ctx, opts, now)
	}

	candidates := make(map[string]*candidate)

	fetchLimit := baseFetchLimit(opts.Limit)
	if opts.Offset+opts.Limit > fetchLimit {
		fetchLimit = opts.Offset + opts.Limit
	}

	if len(opts.Tags) > 0 {
		fetchLimit *= tagOverfetchFactor
	}

	maxFTS, err := s.runLexical(ctx, lexicalExpr(query), opts, fetchLimit, now, candidates)
	if err != nil {
		return Result{}, err
	}

	semanticDisabled := !s.embedder.Available() || !s.store.VectorSearchEnabled()

	var maxVec float64

	if !semanticDisabled && strings.TrimSpace(query) != "" {
		kVec := fetchLimit
		if opts.TeamIDFilter != "" {
			kVec *= teamOverfetchFactor
		}

		maxVec, err = s.runVector(ctx, query, opts, kVec, now, candidates)
		if err != nil {
			return Result{}, err
		}
	}

	hits := s.fuse(candidates, query, maxFTS, maxVec, now)

	if len(opts.Tags) > 0 {
		hits = filterByTags(hits, opts.Tags)
	}

	return Result{Hits: paginate(hits, opts.Offset, opts.Limit), SemanticDisabled: semanticDisabled}, nil
}

// identityLookup resolves the identity_key+kind bypass (spec §4.8: "Exact
// lookup; returns at most one hit, bypassing ranking").
func (s *Searcher) identityLookup(ctx context.Context, opts Options, now time.Time) (Result, error) {
	if opts.Kind == "" {
		return Result{}, nil
	}

	e, err := s.store.GetByIdentity(ctx, opts.Kind, opts.IdentityKey)

	var ce *errcode.Error
	if errors.As(err, &ce) && ce.Code == errcode.NotFound {
		return Result{}, nil
	}

	if err != nil {
		return Result{}, err
	}

	if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
		return Result{}, nil
	}

	return Result{Hits: []Hit{{
		ID:        e.ID(),
		Kind:      e.Kind,
		Category:  string(e.Category()),
		Title:     e.Title(),
		Body:      e.Body(),
		Tags:      e.Tags,
		CreatedAt: e.CreatedAt,
		Score:     1.0,
	}}}, nil
}
