package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fellanH/context-vault/internal/index"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// listScanCap bounds how many rows list_context ever pulls out of SQLite
	// before tag-filtering and paginating in Go; list_context has no ranking
	// stage to overfetch proportionally against, so this is a flat ceiling
	// instead of a limit-scaled one.
	listScanCap = 10000
)

// ListOptions configures List (spec §4.9.3's list_context filters).
type ListOptions struct {
	Kind     string
	Category string
	Tags     []string
	Limit    int
	Offset   int
}

func (o ListOptions) withDefaults() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}

	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}

	if o.Offset < 0 {
		o.Offset = 0
	}

	return o
}

// ListResult is what List returns: the page of hits plus the total matching
// count, for list_context's "<n> shown, <total> total" response header.
type ListResult struct {
	Hits  []Hit
	Total int
}

// List runs list_context's plain reverse-chronological listing (spec
// §4.9.3): no ranking, filtered by kind/category/tags, newest first.
func (s *Searcher) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	opts = opts.withDefaults()
	now := time.Now()

	where, args := filterClauses(searchOptionsFor(opts), now, "")

	query := fmt.Sprintf(`
		SELECT id, kind, category, title, body, tags_json, created_at
		FROM %s
		WHERE 1=1 %s
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, index.EntriesTable, where)

	queryArgs := append(append([]any{}, args...), listScanCap)

	rows, err := index.Query(ctx, s.store, func(db *sql.DB) ([]scannedRow, error) {
		rs, err := db.QueryContext(ctx, query, queryArgs...)
		if err != nil {
			return nil, err
		}
		defer rs.Close()

		var out []scannedRow

		for rs.Next() {
			var r scannedRow
			if err := rs.Scan(&r.id, &r.kind, &r.category, &r.title, &r.body, &r.tagsJSON, &r.createdAt); err != nil {
				return nil, err
			}

			out = append(out, r)
		}

		return out, rs.Err()
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list context: %w", err)
	}

	hits := make([]Hit, len(rows))
	for i, r := range rows {
		hits[i] = Hit{
			ID:        r.id,
			Kind:      r.kind,
			Category:  r.category,
			Title:     r.title,
			Body:      r.body,
			Tags:      parseTags(r.tagsJSON),
			CreatedAt: parseTime(r.createdAt),
		}
	}

	if len(opts.Tags) > 0 {
		hits = filterByTags(hits, opts.Tags)
	}

	return ListResult{Hits: paginate(hits, opts.Offset, opts.Limit), Total: len(hits)}, nil
}

// searchOptionsFor adapts ListOptions onto the Options shape filterClauses
// already knows how to render, so both callers share one WHERE builder.
func searchOptionsFor(o ListOptions) Options {
	return Options{Kind: o.Kind, Category: o.Category}
}
