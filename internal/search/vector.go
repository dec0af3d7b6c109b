package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/index"
)

// runVector embeds query and runs the sqlite-vec KNN stage (spec §4.8),
// merging its rows into candidates the same way runLexical does. Returns
// the highest raw similarity seen, used to normalize every candidate's
// vector component in fuse. Embed errors are treated as "semantic stage
// skipped", matching afterPut's own tolerant handling of embedder failures.
func (s *Searcher) runVector(ctx context.Context, query string, opts Options, k int, now time.Time, candidates map[string]*candidate) (float64, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return 0, nil
	}

	where, args := filterClauses(opts, now, "e.")

	q := fmt.Sprintf(`
		SELECT e.id, e.kind, e.category, e.title, e.body, e.tags_json, e.created_at,
			vec_distance_cosine(v.embedding, ?) AS distance
		FROM %s v
		JOIN %s e ON e.rowid = v.rowid
		WHERE 1=1 %s
		ORDER BY distance ASC
		LIMIT ?
	`, index.EntriesVecTable, index.EntriesTable, where)

	queryArgs := append([]any{embed.EncodeFloat32(vec)}, args...)
	queryArgs = append(queryArgs, k)

	rows, err := index.Query(ctx, s.store, func(db *sql.DB) ([]scannedRow, error) {
		rs, qerr := db.QueryContext(ctx, q, queryArgs...)
		if qerr != nil {
			return nil, qerr
		}
		defer rs.Close()

		var out []scannedRow

		for rs.Next() {
			var r scannedRow

			var distance float64
			if serr := rs.Scan(&r.id, &r.kind, &r.category, &r.title, &r.body, &r.tagsJSON, &r.createdAt, &distance); serr != nil {
				return nil, serr
			}

			r.score = 1.0 - distance
			out = append(out, r)
		}

		return out, rs.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("vector search: %w", err)
	}

	var maxScore float64

	for _, r := range rows {
		c := candidateFor(candidates, r)
		c.vecScore = r.score

		if r.score > maxScore {
			maxScore = r.score
		}
	}

	return maxScore, nil
}
