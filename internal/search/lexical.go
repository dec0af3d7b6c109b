package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fellanH/context-vault/internal/index"
)

// ftsMetaChars are the FTS5 query-syntax characters that make a raw query
// string unparseable as a MATCH expression when passed through verbatim
// (spec §4.8: "strip FTS meta-characters before building the query").
const ftsMetaChars = `*"():^~{}-`

// lexicalExpr turns a free-text query into an FTS5 MATCH expression: strip
// meta-characters, split on whitespace, quote and AND-join the remaining
// tokens so stray punctuation in the input never produces a syntax error.
func lexicalExpr(query string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(ftsMetaChars, r) {
			return ' '
		}

		return r
	}, query)

	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}

	return strings.Join(quoted, " AND ")
}

// runLexical executes the FTS5 stage and merges its rows into candidates,
// keyed by entry id. Returns the highest raw relevance score seen, used to
// normalize every candidate's fts component in fuse.
func (s *Searcher) runLexical(ctx context.Context, expr string, opts Options, limit int, now time.Time, candidates map[string]*candidate) (float64, error) {
	if expr == "" {
		return 0, nil
	}

	where, args := filterClauses(opts, now, "e.")

	query := fmt.Sprintf(`
		SELECT e.id, e.kind, e.category, e.title, e.body, e.tags_json, e.created_at,
			-bm25(%s) AS relevance
		FROM %s
		JOIN %s e ON e.rowid = %s.rowid
		WHERE %s MATCH ? %s
		ORDER BY relevance DESC
		LIMIT ?
	`, index.EntriesFTSTable, index.EntriesFTSTable, index.EntriesTable, index.EntriesFTSTable,
		index.EntriesFTSTable, where)

	queryArgs := append([]any{expr}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := index.Query(ctx, s.store, func(db *sql.DB) ([]scannedRow, error) {
		rs, err := db.QueryContext(ctx, query, queryArgs...)
		if err != nil {
			return nil, err
		}
		defer rs.Close()

		var out []scannedRow

		for rs.Next() {
			var r scannedRow
			if err := rs.Scan(&r.id, &r.kind, &r.category, &r.title, &r.body, &r.tagsJSON, &r.createdAt, &r.score); err != nil {
				return nil, err
			}

			out = append(out, r)
		}

		return out, rs.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("lexical search: %w", err)
	}

	var maxScore float64

	for _, r := range rows {
		c := candidateFor(candidates, r)
		c.ftsScore = r.score

		if r.score > maxScore {
			maxScore = r.score
		}
	}

	return maxScore, nil
}

// scannedRow is the common row shape both the lexical and vector queries
// project entries down to before they're folded into a candidate.
type scannedRow struct {
	id        string
	kind      string
	category  string
	title     string
	body      string
	tagsJSON  string
	createdAt string
	score     float64
}

// filterClauses builds the shared WHERE fragment both search stages apply:
// kind/category/since/until/tenant filters plus the always-on expiry check
// (spec §4.8: "expiry is always applied, even when not explicitly asked
// for"). prefix is the table alias filtered columns are qualified with.
func filterClauses(opts Options, now time.Time, prefix string) (string, []any) {
	var b strings.Builder

	var args []any

	clause := func(sql string, arg any) {
		b.WriteString(" AND ")
		b.WriteString(sql)
		args = append(args, arg)
	}

	b.WriteString(fmt.Sprintf(" AND (%sexpires_at = '' OR %sexpires_at > ?)", prefix, prefix))
	args = append(args, now.UTC().Format(time.RFC3339))

	if opts.Kind != "" {
		clause(prefix+"kind = ?", opts.Kind)
	}

	if opts.Category != "" {
		clause(prefix+"category = ?", opts.Category)
	}

	if opts.Since != nil {
		clause(prefix+"created_at >= ?", opts.Since.UTC().Format(time.RFC3339))
	}

	if opts.Until != nil {
		clause(prefix+"created_at <= ?", opts.Until.UTC().Format(time.RFC3339))
	}

	if opts.UserIDFilter != "" {
		clause(prefix+"user_id = ?", opts.UserIDFilter)
	}

	if opts.TeamIDFilter != "" {
		clause(prefix+"team_id = ?", opts.TeamIDFilter)
	}

	return b.String(), args
}

// candidateFor returns the candidate for r.id, creating and populating its
// shared (non-scoring) fields on first sight from either stage.
func candidateFor(candidates map[string]*candidate, r scannedRow) *candidate {
	c, ok := candidates[r.id]
	if ok {
		return c
	}

	c = &candidate{hit: Hit{
		ID:        r.id,
		Kind:      r.kind,
		Category:  r.category,
		Title:     r.title,
		Body:      r.body,
		Tags:      parseTags(r.tagsJSON),
		CreatedAt: parseTime(r.createdAt),
	}}

	candidates[r.id] = c

	return c
}

// baseFetchLimit is the minimum candidate pool fetched from each stage
// before fusion and pagination (spec §4.8: "K_vec = max(50, limit*10)"),
// applied symmetrically to the lexical stage so neither ranking starves the
// other before scores are combined.
func baseFetchLimit(limit int) int {
	const minOverfetch = 50

	scaled := limit * 10
	if scaled < minOverfetch {
		return minOverfetch
	}

	return scaled
}
