package search

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/fellanH/context-vault/internal/entry"
)

const (
	weightFTS   = 0.5
	weightVec   = 0.5
	weightExact = 0.1

	// tagOverfetchFactor widens the fetch window when tag filtering will run
	// afterward in Go, since tags_json isn't indexed for set containment
	// (spec §4.8: "overfetch x10 then filter").
	tagOverfetchFactor = 10

	// teamOverfetchFactor widens the vector stage's K when a team filter is
	// in play, so post-filtering by team doesn't starve the candidate pool
	// (spec §4.8's K_vec note on team-scoped fetches).
	teamOverfetchFactor = 4

	// defaultEventDecayDays is used when a Searcher was configured with a
	// negative eventDecayDays (spec §4.1's event_decay_days default); zero
	// is honored and decays event entries immediately.
	defaultEventDecayDays = 30
)

// candidate accumulates a single entry's raw per-stage scores before fuse
// combines and normalizes them into the Hit's final Score.
type candidate struct {
	hit      Hit
	ftsScore float64
	vecScore float64
}

// fuse normalizes and combines each candidate's lexical/vector/exact-match
// components, applies the category-aware recency boost, and returns hits
// sorted by score descending, tying on created_at desc then id desc (spec
// §4.8's fusion formula and tie-break rule).
func (s *Searcher) fuse(candidates map[string]*candidate, query string, maxFTS, maxVec float64, now time.Time) []Hit {
	normQuery := strings.TrimSpace(strings.ToLower(query))

	hits := make([]Hit, 0, len(candidates))

	for _, c := range candidates {
		var ftsNorm, vecNorm float64

		if maxFTS > 0 {
			ftsNorm = c.ftsScore / maxFTS
		}

		if maxVec > 0 {
			vecNorm = c.vecScore / maxVec
		}

		var exact float64
		if normQuery != "" && strings.ToLower(c.hit.Title) == normQuery {
			exact = 1
		}

		score := weightFTS*ftsNorm + weightVec*vecNorm + weightExact*exact
		score *= s.recencyBoost(c.hit.Category, c.hit.CreatedAt, now)

		c.hit.Score = score
		hits = append(hits, c.hit)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}

		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}

		return hits[i].ID > hits[j].ID
	})

	return hits
}

// recencyBoost is 1.0 for knowledge/entity entries and decays event entries
// toward zero as they age (spec §4.8: "recency_boost(created_at, category)").
func (s *Searcher) recencyBoost(category string, createdAt time.Time, now time.Time) float64 {
	if category != string(entry.CategoryEvent) {
		return 1.0
	}

	decayDays := s.eventDecayDays
	if decayDays < 0 {
		decayDays = defaultEventDecayDays
	}

	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	if decayDays == 0 {
		if ageDays == 0 {
			return 1.0
		}

		return 0
	}

	return 1.0 / (1.0 + ageDays/float64(decayDays))
}

// filterByTags keeps only hits whose Tags contain every requested tag (spec
// §4.8's tag filter: applied in Go after the overfetched SQL stages run).
func filterByTags(hits []Hit, tags []string) []Hit {
	out := hits[:0]

	for _, h := range hits {
		if hasAllTags(h.Tags, tags) {
			out = append(out, h)
		}
	}

	return out
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}

	for _, t := range want {
		if !set[t] {
			return false
		}
	}

	return true
}

// paginate applies Offset/Limit to an already-sorted hit list.
func paginate(hits []Hit, offset, limit int) []Hit {
	if offset >= len(hits) {
		return nil
	}

	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}

	return hits[offset:end]
}

// parseTime parses the RFC3339 timestamps entries store in created_at,
// tolerating the zero value for rows somehow missing one.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}

	return t
}

// parseTags decodes the tags_json column back into a string slice.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}

	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}

	return tags
}
