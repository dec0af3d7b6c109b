package index

import "github.com/fellanH/context-vault/pkg/mddb"

// tableName is the primary entries table; entries_fts and entries_vec are
// the co-located virtual tables this package wires around it.
const tableName = "entries"

// buildSchema returns the entries table definition (spec §4.6): base columns
// (id, short_id, path, mtime_ns, size_bytes, title) plus every other §3.1
// attribute, plus content_hash for change detection during reconciliation.
func buildSchema() *mddb.SQLSchema {
	return mddb.NewBaseSQLSchema(tableName).
		Text("kind", true).
		Text("category", true).
		Text("tags_json", false).
		// tags_text is a plain space-joined copy of the same tags, kept only
		// so entries_fts tokenizes clean words instead of tags_json's
		// brackets and quotes.
		Text("tags_text", false).
		Text("meta_json", false).
		Text("source", false).
		Text("identity_key", false).
		Text("created_at", true).
		Text("expires_at", false).
		Text("content_hash", true).
		// body is not in spec §4.6's column list but entries_fts (full-text
		// over title, body, tags, kind) needs it available in SQL - the
		// index is an ephemeral, fully rebuildable cache either way.
		Text("body", false).
		// user_id/team_id back the hybrid searcher's forward-compatible
		// tenant filters (spec §4.8, §9): always empty in single-user mode,
		// populated from the same meta extension-key path as any other
		// frontmatter field when a caller does set them.
		Text("user_id", false).
		Text("team_id", false).
		Index("kind").
		Index("category").
		Index("identity_key")
}
