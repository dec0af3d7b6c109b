package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/pkg/mddb"
	"github.com/fellanH/context-vault/pkg/mddb/frontmatter"
)

// reservedKeys mirrors entry.Entry's reserved frontmatter keys: everything
// else encountered in frontmatter is a meta field (spec §4.2).
var reservedKeys = map[string]bool{
	"id": true, "schema_version": true, "title": true,
	"kind": true, "tags": true, "source": true,
	"created": true, "identity_key": true, "expires_at": true,
}

// columnValues extracts the user-defined entries columns, in buildSchema's
// column order, from a parsed file (spec §4.6's SQLSchema list). Used
// uniformly for normal writes and bulk/incremental reindex batches - mddb
// converts every document to an IndexableDocument before calling this
// (pkg/mddb/wal.go, pkg/mddb/schema.go).
func columnValues(doc mddb.IndexableDocument) []any {
	fm := doc.Frontmatter

	kind, _ := fm.GetString([]byte("kind"))
	category := string(entry.CategoryForKind(kind))

	tags, _ := fm.GetList([]byte("tags"))
	tagsJSON, _ := json.Marshal(tags)
	tagsText := strings.Join(tags, " ")

	metaJSON, _ := json.Marshal(metaMap(fm))

	source, _ := fm.GetString([]byte("source"))
	identityKey, _ := fm.GetString([]byte("identity_key"))
	createdAt, _ := fm.GetString([]byte("created"))
	expiresAt, _ := fm.GetString([]byte("expires_at"))

	// user_id/team_id are ordinary extension keys as far as the frontmatter
	// codec is concerned; mddb.mddb.Config just happens to also surface them
	// as their own indexable columns for the multi-tenant filters (spec §9).
	userID, _ := fm.GetString([]byte("user_id"))
	teamID, _ := fm.GetString([]byte("team_id"))

	return []any{
		kind,
		category,
		string(tagsJSON),
		tagsText,
		string(metaJSON),
		source,
		identityKey,
		createdAt,
		expiresAt,
		contentHash(doc),
		string(doc.Body),
		userID,
		teamID,
	}
}

// metaMap collects every non-reserved top-level frontmatter key into a
// plain map suitable for JSON encoding into the meta_json column.
func metaMap(fm frontmatter.Frontmatter) map[string]string {
	var meta map[string]string

	for _, field := range fm.EntriesView() {
		key := string(field.Key)
		if reservedKeys[key] {
			continue
		}

		if meta == nil {
			meta = make(map[string]string)
		}

		meta[key] = valueToString(field.Value)
	}

	return meta
}

// valueToString renders a frontmatter value for the meta_json column.
// Scalars render as their natural string form; lists and objects render as
// a compact, order-preserving summary (meta_json is a denormalized search
// aid, not a structure callers round-trip through - Entry.Meta preserves
// the full Value on the file side, which remains the source of truth).
func valueToString(v frontmatter.Value) string {
	switch v.Kind {
	case frontmatter.ValueScalar:
		return scalarToString(v.Scalar)
	case frontmatter.ValueList:
		items := make([]string, len(v.List))
		for i, item := range v.List {
			items[i] = string(item)
		}

		out, _ := json.Marshal(items)

		return string(out)
	case frontmatter.ValueObject:
		obj := make(map[string]string, len(v.Object))
		for _, e := range v.Object {
			obj[string(e.Key)] = scalarToString(e.Value)
		}

		out, _ := json.Marshal(obj)

		return string(out)
	default:
		return ""
	}
}

func scalarToString(s frontmatter.Scalar) string {
	switch s.Kind {
	case frontmatter.ScalarString:
		return s.String()
	case frontmatter.ScalarInt:
		return strconv.FormatInt(s.Int, 10)
	case frontmatter.ScalarBool:
		return strconv.FormatBool(s.Bool)
	default:
		return ""
	}
}

// contentHash canonicalizes the fields that matter for change detection
// (spec §4.7 step 3: "compute content_hash over canonicalized content") and
// hashes them with SHA-256. Tags are sorted so reordering in the YAML list
// doesn't spuriously flag an unchanged entry as updated.
func contentHash(doc mddb.IndexableDocument) string {
	fm := doc.Frontmatter

	kind, _ := fm.GetString([]byte("kind"))
	source, _ := fm.GetString([]byte("source"))
	identityKey, _ := fm.GetString([]byte("identity_key"))
	expiresAt, _ := fm.GetString([]byte("expires_at"))

	tags, _ := fm.GetList([]byte("tags"))
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(doc.Title)
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(identityKey))
	h.Write([]byte{0})
	h.Write([]byte(expiresAt))
	h.Write([]byte{0})

	for _, tag := range sorted {
		h.Write([]byte(tag))
		h.Write([]byte{0})
	}

	metaJSON, _ := json.Marshal(metaMap(fm))
	h.Write(metaJSON)
	h.Write([]byte{0})
	h.Write(doc.Body)

	return hex.EncodeToString(h.Sum(nil))
}
