package entry

import (
	"fmt"
	"time"

	"github.com/fellanH/context-vault/pkg/mddb"
	"github.com/fellanH/context-vault/pkg/mddb/frontmatter"
)

// FromIndexable reconstructs an Entry from a parsed markdown file, the
// mddb.Config[Entry].DocumentFrom callback's job (spec §3.4).
func FromIndexable(doc mddb.IndexableDocument) (*Entry, error) {
	fm := doc.Frontmatter

	kind, _ := fm.GetString([]byte("kind"))
	if kind == "" {
		return nil, fmt.Errorf("entry %s: missing kind", doc.ID)
	}

	e := &Entry{
		id:       string(doc.ID),
		title:    string(doc.Title),
		body:     string(doc.Body),
		Kind:     kind,
		FilePath: string(doc.RelPath),
	}

	if tags, ok := fm.GetList([]byte("tags")); ok {
		e.Tags = tags
	}

	if source, ok := fm.GetString([]byte("source")); ok {
		e.Source = source
	}

	if created, ok := fm.GetString([]byte("created")); ok {
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("entry %s: invalid created timestamp %q: %w", doc.ID, created, err)
		}

		e.CreatedAt = t
	}

	if identityKey, ok := fm.GetString([]byte("identity_key")); ok {
		e.IdentityKey = identityKey
	}

	if expiresAt, ok := fm.GetString([]byte("expires_at")); ok {
		t, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("entry %s: invalid expires_at timestamp %q: %w", doc.ID, expiresAt, err)
		}

		e.ExpiresAt = &t
	}

	e.Meta = extractMeta(fm)
	e.Slug = slugFromRelPath(e.FilePath, e.id)

	return e, nil
}

// extractMeta collects every top-level frontmatter key Entry.Frontmatter
// does not write explicitly - the "any other key flows into meta" rule
// (spec §4.2). Values are deep-copied: IndexableDocument's Frontmatter is
// borrowed from the file buffer and only valid during the DocumentFrom call.
func extractMeta(fm frontmatter.Frontmatter) map[string]frontmatter.Value {
	var meta map[string]frontmatter.Value

	for _, field := range fm.EntriesView() {
		key := string(field.Key)
		if reservedFrontmatterKeys[key] {
			continue
		}

		if meta == nil {
			meta = make(map[string]frontmatter.Value)
		}

		meta[key] = ownedValue(field.Value)
	}

	return meta
}

// ownedValue returns a copy of v with every borrowed []byte replaced by an
// owned copy, safe to retain past the lifetime of the input buffer.
func ownedValue(v frontmatter.Value) frontmatter.Value {
	out := frontmatter.Value{Kind: v.Kind}

	switch v.Kind {
	case frontmatter.ValueScalar:
		out.Scalar = ownedScalar(v.Scalar)
	case frontmatter.ValueList:
		out.List = make([][]byte, len(v.List))
		for i, item := range v.List {
			out.List[i] = append([]byte(nil), item...)
		}
	case frontmatter.ValueObject:
		out.Object = make([]frontmatter.ObjectEntry, len(v.Object))
		for i, entry := range v.Object {
			out.Object[i] = frontmatter.ObjectEntry{
				Key:   append([]byte(nil), entry.Key...),
				Value: ownedScalar(entry.Value),
			}
		}
	}

	return out
}

func ownedScalar(s frontmatter.Scalar) frontmatter.Scalar {
	out := s
	if s.Kind == frontmatter.ScalarString {
		out.Bytes = append([]byte(nil), s.Bytes...)
	}

	return out
}

// slugFromRelPath recovers the slug BuildSlug chose at creation time from a
// RelPathFor-shaped path, so re-parsing a file doesn't need to invent a new
// one (the slug must stay stable for the lifetime of the file).
func slugFromRelPath(relPath, id string) string {
	base := relPath
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]

			break
		}
	}

	base = trimSuffix(base, ".md")
	suffix := "-" + id

	return trimSuffix(base, suffix)
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}

	return s
}
