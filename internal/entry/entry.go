package entry

import (
	"fmt"
	"time"

	"github.com/fellanH/context-vault/pkg/mddb/frontmatter"
)

// Field length limits enforced at construction (spec §3.1).
const (
	MaxTitleLen       = 500
	MaxBodyLen        = 100 * 1024
	MaxTags           = 20
	MaxTagLen         = 100
	MaxSourceLen      = 200
	MaxIdentityKeyLen = 200
	MaxMetaEncodedLen = 10 * 1024
)

// reservedFrontmatterKeys are the keys Entry.Frontmatter writes explicitly.
// Any other top-level key encountered while parsing flows into Meta instead.
var reservedFrontmatterKeys = map[string]bool{
	"id":             true, // written by mddb itself, never by Entry
	"schema_version": true, // written by mddb itself, never by Entry
	"title":          true, // written by mddb itself, never by Entry
	"kind":           true,
	"tags":           true,
	"source":         true,
	"created":        true,
	"identity_key":   true,
	"expires_at":     true,
}

// Entry is the unit of knowledge stored as one markdown file and one index
// row (spec §3.1). It implements mddb.Document.
type Entry struct {
	id    string
	title string
	body  string

	Kind        string
	Tags        []string
	Meta        map[string]frontmatter.Value
	Source      string
	IdentityKey string
	FilePath    string
	CreatedAt   time.Time
	ExpiresAt   *time.Time

	// Slug is the filename-safe label chosen at creation (spec §4.4); it is
	// part of the on-disk path and does not change on update.
	Slug string
}

// Category returns the entry's category, derived from Kind.
func (e Entry) Category() Category {
	return CategoryForKind(e.Kind)
}

// New constructs an entry with a freshly generated id and the given
// required fields, validating every constraint spec §3.1 lists. CreatedAt is
// set to the current instant; callers that need a specific instant (tests,
// reconciliation replay) should set e.CreatedAt after construction.
func New(kind, title, body string, tags []string, source string) (*Entry, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, fmt.Errorf("new entry: %w", err)
	}

	e := &Entry{
		id:        id,
		title:     title,
		body:      body,
		Kind:      kind,
		Tags:      tags,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}

	e.Slug = BuildSlug(e.title, e.body, e.id)

	return e, nil
}

// Validate checks every invariant spec §3.1/§3.2 places on an entry's
// fields, independent of storage state (path safety is checked separately
// by the vault package once FilePath is known).
func (e *Entry) Validate() error {
	if !ValidKind(e.Kind) {
		return ErrInvalidKind
	}

	if len(e.title) > MaxTitleLen {
		return fmt.Errorf("title exceeds %d chars", MaxTitleLen)
	}

	if e.body == "" {
		return fmt.Errorf("body is required")
	}

	if len(e.body) > MaxBodyLen {
		return fmt.Errorf("body exceeds %d bytes", MaxBodyLen)
	}

	if len(e.Tags) > MaxTags {
		return fmt.Errorf("tags exceed %d items", MaxTags)
	}

	for _, tag := range e.Tags {
		if len(tag) > MaxTagLen {
			return fmt.Errorf("tag %q exceeds %d chars", tag, MaxTagLen)
		}
	}

	if len(e.Source) > MaxSourceLen {
		return fmt.Errorf("source exceeds %d chars", MaxSourceLen)
	}

	if len(e.IdentityKey) > MaxIdentityKeyLen {
		return fmt.Errorf("identity_key exceeds %d chars", MaxIdentityKeyLen)
	}

	if e.Category() == CategoryEntity && e.IdentityKey == "" {
		return fmt.Errorf("%w: entity kind %q requires identity_key", ErrMissingIdentityKey, e.Kind)
	}

	return nil
}

// ErrMissingIdentityKey is returned by Validate when an entity-category
// entry has no identity_key.
var ErrMissingIdentityKey = fmt.Errorf("identity_key is required for entity-category entries")

// ID implements mddb.Document.
func (e Entry) ID() string {
	return e.id
}

// SetID is used by DocumentFrom when reconstructing an entry parsed from
// disk, where the id comes from the file's frontmatter rather than New.
func (e *Entry) SetID(id string) {
	e.id = id
}

// Title implements mddb.Document.
func (e Entry) Title() string {
	return e.title
}

// SetTitle updates the display title, e.g. on a caller-supplied update.
func (e *Entry) SetTitle(title string) {
	e.title = title
}

// Body implements mddb.Document.
func (e Entry) Body() string {
	return e.body
}

// SetBody updates the main content, e.g. on a caller-supplied update.
func (e *Entry) SetBody(body string) {
	e.body = body
}

// RelPath returns the entry's path relative to the vault root. A freshly
// constructed entry (FilePath unset) gets the canonical
// <category-dir>/<kind-plural>/<slug>-<id>.md location (spec §6.2); an
// entry reconciled from an existing file keeps FilePath as-is, so a legacy
// flat-layout file is updated in place rather than silently relocated.
func (e Entry) RelPath() string {
	if e.FilePath != "" {
		return e.FilePath
	}

	return RelPathFor(e.Kind, e.Slug, e.id)
}

// Frontmatter implements mddb.Document. It writes every Entry attribute
// except id/schema_version/title, which mddb writes itself.
func (e Entry) Frontmatter() frontmatter.Frontmatter {
	var fm frontmatter.Frontmatter

	fm.MustSet([]byte("kind"), frontmatter.StringValue(e.Kind))

	if len(e.Tags) > 0 {
		fm.MustSet([]byte("tags"), frontmatter.StringListValue(e.Tags))
	}

	if e.Source != "" {
		fm.MustSet([]byte("source"), frontmatter.StringValue(e.Source))
	}

	if !e.CreatedAt.IsZero() {
		fm.MustSet([]byte("created"), frontmatter.StringValue(e.CreatedAt.UTC().Format(time.RFC3339)))
	}

	if e.IdentityKey != "" {
		fm.MustSet([]byte("identity_key"), frontmatter.StringValue(e.IdentityKey))
	}

	if e.ExpiresAt != nil {
		fm.MustSet([]byte("expires_at"), frontmatter.StringValue(e.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	for key, val := range e.Meta {
		val := val
		fm.MustSet([]byte(key), &val)
	}

	return fm
}
