package entry_test

import (
	"strings"
	"testing"

	"github.com/fellanH/context-vault/internal/entry"
)

func Test_New_ConstructsValidEntry(t *testing.T) {
	t.Parallel()

	e, err := entry.New("insight", "A Useful Insight", "the body text", []string{"go", "testing"}, "unit-test")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if e.ID() == "" {
		t.Fatal("expected non-empty id")
	}

	if e.Title() != "A Useful Insight" {
		t.Fatalf("title = %q, want %q", e.Title(), "A Useful Insight")
	}

	if e.Body() != "the body text" {
		t.Fatalf("body = %q", e.Body())
	}

	if e.Category() != entry.CategoryKnowledge {
		t.Fatalf("category = %q, want %q", e.Category(), entry.CategoryKnowledge)
	}

	if e.Slug == "" {
		t.Fatal("expected a non-empty slug")
	}

	if !strings.HasSuffix(e.RelPath(), e.Slug+"-"+e.ID()+".md") {
		t.Fatalf("rel path %q does not end with slug-id.md", e.RelPath())
	}
}

func Test_New_ReturnsError_When_KindInvalid(t *testing.T) {
	t.Parallel()

	_, err := entry.New("Not Valid", "title", "body", nil, "")
	if err == nil {
		t.Fatal("expected error for invalid kind")
	}
}

func Test_New_ReturnsError_When_BodyEmpty(t *testing.T) {
	t.Parallel()

	_, err := entry.New("note", "title", "", nil, "")
	if err == nil {
		t.Fatal("expected error for empty body")
	}
}

func Test_New_ReturnsError_When_EntityKindMissingIdentityKey(t *testing.T) {
	t.Parallel()

	_, err := entry.New("contact", "Jane Doe", "met at a conference", nil, "")
	if err == nil {
		t.Fatal("expected error for entity-kind entry without identity_key")
	}
}

func Test_Validate_Succeeds_When_EntityKindHasIdentityKey(t *testing.T) {
	t.Parallel()

	e := &entry.Entry{Kind: "contact", IdentityKey: "jane-doe"}
	e.SetTitle("Jane Doe")
	e.SetBody("met at a conference")

	if err := e.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func Test_Validate_ReturnsError_When_TitleTooLong(t *testing.T) {
	t.Parallel()

	e := &entry.Entry{Kind: "note"}
	e.SetTitle(strings.Repeat("x", entry.MaxTitleLen+1))
	e.SetBody("body")

	if err := e.Validate(); err == nil {
		t.Fatal("expected error for over-long title")
	}
}

func Test_Validate_ReturnsError_When_TooManyTags(t *testing.T) {
	t.Parallel()

	e := &entry.Entry{Kind: "note", Tags: make([]string, entry.MaxTags+1)}
	e.SetBody("body")

	if err := e.Validate(); err == nil {
		t.Fatal("expected error for too many tags")
	}
}

func Test_Frontmatter_RoundTrips_ThroughMeta(t *testing.T) {
	t.Parallel()

	e, err := entry.New("insight", "Title", "body", []string{"a", "b"}, "cli")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	fm := e.Frontmatter()

	kind, ok := fm.GetString([]byte("kind"))
	if !ok || kind != "insight" {
		t.Fatalf("frontmatter kind = %q, ok=%v", kind, ok)
	}

	tags, ok := fm.GetList([]byte("tags"))
	if !ok || len(tags) != 2 {
		t.Fatalf("frontmatter tags = %v, ok=%v", tags, ok)
	}

	source, ok := fm.GetString([]byte("source"))
	if !ok || source != "cli" {
		t.Fatalf("frontmatter source = %q, ok=%v", source, ok)
	}

	// Reserved keys mddb itself writes must never appear here.
	for _, reserved := range []string{"id", "schema_version", "title"} {
		if fm.Has([]byte(reserved)) {
			t.Fatalf("Frontmatter() must not write reserved key %q", reserved)
		}
	}
}
