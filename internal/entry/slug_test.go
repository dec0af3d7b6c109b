package entry

import (
	"strings"
	"testing"
)

func Test_BuildSlug_LowercasesAndDashesNonAlphanumeric(t *testing.T) {
	t.Parallel()

	got := BuildSlug("Hello, World! This is a Title", "", "01ID")
	want := "hello-world-this-is-a-title"

	if got != want {
		t.Fatalf("slug = %q, want %q", got, want)
	}
}

func Test_BuildSlug_FallsBackToBody_When_TitleEmpty(t *testing.T) {
	t.Parallel()

	got := BuildSlug("", "the body starts here", "01ID")
	want := "the-body-starts-here"

	if got != want {
		t.Fatalf("slug = %q, want %q", got, want)
	}
}

func Test_BuildSlug_FallsBackToID_When_TitleAndBodyHaveNoAlphanumerics(t *testing.T) {
	t.Parallel()

	got := BuildSlug("!!!", "???", "01ID")
	if got != "01ID" {
		t.Fatalf("slug = %q, want fallback to id", got)
	}
}

func Test_BuildSlug_TruncatesAtWordBoundary(t *testing.T) {
	t.Parallel()

	title := "this is a very long title that definitely exceeds the fifty character slug limit by a fair margin"

	got := BuildSlug(title, "", "01ID")

	if len(got) > maxSlugLen {
		t.Fatalf("slug length = %d, want <= %d", len(got), maxSlugLen)
	}

	if strings.HasSuffix(got, "-") {
		t.Fatalf("slug should not end with a dash after truncation: %q", got)
	}
}
