// Package entry defines the context-vault knowledge unit and its mapping
// onto mddb.Document: ID generation, kind/category resolution, on-disk path
// derivation, and frontmatter encoding.
package entry

import (
	"fmt"
	"regexp"
	"strings"
)

// Category is one of the three fixed entry categories. It is always derived
// from Kind via KindToCategory and is never stored independently.
type Category string

const (
	CategoryKnowledge Category = "knowledge"
	CategoryEntity    Category = "entity"
	CategoryEvent     Category = "event"
)

// kindRegexp matches the required kind shape: lowercase, starts with a
// letter, up to 64 chars total.
var kindRegexp = regexp.MustCompile(`^[a-z][a-z0-9-]{0,63}$`)

// ValidKind reports whether kind matches the required shape.
func ValidKind(kind string) bool {
	return kindRegexp.MatchString(kind)
}

// kindToCategory is the canonical kind->category mapping. Kinds not listed
// here default to CategoryKnowledge.
var kindToCategory = map[string]Category{
	"insight":   CategoryKnowledge,
	"decision":  CategoryKnowledge,
	"pattern":   CategoryKnowledge,
	"note":      CategoryKnowledge,
	"document":  CategoryKnowledge,
	"reference": CategoryKnowledge,
	"prompt":    CategoryKnowledge,

	"contact": CategoryEntity,
	"project": CategoryEntity,
	"tool":    CategoryEntity,
	"source":  CategoryEntity,

	"conversation": CategoryEvent,
	"message":      CategoryEvent,
	"session":      CategoryEvent,
	"task":         CategoryEvent,
	"log":          CategoryEvent,
	"feedback":     CategoryEvent,
}

// CategoryForKind returns the category for kind, defaulting to
// CategoryKnowledge for kinds outside the canonical table.
func CategoryForKind(kind string) Category {
	if cat, ok := kindToCategory[kind]; ok {
		return cat
	}

	return CategoryKnowledge
}

// categoryDirs maps each category to its on-disk directory name (spec §6.2).
// Unlike kind directories these are fixed, not pluralized mechanically:
// "knowledge" stays singular, "entity"/"event" take their irregular plurals.
var categoryDirs = map[Category]string{
	CategoryKnowledge: "knowledge",
	CategoryEntity:    "entities",
	CategoryEvent:     "events",
}

// CategoryDir returns the on-disk directory name for category.
func CategoryDir(cat Category) string {
	if dir, ok := categoryDirs[cat]; ok {
		return dir
	}

	return string(cat)
}

// irregularPlurals overrides the naive pluralization below for kinds where it
// would otherwise produce an awkward form.
var irregularPlurals = map[string]string{}

// KindDir returns the pluralized directory name for kind (spec §4.3, §6.2).
func KindDir(kind string) string {
	if plural, ok := irregularPlurals[kind]; ok {
		return plural
	}

	return pluralize(kind)
}

// pluralize applies simple English pluralization rules sufficient for the
// short, lowercase kind identifiers this system accepts (no embedded spaces,
// ASCII only). This is not a general-purpose English pluralizer.
func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(s[len(s)-2]):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"), strings.HasSuffix(s, "z"),
		strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	default:
		return s + "s"
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}

// ErrInvalidKind is returned when a kind fails ValidKind.
var ErrInvalidKind = fmt.Errorf("kind must match %s", kindRegexp.String())

// RelPathFor computes the vault-relative path for an entry of the given
// kind, slug and id: <category-dir>/<kind-plural>/<slug>-<id>.md (spec §6.2).
func RelPathFor(kind, slug, id string) string {
	return fmt.Sprintf("%s/%s/%s-%s.md", CategoryDir(CategoryForKind(kind)), KindDir(kind), slug, id)
}
