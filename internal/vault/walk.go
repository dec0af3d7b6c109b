package vault

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fellanH/context-vault/internal/entry"
)

// Walk visits every ".md" file under root, calling fn with the file's path
// relative to root. It skips hidden entries (dot-prefixed) and directories
// whose basename begins with "_" (conventional exclusion, spec §4.4), the
// same convention pkg/mddb's own reindex walk applies to its internal
// ".mddb" directory, generalized here to any leading-underscore directory.
//
// A non-nil error from fn aborts the walk and is returned as-is.
func Walk(root string, fn func(relPath string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		if rel == "." {
			return nil
		}

		base := filepath.Base(rel)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		if filepath.Ext(path) != ".md" {
			return nil
		}

		return fn(rel)
	})
}

// LegacyCandidates returns the relative directories to try, in order, when
// looking for a kind's files under a possibly-unmigrated vault: the current
// category-aware layout first (<category-dir>/<kind-plural>/), then the
// legacy flat layout (<kind-plural>/) a vault written before categories
// existed would still have on disk (spec §4.7 step 1).
func LegacyCandidates(kind string) []string {
	category := entry.CategoryDir(entry.CategoryForKind(kind))
	kindDir := entry.KindDir(kind)

	return []string{
		category + "/" + kindDir,
		kindDir,
	}
}
