// Package vault implements path safety and the filesystem writer for entry
// markdown files: computing and validating on-disk locations under a vault
// root, and reading/writing those files atomically.
package vault

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/internal/errcode"
)

// SafeJoin canonicalizes base and the joined parts, and fails with
// errcode.PathTraversal if the result is not base itself or lexically
// rooted under base. Parts are applied left to right; an absolute part
// replaces the path accumulated so far (same as every other path-joining
// convention treats an absolute segment), so it is only rejected once the
// final, cleaned result actually lands outside base - an absolute segment
// that happens to resolve back inside base is permitted.
func SafeJoin(base string, parts ...string) (string, error) {
	cleanBase := filepath.Clean(base)

	candidate := cleanBase
	for _, part := range parts {
		if filepath.IsAbs(part) {
			candidate = filepath.Clean(part)
			continue
		}

		candidate = filepath.Join(candidate, part)
	}

	if candidate != cleanBase && !strings.HasPrefix(candidate, cleanBase+string(filepath.Separator)) {
		return "", errcode.New(errcode.PathTraversal,
			fmt.Errorf("join of %q escapes base %q", strings.Join(parts, string(filepath.Separator)), base))
	}

	return candidate, nil
}

// SafeFolderPath computes <vault>/<category-dir>/<kind-dir>/<folder> for
// kind and verifies the canonical result is within vault. folder may be
// empty, in which case the kind directory itself is returned.
func SafeFolderPath(vaultDir, kind, folder string) (string, error) {
	category := entry.CategoryForKind(kind)
	kindDir := entry.KindDir(kind)

	if folder == "" {
		return SafeJoin(vaultDir, entry.CategoryDir(category), kindDir)
	}

	return SafeJoin(vaultDir, entry.CategoryDir(category), kindDir, folder)
}
