package tools

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fellanH/context-vault/internal/index"
)

// NewContextStatus builds the context_status tool (spec §4.9.6): a
// read-only diagnostic that does not participate in the in-flight
// operation counter (spec §4.9's cold-start-guard note: "context_status
// must not participate in the active-op counter; it is safe to run during
// shutdown") - DataTool is left false.
func NewContextStatus(d Deps) *Tool {
	return &Tool{
		Name:        "context_status",
		Description: "Report resolved configuration, schema version, per-kind counts, and embedder health.",
		DataTool:    false,
		Schema:      Schema{},
		Execute: func(ctx context.Context, _ map[string]any) (string, error) {
			return contextStatus(ctx, d)
		},
	}
}

func contextStatus(ctx context.Context, d Deps) (string, error) {
	var b strings.Builder

	b.WriteString("✓ context-vault status\n")
	fmt.Fprintf(&b, "vault_dir: %s\n", d.Config.VaultDir)
	fmt.Fprintf(&b, "data_dir: %s\n", d.Config.DataDir)
	fmt.Fprintf(&b, "db_path: %s\n", d.Config.DBPath)

	fmt.Fprintf(&b, "schema_version: %d\n", d.Store.SchemaFingerprint())

	counts, err := kindCounts(ctx, d.Store)
	if err != nil {
		fmt.Fprintf(&b, "kind_counts: unavailable (%v)\n", err)
	} else {
		b.WriteString("kind_counts:\n")

		for _, kc := range counts {
			fmt.Fprintf(&b, "  %s: %d\n", kc.kind, kc.count)
		}
	}

	fmt.Fprintf(&b, "embedder: %s (available=%t)\n", d.Embedder.Name(), d.Embedder.Available())
	fmt.Fprintf(&b, "vector_search_enabled: %t\n", d.Store.VectorSearchEnabled())

	dirs := foundDirectories(d.Config.VaultDir)
	fmt.Fprintf(&b, "directories_found: %s\n", strings.Join(dirs, ", "))

	actions := suggestedActions(d)
	if len(actions) > 0 {
		b.WriteString("suggested_actions:\n")

		for _, a := range actions {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	return b.String(), nil
}

type kindCount struct {
	kind  string
	count int
}

func kindCounts(ctx context.Context, store *index.Store) ([]kindCount, error) {
	return index.Query(ctx, store, func(db *sql.DB) ([]kindCount, error) {
		rows, err := db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM "+index.EntriesTable+" GROUP BY kind ORDER BY kind")
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []kindCount

		for rows.Next() {
			var kc kindCount
			if err := rows.Scan(&kc.kind, &kc.count); err != nil {
				return nil, err
			}

			out = append(out, kc)
		}

		return out, rows.Err()
	})
}

func foundDirectories(vaultDir string) []string {
	candidates := []string{"knowledge", "entities", "events"}

	var found []string

	for _, c := range candidates {
		if info, err := os.Stat(vaultDir + "/" + c); err == nil && info.IsDir() {
			found = append(found, c)
		}
	}

	sort.Strings(found)

	return found
}

func suggestedActions(d Deps) []string {
	var actions []string

	if !d.Embedder.Available() {
		actions = append(actions, "embedder unavailable: semantic search will run lexical-only until a model is configured")
	}

	if !d.Store.VectorSearchEnabled() {
		actions = append(actions, "vector search disabled: rebuild with sqlite-vec support (cgo) to enable semantic ranking")
	}

	if _, err := os.Stat(d.Config.VaultDir); err != nil {
		actions = append(actions, fmt.Sprintf("vault directory %s is not accessible: %v", d.Config.VaultDir, err))
	}

	return actions
}
