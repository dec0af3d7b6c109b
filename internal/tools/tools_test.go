package tools_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fellanH/context-vault/internal/config"
	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/index"
	"github.com/fellanH/context-vault/internal/search"
	"github.com/fellanH/context-vault/internal/tools"
)

func newTestDeps(t *testing.T) tools.Deps {
	t.Helper()

	dir := t.TempDir()

	embedder := embed.NewHashAdapter(nil)

	store, err := index.Open(t.Context(), dir, embedder, nil)
	require.NoError(t, err, "open store")

	t.Cleanup(func() { _ = store.Close() })

	return tools.Deps{
		Store:    store,
		Searcher: search.New(store, embedder, config.DefaultEventDecayDays),
		Embedder: embedder,
		Config:   config.Config{VaultDir: dir, DataDir: dir, DBPath: dir + "/vault.db", EventDecayDays: config.DefaultEventDecayDays},
	}
}

func mustExec(t *testing.T, tool *tools.Tool, args map[string]any) string {
	t.Helper()

	out, err := tool.Execute(t.Context(), args)
	require.NoErrorf(t, err, "%s: unexpected error", tool.Name)

	return out
}

func Test_SaveContext_Create_ThenGetByID(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)

	out := mustExec(t, save, map[string]any{
		"kind":  "note",
		"title": "first note",
		"body":  "hello world",
	})

	require.True(t, strings.HasPrefix(out, "✓ Saved note"), "save output = %q, want ✓ Saved note prefix", out)
}

func Test_SaveContext_MissingBody_ReturnsInvalidInputError(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)

	out := mustExec(t, save, map[string]any{"kind": "note"})

	require.True(t, strings.HasPrefix(out, "✗ INVALID_INPUT"), "save output = %q, want ✗ INVALID_INPUT prefix", out)
}

func Test_SaveContext_IdentityKeyUpsert_UpdatesInPlace(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)

	first := mustExec(t, save, map[string]any{
		"kind":         "contact",
		"title":        "Jane Doe",
		"body":         "works at Acme",
		"identity_key": "jane-doe",
	})
	require.True(t, strings.HasPrefix(first, "✓ Saved contact"), "first save = %q", first)

	second := mustExec(t, save, map[string]any{
		"kind":         "contact",
		"title":        "Jane Doe",
		"body":         "works at Acme Corp now",
		"identity_key": "jane-doe",
	})
	require.True(t, strings.HasPrefix(second, "✓ Saved contact"), "upsert save = %q, want ✓ Saved contact prefix", second)

	list := tools.NewListContext(d)
	listed := mustExec(t, list, map[string]any{"kind": "contact"})

	require.Contains(t, listed, "1 shown, 1 total", "list after upsert, want exactly one contact")
}

func Test_SaveContext_Update_RejectsKindChange(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)

	created := mustExec(t, save, map[string]any{"kind": "note", "title": "t", "body": "b"})
	id := extractID(t, created)

	out := mustExec(t, save, map[string]any{"id": id, "kind": "entity"})
	require.True(t, strings.HasPrefix(out, "✗ INVALID_UPDATE"), "update output = %q, want ✗ INVALID_UPDATE prefix", out)
}

func Test_GetContext_RequiresAtLeastOneFilter(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	get := tools.NewGetContext(d)

	out := mustExec(t, get, map[string]any{})
	require.True(t, strings.HasPrefix(out, "✗ INVALID_INPUT"), "get_context output = %q, want ✗ INVALID_INPUT prefix", out)
}

func Test_GetContext_FindsSavedEntryByQuery(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)
	get := tools.NewGetContext(d)

	mustExec(t, save, map[string]any{"kind": "note", "title": "rocket launch plan", "body": "details"})

	out := mustExec(t, get, map[string]any{"query": "rocket"})
	require.Contains(t, out, "rocket launch plan")
}

func Test_ListContext_ShowsNewestFirstWithTotal(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)
	list := tools.NewListContext(d)

	mustExec(t, save, map[string]any{"kind": "note", "title": "one", "body": "b"})
	mustExec(t, save, map[string]any{"kind": "note", "title": "two", "body": "b"})

	out := mustExec(t, list, map[string]any{"kind": "note"})
	require.Contains(t, out, "2 shown, 2 total")
}

func Test_DeleteContext_IsIdempotent(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)
	del := tools.NewDeleteContext(d)

	created := mustExec(t, save, map[string]any{"kind": "note", "title": "t", "body": "b"})
	id := extractID(t, created)

	first := mustExec(t, del, map[string]any{"id": id})
	require.True(t, strings.HasPrefix(first, "✓ Deleted"), "first delete = %q", first)

	second := mustExec(t, del, map[string]any{"id": id})
	require.True(t, strings.HasPrefix(second, "✗ NOT_FOUND"), "second delete = %q, want ✗ NOT_FOUND prefix", second)
}

func Test_DeleteContext_MissingID_ReturnsInvalidInput(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	del := tools.NewDeleteContext(d)

	out := mustExec(t, del, map[string]any{})
	require.True(t, strings.HasPrefix(out, "✗ INVALID_INPUT"), "delete output = %q, want ✗ INVALID_INPUT prefix", out)
}

func Test_IngestURL_DryRunSkipsSave(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	ingest := tools.NewIngestURL(d)
	list := tools.NewListContext(d)

	out := mustExec(t, ingest, map[string]any{"url": "https://example.com/page", "dry_run": true})
	require.True(t, strings.HasPrefix(out, "✓ Dry run"), "dry run output = %q, want ✓ Dry run prefix", out)

	listed := mustExec(t, list, map[string]any{})
	require.Contains(t, listed, "0 shown, 0 total", "nothing should be saved on a dry run")
}

func Test_ContextStatus_ReportsConfigAndCounts(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	save := tools.NewSaveContext(d)
	status := tools.NewContextStatus(d)

	mustExec(t, save, map[string]any{"kind": "note", "title": "t", "body": "b"})

	out := mustExec(t, status, map[string]any{})
	require.True(t, strings.HasPrefix(out, "✓ context-vault status"), "status output = %q, want ✓ context-vault status prefix", out)
	require.Contains(t, out, "note: 1", "want note: 1 in kind_counts")
	require.Contains(t, out, "schema_version:", "want a schema_version line")
}

func Test_Registry_RegistersAllSixTools(t *testing.T) {
	t.Parallel()

	d := newTestDeps(t)
	reg := tools.NewRegistry()

	require.NoError(t, tools.Register(reg, d))

	want := []string{"context_status", "delete_context", "get_context", "ingest_url", "list_context", "save_context"}
	require.Equal(t, want, reg.Names())
}

func extractID(t *testing.T, saveOutput string) string {
	t.Helper()

	i := strings.Index(saveOutput, "id=")
	require.GreaterOrEqualf(t, i, 0, "no id= in output %q", saveOutput)

	rest := saveOutput[i+len("id="):]

	end := strings.IndexByte(rest, ')')
	require.GreaterOrEqualf(t, end, 0, "no closing paren after id= in output %q", saveOutput)

	return rest[:end]
}
