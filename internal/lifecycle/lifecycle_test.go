package lifecycle_test

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/fellanH/context-vault/internal/lifecycle"
)

func newTestContext(t *testing.T) *lifecycle.Context {
	t.Helper()

	dir := t.TempDir()

	env := map[string]string{
		"CV_VAULT_DIR": dir + "/vault",
		"CV_DATA_DIR":  dir,
	}

	lc, err := lifecycle.New(t.Context(), nil, env, zap.NewNop())
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}

	t.Cleanup(func() { _ = lc.Shutdown(t.Context()) })

	return lc
}

func Test_Dispatch_UnknownTool_ReturnsNotFound(t *testing.T) {
	t.Parallel()

	lc := newTestContext(t)

	out, err := lc.Dispatch(t.Context(), "no_such_tool", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !strings.HasPrefix(out, "✗ NOT_FOUND") {
		t.Fatalf("output = %q, want ✗ NOT_FOUND prefix", out)
	}
}

func Test_Dispatch_SaveThenGet_RoundTrips(t *testing.T) {
	t.Parallel()

	lc := newTestContext(t)

	saved, err := lc.Dispatch(t.Context(), "save_context", map[string]any{
		"kind":  "note",
		"title": "dispatched note",
		"body":  "hello",
	})
	if err != nil {
		t.Fatalf("dispatch save: %v", err)
	}

	if !strings.HasPrefix(saved, "✓ Saved note") {
		t.Fatalf("save output = %q, want ✓ Saved note prefix", saved)
	}

	found, err := lc.Dispatch(t.Context(), "get_context", map[string]any{"query": "dispatched"})
	if err != nil {
		t.Fatalf("dispatch get: %v", err)
	}

	if !strings.Contains(found, "dispatched note") {
		t.Fatalf("get output = %q, want it to contain the saved title", found)
	}
}

func Test_Dispatch_ContextStatus_RunsWithoutColdStartSideEffects(t *testing.T) {
	t.Parallel()

	lc := newTestContext(t)

	out, err := lc.Dispatch(t.Context(), "context_status", nil)
	if err != nil {
		t.Fatalf("dispatch status: %v", err)
	}

	if !strings.HasPrefix(out, "✓ context-vault status") {
		t.Fatalf("status output = %q, want ✓ context-vault status prefix", out)
	}
}

func Test_Shutdown_ClosesStoreAndRejectsFurtherDataTools(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	env := map[string]string{"CV_VAULT_DIR": dir + "/vault", "CV_DATA_DIR": dir}

	lc, err := lifecycle.New(t.Context(), nil, env, zap.NewNop())
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}

	if err := lc.Shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out, err := lc.Dispatch(t.Context(), "save_context", map[string]any{"kind": "note", "title": "t", "body": "b"})
	if err != nil {
		t.Fatalf("dispatch after shutdown: %v", err)
	}

	if !strings.Contains(out, "shutting down") {
		t.Fatalf("output after shutdown = %q, want a shutting-down refusal", out)
	}
}
