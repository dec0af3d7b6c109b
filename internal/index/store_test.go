package index_test

import (
	"testing"

	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/internal/errcode"
	"github.com/fellanH/context-vault/internal/index"
)

func openTestStore(t *testing.T) *index.Store {
	t.Helper()

	s, err := index.Open(t.Context(), t.TempDir(), embed.NewHashAdapter(nil), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newTestEntry(t *testing.T, kind, title, body string) *entry.Entry {
	t.Helper()

	e, err := entry.New(kind, title, body, []string{"alpha", "beta"}, "unit-test")
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}

	return e
}

func Test_Store_CreateThenGet_RoundTrips(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := newTestEntry(t, "note", "first note", "body text")

	if _, err := s.Create(t.Context(), e); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(t.Context(), e.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Title() != e.Title() || got.Body() != e.Body() || got.Kind != e.Kind {
		t.Fatalf("round-tripped entry = %+v, want title/body/kind of %+v", got, e)
	}
}

func Test_Store_Create_Twice_ReturnsInvalidInput(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := newTestEntry(t, "note", "dup", "body")

	if _, err := s.Create(t.Context(), e); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := s.Create(t.Context(), e)
	if err == nil {
		t.Fatal("expected error creating the same entry twice")
	}

	var ce *errcode.Error
	if !asErrcode(err, &ce) || ce.Code != errcode.InvalidInput {
		t.Fatalf("err = %v, want errcode.InvalidInput", err)
	}
}

func Test_Store_Update_RewritesAtSamePath(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := newTestEntry(t, "note", "before", "body")

	if _, err := s.Create(t.Context(), e); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := s.Get(t.Context(), e.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	originalPath := loaded.RelPath()
	loaded.SetTitle("after")

	if _, err := s.Update(t.Context(), loaded); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, err := s.Get(t.Context(), e.ID())
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}

	if updated.Title() != "after" {
		t.Fatalf("title = %q, want %q", updated.Title(), "after")
	}

	if updated.RelPath() != originalPath {
		t.Fatalf("path changed on update: %q != %q", updated.RelPath(), originalPath)
	}
}

func Test_Store_Update_UnknownID_ReturnsNotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := newTestEntry(t, "note", "ghost", "body")

	_, err := s.Update(t.Context(), e)

	var ce *errcode.Error
	if !asErrcode(err, &ce) || ce.Code != errcode.NotFound {
		t.Fatalf("err = %v, want errcode.NotFound", err)
	}
}

func Test_Store_Delete_RemovesEntryAndIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := newTestEntry(t, "note", "to delete", "body")

	if _, err := s.Create(t.Context(), e); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Delete(t.Context(), e.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := s.Get(t.Context(), e.ID())

	var ce *errcode.Error
	if !asErrcode(err, &ce) || ce.Code != errcode.NotFound {
		t.Fatalf("get after delete err = %v, want errcode.NotFound", err)
	}

	if err := s.Delete(t.Context(), e.ID()); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}
}

func Test_Store_GetByIdentity_FindsEntityByKindAndIdentityKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := newTestEntry(t, "contact", "Jane Doe", "works at Acme")
	e.IdentityKey = "jane-doe"

	if _, err := s.Create(t.Context(), e); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetByIdentity(t.Context(), "contact", "jane-doe")
	if err != nil {
		t.Fatalf("get by identity: %v", err)
	}

	if got.ID() != e.ID() {
		t.Fatalf("got id %q, want %q", got.ID(), e.ID())
	}

	_, err = s.GetByIdentity(t.Context(), "contact", "no-such-key")

	var ce *errcode.Error
	if !asErrcode(err, &ce) || ce.Code != errcode.NotFound {
		t.Fatalf("err = %v, want errcode.NotFound", err)
	}
}

func asErrcode(err error, target **errcode.Error) bool {
	ce, ok := err.(*errcode.Error)
	if ok {
		*target = ce
	}

	return ok
}
