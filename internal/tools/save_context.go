package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/internal/errcode"
)

// NewSaveContext builds the save_context tool (spec §4.9.1): create mode
// when id is absent, update mode (merge, preserve-prior per spec §9's open
// question) when present, with an identity-based upsert short-circuit for
// entity-category entries.
func NewSaveContext(d Deps) *Tool {
	return &Tool{
		Name:        "save_context",
		Description: "Save a new context entry, or update an existing one by id or identity_key.",
		DataTool:    true,
		Schema: Schema{
			Properties: map[string]Property{
				"id":           {Type: "string", Description: "existing entry id; present means update"},
				"kind":         {Type: "string", Description: "entry kind"},
				"title":        {Type: "string"},
				"body":         {Type: "string"},
				"tags":         {Type: "array", Items: &Property{Type: "string"}},
				"source":       {Type: "string"},
				"identity_key": {Type: "string"},
				"expires_at":   {Type: "string", Description: "ISO-8601 timestamp"},
				"meta":         {Type: "object"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return saveContext(ctx, d, args)
		},
	}
}

func saveContext(ctx context.Context, d Deps, args map[string]any) (string, error) {
	id := stringArg(args, "id")

	if id != "" {
		return saveContextUpdate(ctx, d, id, args)
	}

	return saveContextCreate(ctx, d, args)
}

func saveContextCreate(ctx context.Context, d Deps, args map[string]any) (string, error) {
	kind := stringArg(args, "kind")
	if kind == "" {
		return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("kind is required"))), nil
	}

	if !entry.ValidKind(kind) {
		return formatError(errcode.New(errcode.InvalidKind, entry.ErrInvalidKind)), nil
	}

	body := stringArg(args, "body")
	if body == "" {
		return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("body is required"))), nil
	}

	identityKey := stringArg(args, "identity_key")

	if identityKey != "" {
		existing, err := d.Store.GetByIdentity(ctx, kind, identityKey)
		if err == nil {
			return saveContextApplyUpdate(ctx, d, existing, args, true)
		}

		var ce *errcode.Error
		if !errors.As(err, &ce) || ce.Code != errcode.NotFound {
			return formatError(err), nil
		}
	}

	meta, err := metaFromArgs(mapArg(args, "meta"))
	if err != nil {
		return formatError(errcode.New(errcode.FrontmatterUnsupported, err)), nil
	}

	e, err := entry.New(kind, stringArg(args, "title"), body, stringSliceArg(args, "tags"), stringArg(args, "source"))
	if err != nil {
		return formatError(classifyEntryError(err)), nil
	}

	e.IdentityKey = identityKey
	e.Meta = meta

	if expiresAt := stringArg(args, "expires_at"); expiresAt != "" {
		t, perr := time.Parse(time.RFC3339, expiresAt)
		if perr != nil {
			return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("expires_at: %w", perr))), nil
		}

		e.ExpiresAt = &t
	}

	if err := e.Validate(); err != nil {
		return formatError(classifyEntryError(err)), nil
	}

	if _, err := d.Store.Create(ctx, e); err != nil {
		return formatError(err), nil
	}

	return fmt.Sprintf("✓ Saved %s (id=%s)", kind, e.ID()), nil
}

func saveContextUpdate(ctx context.Context, d Deps, id string, args map[string]any) (string, error) {
	existing, err := d.Store.Get(ctx, id)
	if err != nil {
		return formatError(err), nil
	}

	return saveContextApplyUpdate(ctx, d, existing, args, false)
}

// saveContextApplyUpdate merges args onto existing (preserve-prior for any
// field the caller omitted) and rewrites it through Store.Update. viaUpsert
// distinguishes the identity-key upsert path from an explicit id update only
// for the response text ("Saved" vs "Updated" would be equally defensible
// for upsert; spec §4.9.1 treats upsert as the create mode's target, so the
// upsert path reports "Saved").
func saveContextApplyUpdate(ctx context.Context, d Deps, existing *entry.Entry, args map[string]any, viaUpsert bool) (string, error) {
	if kind := stringArg(args, "kind"); kind != "" && kind != existing.Kind {
		return formatError(errcode.New(errcode.InvalidUpdate, fmt.Errorf("kind cannot change on update"))), nil
	}

	if identityKey := stringArg(args, "identity_key"); identityKey != "" && identityKey != existing.IdentityKey {
		return formatError(errcode.New(errcode.InvalidUpdate, fmt.Errorf("identity_key cannot change on update"))), nil
	}

	if title := stringArg(args, "title"); title != "" {
		existing.SetTitle(title)
	}

	if body := stringArg(args, "body"); body != "" {
		existing.SetBody(body)
	}

	if tags := stringSliceArg(args, "tags"); tags != nil {
		existing.Tags = tags
	}

	if source := stringArg(args, "source"); source != "" {
		existing.Source = source
	}

	if expiresAt := stringArg(args, "expires_at"); expiresAt != "" {
		t, perr := time.Parse(time.RFC3339, expiresAt)
		if perr != nil {
			return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("expires_at: %w", perr))), nil
		}

		existing.ExpiresAt = &t
	}

	if rawMeta := mapArg(args, "meta"); rawMeta != nil {
		meta, err := metaFromArgs(rawMeta)
		if err != nil {
			return formatError(errcode.New(errcode.FrontmatterUnsupported, err)), nil
		}

		existing.Meta = meta
	}

	if err := existing.Validate(); err != nil {
		return formatError(classifyEntryError(err)), nil
	}

	if _, err := d.Store.Update(ctx, existing); err != nil {
		return formatError(err), nil
	}

	verb := "Updated"
	if viaUpsert {
		verb = "Saved"
	}

	return fmt.Sprintf("✓ %s %s (id=%s)", verb, existing.Kind, existing.ID()), nil
}

// classifyEntryError maps entry.Validate's plain errors onto the stable
// error codes spec §7 names; entry.Entry itself returns sentinel/plain
// errors rather than errcode.Error since it has no dependency on errcode's
// HTTP-adjacent taxonomy (internal/entry predates tool dispatch).
func classifyEntryError(err error) error {
	if errors.Is(err, entry.ErrInvalidKind) {
		return errcode.New(errcode.InvalidKind, err)
	}

	if errors.Is(err, entry.ErrMissingIdentityKey) {
		return errcode.New(errcode.MissingIdentityKey, err)
	}

	return errcode.New(errcode.InvalidInput, err)
}
