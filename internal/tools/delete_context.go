package tools

import (
	"context"
	"fmt"

	"github.com/fellanH/context-vault/internal/errcode"
)

// NewDeleteContext builds the delete_context tool (spec §4.9.4): idempotent
// removal of file, row, and embedding, in that order.
func NewDeleteContext(d Deps) *Tool {
	return &Tool{
		Name:        "delete_context",
		Description: "Delete a context entry by id. Idempotent.",
		DataTool:    true,
		Schema: Schema{
			Required: []string{"id"},
			Properties: map[string]Property{
				"id": {Type: "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return deleteContext(ctx, d, args)
		},
	}
}

func deleteContext(ctx context.Context, d Deps, args map[string]any) (string, error) {
	id := stringArg(args, "id")
	if id == "" {
		return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("id is required"))), nil
	}

	if _, err := d.Store.Get(ctx, id); err != nil {
		return formatError(err), nil
	}

	if err := d.Store.Delete(ctx, id); err != nil {
		return formatError(err), nil
	}

	return fmt.Sprintf("✓ Deleted %s", id), nil
}
