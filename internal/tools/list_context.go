package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/fellanH/context-vault/internal/search"
)

const listBodyPreviewLen = 120

// NewListContext builds the list_context tool (spec §4.9.3): a plain,
// filtered, reverse-chronological listing, with a truncated body preview
// instead of full bodies.
func NewListContext(d Deps) *Tool {
	return &Tool{
		Name:        "list_context",
		Description: "List saved context entries, optionally filtered, newest first.",
		DataTool:    true,
		Schema: Schema{
			Properties: map[string]Property{
				"kind":     {Type: "string"},
				"category": {Type: "string"},
				"tags":     {Type: "array", Items: &Property{Type: "string"}},
				"limit":    {Type: "integer"},
				"offset":   {Type: "integer"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return listContext(ctx, d, args)
		},
	}
}

func listContext(ctx context.Context, d Deps, args map[string]any) (string, error) {
	opts := search.ListOptions{
		Kind:     stringArg(args, "kind"),
		Category: stringArg(args, "category"),
		Tags:     stringSliceArg(args, "tags"),
		Limit:    intArg(args, "limit", 0),
		Offset:   intArg(args, "offset", 0),
	}

	result, err := d.Searcher.List(ctx, opts)
	if err != nil {
		return formatError(err), nil
	}

	var b strings.Builder

	fmt.Fprintf(&b, "✓ %d shown, %d total\n", len(result.Hits), result.Total)

	for _, h := range result.Hits {
		fmt.Fprintf(&b, "- [%s/%s] %s (id=%s) %s\n", h.Category, h.Kind, h.Title, h.ID, truncate(h.Body, listBodyPreviewLen))
	}

	if opts.Offset+len(result.Hits) < result.Total {
		fmt.Fprintf(&b, "(more available: pass offset=%d)\n", opts.Offset+len(result.Hits))
	}

	return b.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
