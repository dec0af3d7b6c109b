package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fellanH/context-vault/internal/errcode"
	"github.com/fellanH/context-vault/internal/search"
)

// NewGetContext builds the get_context tool (spec §4.9.2): hybrid ranked
// retrieval, requiring at least one of query/kind/category/tags/
// identity_key.
func NewGetContext(d Deps) *Tool {
	return &Tool{
		Name:        "get_context",
		Description: "Search saved context entries by query, filters, or an exact identity_key.",
		DataTool:    true,
		Schema: Schema{
			Properties: map[string]Property{
				"query":        {Type: "string"},
				"kind":         {Type: "string"},
				"category":     {Type: "string"},
				"tags":         {Type: "array", Items: &Property{Type: "string"}},
				"identity_key": {Type: "string"},
				"since":        {Type: "string"},
				"until":        {Type: "string"},
				"limit":        {Type: "integer"},
				"offset":       {Type: "integer"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return getContext(ctx, d, args)
		},
	}
}

func getContext(ctx context.Context, d Deps, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	kind := stringArg(args, "kind")
	category := stringArg(args, "category")
	tags := stringSliceArg(args, "tags")
	identityKey := stringArg(args, "identity_key")

	if query == "" && kind == "" && category == "" && len(tags) == 0 && identityKey == "" {
		return formatError(errcode.New(errcode.InvalidInput,
			fmt.Errorf("at least one of query, kind, category, tags, identity_key is required"))), nil
	}

	if identityKey != "" && kind == "" {
		return formatError(errcode.New(errcode.InvalidInput,
			fmt.Errorf("identity_key requires kind"))), nil
	}

	opts := search.Options{
		Kind:        kind,
		Category:    category,
		Tags:        tags,
		IdentityKey: identityKey,
		Limit:       intArg(args, "limit", 0),
		Offset:      intArg(args, "offset", 0),
	}

	if since := stringArg(args, "since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("since: %w", err))), nil
		}

		opts.Since = &t
	}

	if until := stringArg(args, "until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("until: %w", err))), nil
		}

		opts.Until = &t
	}

	result, err := d.Searcher.Search(ctx, query, opts)
	if err != nil {
		return formatError(err), nil
	}

	var b strings.Builder

	fmt.Fprintf(&b, "✓ %d found", len(result.Hits))

	if result.SemanticDisabled {
		b.WriteString(" (semantic search disabled; lexical only)")
	}

	b.WriteString("\n")

	for _, h := range result.Hits {
		fmt.Fprintf(&b, "- [%s/%s] %s (id=%s, score=%.3f)\n", h.Category, h.Kind, h.Title, h.ID, h.Score)
	}

	return b.String(), nil
}
