package tools

import (
	"errors"
	"fmt"

	"github.com/fellanH/context-vault/internal/errcode"
)

// formatError renders err as a "✗ <CODE>: message" response line (spec §7:
// "Error results are text responses with a leading ✗ and the code"). This
// is the one place an unclassified error becomes errcode.Internal - no
// handler propagates a raw storage or I/O error to its caller.
func formatError(err error) string {
	var ce *errcode.Error
	if errors.As(err, &ce) {
		return fmt.Sprintf("✗ %s: %s", ce.Code, ce.Error())
	}

	return fmt.Sprintf("✗ %s: %s", errcode.Internal, err.Error())
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)

	return v
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)

	return v
}

// intArg reads an integer argument, tolerating the float64 shape JSON
// decoding produces for numeric values. Returns def if key is absent or
// not numeric.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))

	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

func mapArg(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)

	return v
}
