package tools

import (
	"encoding/json"
	"fmt"

	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/pkg/mddb/frontmatter"
)

// metaFromArgs converts a caller-supplied meta object into the discriminated
// union internal/entry.Entry.Meta stores (spec §9: "expose meta to handlers
// as a typed map whose values are a discriminated union of {string, number,
// bool, null, array, object}"). null values and object-typed entries whose
// own values aren't scalars are dropped: the frontmatter codec's restricted
// YAML subset only allows scalar values inside an object (pkg/mddb/
// frontmatter.ObjectEntry), so a deeper nested structure has no lossless
// on-disk representation and is rejected as FRONTMATTER_UNSUPPORTED instead
// of silently truncated.
func metaFromArgs(raw map[string]any) (map[string]frontmatter.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}

	if len(encoded) > entry.MaxMetaEncodedLen {
		return nil, fmt.Errorf("meta exceeds %d encoded bytes", entry.MaxMetaEncodedLen)
	}

	out := make(map[string]frontmatter.Value, len(raw))

	for k, v := range raw {
		val, ok, err := metaValue(v)
		if err != nil {
			return nil, fmt.Errorf("meta.%s: %w", k, err)
		}

		if ok {
			out[k] = val
		}
	}

	return out, nil
}

func metaValue(v any) (frontmatter.Value, bool, error) {
	switch t := v.(type) {
	case nil:
		return frontmatter.Value{}, false, nil
	case string:
		return *frontmatter.StringValue(t), true, nil
	case bool:
		return *frontmatter.BoolValue(t), true, nil
	case float64:
		return *frontmatter.IntValue(int64(t)), true, nil
	case []any:
		items := make([]string, 0, len(t))

		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return frontmatter.Value{}, false, fmt.Errorf("array entries must be strings")
			}

			items = append(items, s)
		}

		return *frontmatter.StringListValue(items), true, nil
	case map[string]any:
		entries := make([]frontmatter.ObjectEntry, 0, len(t))

		for k, ev := range t {
			scalar, ok, err := metaScalar(ev)
			if err != nil {
				return frontmatter.Value{}, false, err
			}

			if ok {
				entries = append(entries, frontmatter.ObjectEntry{Key: []byte(k), Value: scalar})
			}
		}

		return frontmatter.Value{Kind: frontmatter.ValueObject, Object: entries}, true, nil
	default:
		return frontmatter.Value{}, false, fmt.Errorf("unsupported meta value type %T", v)
	}
}

func metaScalar(v any) (frontmatter.Scalar, bool, error) {
	switch t := v.(type) {
	case nil:
		return frontmatter.Scalar{}, false, nil
	case string:
		return frontmatter.Scalar{Kind: frontmatter.ScalarString, Bytes: []byte(t)}, true, nil
	case bool:
		return frontmatter.Scalar{Kind: frontmatter.ScalarBool, Bool: t}, true, nil
	case float64:
		return frontmatter.Scalar{Kind: frontmatter.ScalarInt, Int: int64(t)}, true, nil
	default:
		return frontmatter.Scalar{}, false, fmt.Errorf("object values must be scalar, got %T", v)
	}
}
