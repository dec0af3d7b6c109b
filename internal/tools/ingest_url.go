package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/fellanH/context-vault/internal/entry"
	"github.com/fellanH/context-vault/internal/errcode"
)

// ingestFetchTimeout bounds the outbound fetch (spec §4.9.5: "fetches the
// URL with a bounded timeout").
const ingestFetchTimeout = 15 * time.Second

// defaultIngestKind is used when the caller doesn't specify one.
const defaultIngestKind = "reference"

// NewIngestURL builds the ingest_url tool (spec §4.9.5): fetch, convert
// HTML to Markdown, and run save_context's create path with the result.
func NewIngestURL(d Deps) *Tool {
	return &Tool{
		Name:        "ingest_url",
		Description: "Fetch a URL, convert it to Markdown, and save it as a context entry.",
		DataTool:    true,
		Schema: Schema{
			Required: []string{"url"},
			Properties: map[string]Property{
				"url":     {Type: "string"},
				"kind":    {Type: "string"},
				"tags":    {Type: "array", Items: &Property{Type: "string"}},
				"dry_run": {Type: "boolean"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return ingestURL(ctx, d, args)
		},
	}
}

func ingestURL(ctx context.Context, d Deps, args map[string]any) (string, error) {
	rawURL := stringArg(args, "url")
	if rawURL == "" {
		return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("url is required"))), nil
	}

	kind := stringArg(args, "kind")
	if kind == "" {
		kind = defaultIngestKind
	}

	if !entry.ValidKind(kind) {
		return formatError(errcode.New(errcode.InvalidKind, entry.ErrInvalidKind)), nil
	}

	// identity_key is only computed for entity-category kinds (spec §9.2):
	// the default kind, "reference", is a knowledge kind, so a plain
	// ingest_url call saves a new entry each time unless the caller opts
	// into an entity kind to get upsert-on-repeat-ingest behavior.
	var identityKey string

	if entry.CategoryForKind(kind) == entry.CategoryEntity {
		var err error

		identityKey, err = identityKeyForURL(rawURL)
		if err != nil {
			return formatError(errcode.New(errcode.InvalidInput, fmt.Errorf("url: %w", err))), nil
		}
	}

	html, err := fetchURL(ctx, rawURL)
	if err != nil {
		return formatError(errcode.New(errcode.Internal, fmt.Errorf("fetch %s: %w", rawURL, err))), nil
	}

	body, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return formatError(errcode.New(errcode.Internal, fmt.Errorf("convert %s: %w", rawURL, err))), nil
	}

	if boolArg(args, "dry_run") {
		return fmt.Sprintf("✓ Dry run: would save %s from %s (%d bytes converted)", kind, rawURL, len(body)), nil
	}

	createArgs := map[string]any{
		"kind":         kind,
		"title":        rawURL,
		"body":         body,
		"tags":         anySlice(stringSliceArg(args, "tags")),
		"source":       rawURL,
		"identity_key": identityKey,
	}

	return saveContextCreate(ctx, d, createArgs)
}

// identityKeyForURL resolves the open question spec §9 raises about
// ingest_url retries: identity_key is sha256 of the normalized URL, so a
// repeat ingest of the same page upserts instead of duplicating.
func identityKeyForURL(raw string) (string, error) {
	normalized, err := normalizeURL(raw)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:]), nil
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

func fetchURL(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ingestFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func anySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}

	return out
}
