// Package embed defines the embedder adapter contract (spec §4.5) and a
// deterministic, always-pure default implementation.
package embed

import (
	"context"
	"fmt"

	"github.com/fellanH/context-vault/internal/errcode"
)

// Dimensions is the fixed vector width every Adapter in this process uses
// (spec §4.5's canonical D). It does not vary at runtime: entries_vec
// (C6) is created with this width baked into its vec0 column definition.
const Dimensions = 384

// Adapter generates embeddings for entry content. Implementations must be
// pure with respect to inputs after warm-up: no I/O side effects, same
// text always yields the same vector.
type Adapter interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany generates embeddings for texts, in input order, processed
	// in bounded batches by implementations that benefit from batching.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Available reports whether the adapter can currently serve Embed/
	// EmbedMany. false means every call fails with errcode.EmbedUnavailable
	// (spec §4.5: "the adapter may be unavailable (model missing)").
	Available() bool

	// Name identifies the adapter for diagnostics (context_status).
	Name() string
}

// ErrUnavailable is the sentinel cause wrapped by errcode.EmbedUnavailable
// errors returned when Available() is false.
var ErrUnavailable = fmt.Errorf("embedder unavailable")

// unavailableAdapter always reports unavailable and fails every call with
// errcode.EmbedUnavailable, modeling the "model missing" condition spec
// §4.5 calls out explicitly rather than leaving it to each caller to guess.
type unavailableAdapter struct {
	name string
}

// NewUnavailable returns an Adapter that reports unavailable under the
// given name, e.g. when the resolved model path does not exist on disk.
func NewUnavailable(name string) Adapter {
	return &unavailableAdapter{name: name}
}

func (a *unavailableAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errcode.New(errcode.EmbedUnavailable, ErrUnavailable)
}

func (a *unavailableAdapter) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errcode.New(errcode.EmbedUnavailable, ErrUnavailable)
}

func (a *unavailableAdapter) Available() bool { return false }

func (a *unavailableAdapter) Name() string { return a.name }
