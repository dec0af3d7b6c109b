package tools

import (
	"go.uber.org/zap"

	"github.com/fellanH/context-vault/internal/config"
	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/index"
	"github.com/fellanH/context-vault/internal/search"
)

// Deps are the shared dependencies every handler closes over when a New*
// constructor builds its Tool (spec §9: "model shared state as fields of a
// single context value passed to every handler").
type Deps struct {
	Store    *index.Store
	Searcher *search.Searcher
	Embedder embed.Adapter
	Config   config.Config
	Log      *zap.Logger
}

// Register builds and registers all five data tools plus context_status
// against d, in one call so cmd/contextvaultd doesn't have to enumerate
// the New* constructors itself.
func Register(reg *Registry, d Deps) error {
	for _, t := range []*Tool{
		NewSaveContext(d),
		NewGetContext(d),
		NewListContext(d),
		NewDeleteContext(d),
		NewIngestURL(d),
		NewContextStatus(d),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}

	return nil
}
