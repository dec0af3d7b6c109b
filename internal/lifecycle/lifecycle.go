package lifecycle

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fellanH/context-vault/internal/config"
	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/index"
	"github.com/fellanH/context-vault/internal/search"
	"github.com/fellanH/context-vault/internal/tools"
)

// Phase is one step of the startup sequence, logged as it completes.
type Phase string

const (
	PhaseConfig    Phase = "CONFIG"
	PhaseDirs      Phase = "DIRS"
	PhaseDB        Phase = "DB"
	PhaseServer    Phase = "SERVER"
	PhaseConnected Phase = "CONNECTED"
)

// New builds a Context through the phased startup SPEC_FULL.md §4.10
// describes (CONFIG -> DIRS -> DB -> SERVER -> CONNECTED), grounded on
// cmd/tk/main.go's "build env map, resolve config, fail fast" shape but
// extended with the additional phases a long-lived index/embedder/registry
// process needs beyond a one-shot CLI invocation.
func New(ctx context.Context, args []string, env map[string]string, log *zap.Logger) (*Context, error) {
	cfg, layers, err := config.Resolve(args, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PhaseConfig, err)
	}

	log.Info("startup phase complete", zap.String("phase", string(PhaseConfig)))

	if err := os.MkdirAll(cfg.VaultDir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: creating vault dir: %w", PhaseDirs, err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: creating data dir: %w", PhaseDirs, err)
	}

	log.Info("startup phase complete", zap.String("phase", string(PhaseDirs)))

	embedder := embed.NewHashAdapter(log)

	store, err := index.Open(ctx, cfg.VaultDir, embedder, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PhaseDB, err)
	}

	log.Info("startup phase complete", zap.String("phase", string(PhaseDB)))

	searcher := search.New(store, embedder, cfg.EventDecayDays)

	reg := tools.NewRegistry()
	if err := tools.Register(reg, tools.Deps{
		Store:    store,
		Searcher: searcher,
		Embedder: embedder,
		Config:   cfg,
		Log:      log,
	}); err != nil {
		_ = store.Close()

		return nil, fmt.Errorf("%s: registering tools: %w", PhaseServer, err)
	}

	log.Info("startup phase complete", zap.String("phase", string(PhaseServer)),
		zap.Strings("tools", reg.Names()))

	lc := &Context{
		Store:    store,
		Searcher: searcher,
		Embedder: embedder,
		Tools:    reg,
		Config:   cfg,
		Layers:   layers,
		Log:      log,
	}

	log.Info("startup phase complete", zap.String("phase", string(PhaseConnected)))

	return lc, nil
}
