// Package lifecycle wires the shared process state - database handle,
// embedder, searcher, tool registry, resolved config, logger - and the
// session cold-start/shutdown machinery spec §4.9/§4.10 describe, so
// cmd/contextvaultd has a single value to construct, dispatch through, and
// tear down.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fellanH/context-vault/internal/config"
	"github.com/fellanH/context-vault/internal/embed"
	"github.com/fellanH/context-vault/internal/index"
	"github.com/fellanH/context-vault/internal/search"
	"github.com/fellanH/context-vault/internal/tools"
)

// ShutdownGrace bounds how long Shutdown waits for in-flight data-tool
// calls to drain before returning anyway (spec's graceful-shutdown model,
// grounded on internal/cli/run.go's 5s signal-then-timeout shape).
const ShutdownGrace = 5 * time.Second

// Context is the single shared value passed to every handler (spec §9:
// "model them as fields of a single context value passed to every handler;
// avoid module-level singletons that are hard to reset in tests").
type Context struct {
	Store    *index.Store
	Searcher *search.Searcher
	Embedder embed.Adapter
	Tools    *tools.Registry
	Config   config.Config
	Layers   map[string]config.Layer
	Log      *zap.Logger

	coldStartOnce sync.Once
	coldStartErr  error

	activeOps sync.WaitGroup
	draining  atomic.Bool
}

// Dispatch runs tool name with args, applying the cold-start reconciliation
// guard and the in-flight operation counter to every data tool (spec §4.9's
// "cold-start guard applies to all data tools"; context_status is exempt by
// having DataTool: false).
func (c *Context) Dispatch(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := c.Tools.Get(name)
	if !ok {
		return "✗ NOT_FOUND: unknown tool " + name, nil
	}

	if !t.DataTool {
		return t.Execute(ctx, args)
	}

	if c.draining.Load() {
		return "✗ INTERNAL: server is shutting down", nil
	}

	c.awaitColdStart(ctx)

	c.activeOps.Add(1)
	defer c.activeOps.Done()

	return t.Execute(ctx, args)
}

// awaitColdStart runs the session's one full reconciliation on the first
// data-tool call and lets every later call (successful or not) proceed
// without re-running it (spec §4.9: "On the first tool invocation within a
// session, tool dispatch awaits a reconciliation in full mode"). A failed
// cold start is logged and does not block subsequent dispatch; handlers
// that depend on derived data will simply see whatever state reconciliation
// left behind.
func (c *Context) awaitColdStart(ctx context.Context) {
	c.coldStartOnce.Do(func() {
		_, err := c.Store.Reconcile(ctx, index.ModeFull)
		c.coldStartErr = err

		if err != nil && c.Log != nil {
			c.Log.Warn("cold-start reconciliation failed; proceeding in degraded mode", zap.Error(err))
		}
	})
}

// Shutdown marks the context draining, rejecting further data-tool
// dispatches, then waits up to ShutdownGrace for in-flight calls to finish
// before closing the store and flushing the logger.
func (c *Context) Shutdown(ctx context.Context) error {
	c.draining.Store(true)

	done := make(chan struct{})

	go func() {
		c.activeOps.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		if c.Log != nil {
			c.Log.Warn("shutdown grace period elapsed with operations still in flight")
		}
	case <-ctx.Done():
	}

	err := c.Store.Close()

	if c.Log != nil {
		_ = c.Log.Sync()
	}

	return err
}
