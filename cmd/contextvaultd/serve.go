package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fellanH/context-vault/internal/lifecycle"
)

// request is one line of input: a tool name, its arguments, and an opaque
// id the caller expects echoed back. The wire protocol itself is out of
// scope (spec §1); this shape only exists to exercise C9 end to end.
type request struct {
	ID   any            `json:"id"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type response struct {
	ID     any    `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// run wires logger, lifecycle context, and the stdio loop, returning the
// process exit code (spec §6.6: 0 normal, 1 fatal initialization error, 78
// native-dependency/configuration incompatibility).
func run(args []string, env map[string]string, in io.Reader, out io.Writer, sigCh <-chan os.Signal) int {
	log, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: building logger:", err)

		return exitFatalInit
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lc, err := lifecycle.New(ctx, args, env, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))

		if isNativeIncompatible(err) {
			return exitNativeIncompat
		}

		return exitFatalInit
	}

	done := make(chan struct{})

	go func() {
		serve(ctx, lc, in, out, log)
		close(done)
	}()

	select {
	case <-done:
	case <-sigCh:
		log.Info("signal received, shutting down")
		cancel()

		select {
		case <-done:
		case <-time.After(lifecycle.ShutdownGrace):
			log.Warn("serve loop did not exit within shutdown grace period")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), lifecycle.ShutdownGrace)
	defer shutdownCancel()

	if err := lc.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))

		return exitFatalInit
	}

	return exitOK
}

// serve reads one JSON request per line from in and writes one JSON
// response per line to out, dispatching each through lc.Dispatch -
// grounded on the read-loop half of
// theRebelliousNerd-codenerd/internal/mcp/transport_stdio.go's
// bufio.Scanner-over-stdin shape, adapted from a client reading responses
// to a server reading requests.
func serve(ctx context.Context, lc *lifecycle.Context, in io.Reader, out io.Writer, log *zap.Logger) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(out, response{Error: fmt.Sprintf("malformed request: %v", err)})

			continue
		}

		result, err := lc.Dispatch(ctx, req.Tool, req.Args)
		if err != nil {
			writeResponse(out, response{ID: req.ID, Error: err.Error()})

			continue
		}

		writeResponse(out, response{ID: req.ID, Result: result})
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Error("stdin read error", zap.Error(err))
	}
}

func writeResponse(out io.Writer, r response) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}

	data = append(data, '\n')
	_, _ = out.Write(data)
}

// isNativeIncompatible reports whether err looks like a cgo/sqlite-vec
// loading failure rather than a plain config/path problem, so callers can
// tell "reinstall the native extension" apart from "fix your config" (spec
// §6.6).
func isNativeIncompatible(err error) bool {
	msg := err.Error()

	return strings.Contains(msg, "sqlite-vec") || strings.Contains(msg, "cgo") || strings.Contains(msg, "vec0")
}
