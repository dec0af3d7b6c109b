// Package main is the contextvaultd entrypoint: phased startup, a
// line-delimited JSON dispatch loop over stdio, and signal-driven graceful
// shutdown (spec §6.6, §9).
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const (
	exitOK             = 0
	exitFatalInit      = 1
	exitNativeIncompat = 78
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(run(os.Args[1:], env, os.Stdin, os.Stdout, sigCh))
}

// newLogger builds the process logger. Diagnostics always go to stderr -
// stdout is the wire protocol (spec §9: a stdio tool-dispatch server must
// never write diagnostic text to the stream callers read responses from).
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}
