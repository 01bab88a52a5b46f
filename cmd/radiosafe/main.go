package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Nephrolytics-ai/radiosafe/pkg/config"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/providers"
)

const usage = `usage: radiosafe <command> [flags]

commands:
  serve              run the HTTP and WebSocket API (default)
  analyze <file>     analyse one track and print the report
  watch [dir]        analyse every track dropped into dir (default WATCH_DIR)
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "radiosafe: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	set, err := providers.New(cfg)
	if err != nil {
		return err
	}

	command, rest := splitCommand(args)
	switch command {
	case "serve":
		return serve(ctx, cfg, set)
	case "analyze":
		return analyze(ctx, cfg, set, rest, out)
	case "watch":
		return watch(ctx, cfg, set, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// splitCommand treats a missing command, or one starting with a flag, as serve.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "serve", args
	}
	return args[0], args[1:]
}
